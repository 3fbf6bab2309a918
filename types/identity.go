package types

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/subchannel-org/subchannel-go-base/types/hex"
)

// IdentityLength is the length of an identity in bytes (sha256 output).
const IdentityLength = 32

// Identity is the caller identity every operation is authenticated as:
// the sha256 hash of the caller's compressed secp256k1 public key.
type Identity []byte

// NewIdentityFromKey derives the identity for a compressed public key.
func NewIdentityFromKey(pubKey []byte) Identity {
	h := sha256.Sum256(pubKey)
	return h[:]
}

func (id Identity) Eq(other Identity) bool {
	return bytes.Equal(id, other)
}

func (id Identity) String() string {
	return fmt.Sprintf("%X", []byte(id))
}

// Key returns the identity in a form usable as a map key.
func (id Identity) Key() string {
	return string(id)
}

func (id Identity) IsValid() error {
	if len(id) != IdentityLength {
		return fmt.Errorf("invalid identity length: expected %d bytes, got %d", IdentityLength, len(id))
	}
	return nil
}

func (id Identity) MarshalText() ([]byte, error) {
	return hex.Encode(id), nil
}

func (id *Identity) UnmarshalText(src []byte) error {
	res, err := hex.Decode(src)
	if err == nil {
		*id = res
	}
	return err
}
