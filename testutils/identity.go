package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/subchannel-org/subchannel-go-base/crypto"
	"github.com/subchannel-org/subchannel-go-base/types"
)

// NewIdentity returns a random identity with no key pair behind it.
// Use NewSigner when the test needs to produce valid owner proofs.
func NewIdentity(t *testing.T) types.Identity {
	id := make([]byte, types.IdentityLength)
	if _, err := rand.Read(id); err != nil {
		t.Fatal("failed to generate identity:", err)
	}
	return id
}

// NewSigner returns a fresh signer and the identity derived from its
// public key.
func NewSigner(t *testing.T) (*crypto.InMemorySecp256K1Signer, types.Identity) {
	signer, err := crypto.NewInMemorySecp256K1Signer()
	if err != nil {
		t.Fatal("failed to generate signer:", err)
	}
	verifier, err := signer.Verifier()
	if err != nil {
		t.Fatal("failed to get verifier:", err)
	}
	pubKey, err := verifier.MarshalPublicKey()
	if err != nil {
		t.Fatal("failed to marshal public key:", err)
	}
	return signer, types.NewIdentityFromKey(pubKey)
}
