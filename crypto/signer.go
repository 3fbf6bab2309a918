package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// CompressedSecp256K1PublicKeySize is the size of a compressed
	// secp256k1 public key in bytes.
	CompressedSecp256K1PublicKeySize = 33
	// Secp256K1SignatureSize is R || S || recovery id.
	Secp256K1SignatureSize = 65
)

var _ Signer = (*InMemorySecp256K1Signer)(nil)

// InMemorySecp256K1Signer is a Signer that holds the private key in memory.
type InMemorySecp256K1Signer struct {
	privKey *ecdsa.PrivateKey
}

// NewInMemorySecp256K1Signer generates a new key pair and returns a signer
// for it.
func NewInMemorySecp256K1Signer() (*InMemorySecp256K1Signer, error) {
	privKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return &InMemorySecp256K1Signer{privKey: privKey}, nil
}

// NewInMemorySecp256K1SignerFromKey returns a signer for an existing
// private key given as 32 bytes.
func NewInMemorySecp256K1SignerFromKey(key []byte) (*InMemorySecp256K1Signer, error) {
	privKey, err := ethcrypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &InMemorySecp256K1Signer{privKey: privKey}, nil
}

func (s *InMemorySecp256K1Signer) SignBytes(data []byte) ([]byte, error) {
	if s == nil || s.privKey == nil {
		return nil, errors.New("signer is not initialized")
	}
	digest := sha256.Sum256(data)
	sig, err := ethcrypto.Sign(digest[:], s.privKey)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return sig, nil
}

func (s *InMemorySecp256K1Signer) Verifier() (Verifier, error) {
	if s == nil || s.privKey == nil {
		return nil, errors.New("signer is not initialized")
	}
	return NewVerifierSecp256k1(ethcrypto.CompressPubkey(&s.privKey.PublicKey))
}

// MarshalPrivateKey returns the private key as 32 bytes.
func (s *InMemorySecp256K1Signer) MarshalPrivateKey() ([]byte, error) {
	if s == nil || s.privKey == nil {
		return nil, errors.New("signer is not initialized")
	}
	return ethcrypto.FromECDSA(s.privKey), nil
}
