package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var ErrVerificationFailed = errors.New("verification failed")

var _ Verifier = (*verifierSecp256k1)(nil)

type verifierSecp256k1 struct {
	// compressed public key, kept in the form it was given so that
	// MarshalPublicKey round-trips
	pubKey []byte
}

// NewVerifierSecp256k1 creates a verifier for a compressed secp256k1
// public key.
func NewVerifierSecp256k1(compressedPubKey []byte) (Verifier, error) {
	if len(compressedPubKey) != CompressedSecp256K1PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: expected %d bytes, got %d", CompressedSecp256K1PublicKeySize, len(compressedPubKey))
	}
	if _, err := ethcrypto.DecompressPubkey(compressedPubKey); err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	key := make([]byte, len(compressedPubKey))
	copy(key, compressedPubKey)
	return &verifierSecp256k1{pubKey: key}, nil
}

func (v *verifierSecp256k1) VerifyBytes(sig []byte, data []byte) error {
	if len(sig) != Secp256K1SignatureSize {
		return fmt.Errorf("invalid signature length: expected %d bytes, got %d", Secp256K1SignatureSize, len(sig))
	}
	digest := sha256.Sum256(data)
	// the recovery id is not needed for verification
	if !ethcrypto.VerifySignature(v.pubKey, digest[:], sig[:Secp256K1SignatureSize-1]) {
		return ErrVerificationFailed
	}
	return nil
}

func (v *verifierSecp256k1) MarshalPublicKey() ([]byte, error) {
	key := make([]byte, len(v.pubKey))
	copy(key, v.pubKey)
	return key, nil
}
