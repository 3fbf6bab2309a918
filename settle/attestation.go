package settle

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"

	"github.com/subchannel-org/subchannel-go-base/cbor"
	"github.com/subchannel-org/subchannel-go-base/crypto"
	"github.com/subchannel-org/subchannel-go-base/types"
	"github.com/subchannel-org/subchannel-go-base/types/hex"
)

// CloseAttestationTag identifies a CBOR encoded close attestation.
const CloseAttestationTag cbor.Tag = 40

type (
	// CloseAttestation is a signed statement of final channel state. It
	// authorizes closing the owner's channel and paying out FinalBalance.
	// The attestation is transient: verified once, consumed by the close
	// operation and never stored.
	CloseAttestation struct {
		_              struct{}       `cbor:",toarray"`
		Owner          types.Identity `json:"owner"`
		FinalBalance   uint64         `json:"finalBalance,string"`
		ActiveEntryIDs []uint64       `json:"activeEntryIds"`
		Nonce          uint64         `json:"nonce,string"`
		Signature      hex.Bytes      `json:"signature"`
	}

	// OwnerProof is a signature and public key pair carried in the
	// attestation's Signature field (the public key can be used to verify
	// the signature, its hash must match the owner identity).
	OwnerProof struct {
		_      struct{}  `cbor:",toarray"`
		Sig    hex.Bytes `json:"sig"`
		PubKey hex.Bytes `json:"pubKey"`
	}
)

func (a *CloseAttestation) IsValid() error {
	if a == nil {
		return errors.New("attestation is nil")
	}
	if err := a.Owner.IsValid(); err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}
	if len(a.Signature) == 0 {
		return errors.New("attestation is not signed")
	}
	return nil
}

// SigBytes serializes all fields except for the signature, the byte
// message that is signed and verified. The active entry ids are sorted
// so that both parties produce the same encoding for the same set.
func (a CloseAttestation) SigBytes() ([]byte, error) {
	a.Signature = nil
	a.ActiveEntryIDs = slices.Clone(a.ActiveEntryIDs)
	slices.Sort(a.ActiveEntryIDs)
	bs, err := a.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal close attestation: %w", err)
	}
	return bs, nil
}

// Sign signs the attestation, storing the signature and the signer's
// public key as an owner proof in the Signature field.
func (a *CloseAttestation) Sign(signer crypto.Signer) error {
	if signer == nil {
		return errors.New("signer is nil")
	}
	sb, err := a.SigBytes()
	if err != nil {
		return err
	}
	sig, err := signer.SignBytes(sb)
	if err != nil {
		return fmt.Errorf("signing failed: %w", err)
	}
	verifier, err := signer.Verifier()
	if err != nil {
		return err
	}
	pubKey, err := verifier.MarshalPublicKey()
	if err != nil {
		return err
	}
	a.Signature, err = cbor.Marshal(OwnerProof{Sig: sig, PubKey: pubKey})
	if err != nil {
		return fmt.Errorf("failed to marshal owner proof: %w", err)
	}
	return nil
}

func (a *CloseAttestation) MarshalCBOR() ([]byte, error) {
	type alias CloseAttestation
	return cbor.MarshalTaggedValue(CloseAttestationTag, (*alias)(a))
}

func (a *CloseAttestation) UnmarshalCBOR(data []byte) error {
	type alias CloseAttestation
	if err := cbor.UnmarshalTaggedValue(CloseAttestationTag, data, (*alias)(a)); err != nil {
		return fmt.Errorf("failed to unmarshal close attestation: %w", err)
	}
	return nil
}

// VerifyFunc checks whether msg was signed by the given identity, sig
// being whatever proof material the attestation carries.
type VerifyFunc func(owner types.Identity, msg []byte, sig []byte) error

// VerifyOwnerProof is the default VerifyFunc: sig must decode to an
// OwnerProof whose public key hashes to the owner identity and whose
// signature verifies over msg.
func VerifyOwnerProof(owner types.Identity, msg []byte, sig []byte) error {
	proof := OwnerProof{}
	if err := cbor.Unmarshal(sig, &proof); err != nil {
		return fmt.Errorf("decoding owner proof: %w", err)
	}
	pkh := sha256.Sum256(proof.PubKey)
	if !owner.Eq(pkh[:]) {
		return errors.New("public key does not belong to the owner")
	}
	verifier, err := crypto.NewVerifierSecp256k1(proof.PubKey)
	if err != nil {
		return err
	}
	return verifier.VerifyBytes(proof.Sig, msg)
}
