/*
Package settle implements the cooperative close protocol.

A channel closes either unilaterally (the authenticated owner asks, see
the channel package) or cooperatively via a close attestation: a signed
statement of the final channel state. The settlement verifies the
signature, the replay nonce and that the attested state agrees with the
ledger before any mutation, then closes the channel and authorizes the
payout in one atomic step.
*/
package settle

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/subchannel-org/subchannel-go-base/channel"
	"github.com/subchannel-org/subchannel-go-base/ledger"
	"github.com/subchannel-org/subchannel-go-base/types"
)

var (
	ErrBadSignature    = errors.New("attestation signature is invalid")
	ErrStaleNonce      = errors.New("attestation nonce is not greater than the last accepted nonce")
	ErrBalanceMismatch = errors.New("attested state does not match channel state")
)

type Settlement struct {
	channels *channel.Store
	ledger   *ledger.Ledger
	verify   VerifyFunc

	mu sync.Mutex
	// last accepted nonce per owner; never reset, a reopened channel
	// must not accept attestations replayed from a previous lifecycle
	nonces map[string]uint64
}

// New creates the settlement protocol over the given stores. A nil
// verify falls back to VerifyOwnerProof.
func New(channels *channel.Store, l *ledger.Ledger, verify VerifyFunc) *Settlement {
	if verify == nil {
		verify = VerifyOwnerProof
	}
	return &Settlement{
		channels: channels,
		ledger:   l,
		verify:   verify,
		nonces:   map[string]uint64{},
	}
}

// CloseCooperative verifies the attestation and, on success, closes the
// owner's channel and returns the attested final balance as the payout.
// Verification and commit are one atomic unit: any failure leaves the
// channel, the ledger and the nonce high-water mark unchanged.
func (s *Settlement) CloseCooperative(att *CloseAttestation, now uint64) (uint64, error) {
	if err := att.IsValid(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	sb, err := att.SigBytes()
	if err != nil {
		return 0, err
	}
	if err := s.verify(att.Owner, sb, att.Signature); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if att.Nonce <= s.nonces[att.Owner.Key()] {
		return 0, fmt.Errorf("%w: nonce %d, last accepted %d", ErrStaleNonce, att.Nonce, s.nonces[att.Owner.Key()])
	}
	balance, err := s.channels.Balance(att.Owner)
	if err != nil {
		return 0, err
	}
	if att.FinalBalance != balance {
		return 0, fmt.Errorf("%w: attested balance %d, channel balance %d", ErrBalanceMismatch, att.FinalBalance, balance)
	}
	// the attested set may carry entries the ledger has already expired
	// but must not lag it
	for _, id := range s.ledger.ListActive(att.Owner, now) {
		if !slices.Contains(att.ActiveEntryIDs, id) {
			return 0, fmt.Errorf("%w: active entry %d missing from attestation", ErrBalanceMismatch, id)
		}
	}

	payout, err := s.channels.CloseUnilateral(att.Owner)
	if err != nil {
		return 0, err
	}
	s.nonces[att.Owner.Key()] = att.Nonce
	return payout, nil
}

// LastNonce returns the nonce high-water mark for the owner, 0 if no
// attestation was ever accepted.
func (s *Settlement) LastNonce(owner types.Identity) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[owner.Key()]
}
