/*
Package channel implements the per-identity payment channel store.

A channel is an escrow balance funding subscription activations. Each
identity has at most one channel; it is created by the first deposit,
debited by activations and emptied when closed. A closed channel stays
in the store (deposits to it are rejected) until the owner explicitly
starts a new lifecycle, see the engine package.

Every operation is atomic: it either applies fully or leaves the store
unchanged. Individual operations are safe for concurrent use; callers
composing multiple operations into a larger atomic step (eg activation,
which checks and debits) must linearize them per identity.
*/
package channel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/subchannel-org/subchannel-go-base/types"
	"github.com/subchannel-org/subchannel-go-base/util"
)

var (
	ErrChannelNotOpen      = errors.New("no open channel")
	ErrChannelClosed       = errors.New("channel is closed")
	ErrInsufficientBalance = errors.New("insufficient channel balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type (
	// Channel is the escrow record for one identity.
	Channel struct {
		_       struct{}       `cbor:",toarray"`
		Owner   types.Identity `json:"owner"`
		Balance uint64         `json:"balance,string"`
		IsOpen  bool           `json:"isOpen"`
	}

	Store struct {
		mu       sync.RWMutex
		channels map[string]*Channel
	}
)

func NewStore() *Store {
	return &Store{channels: map[string]*Channel{}}
}

// Deposit adds funds to the owner's channel, creating the channel on
// first deposit. Depositing to a closed channel is rejected - a closed
// channel must not be silently revived, stale activation records could
// otherwise reactivate against the new funds.
func (s *Store) Deposit(owner types.Identity, amount uint64) (uint64, error) {
	if err := owner.IsValid(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("deposit: %w", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[owner.Key()]
	if !ok {
		s.channels[owner.Key()] = &Channel{Owner: owner, Balance: amount, IsOpen: true}
		return amount, nil
	}
	if !ch.IsOpen {
		return 0, ErrChannelClosed
	}
	balance, ok := util.SafeAdd(ch.Balance, amount)
	if !ok {
		return 0, fmt.Errorf("deposit: balance overflow")
	}
	ch.Balance = balance
	return balance, nil
}

// Debit subtracts amount from the owner's open channel and returns the
// new balance. The full amount is subtracted or nothing is.
func (s *Store) Debit(owner types.Identity, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("debit: %w", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[owner.Key()]
	if !ok || !ch.IsOpen {
		return 0, ErrChannelNotOpen
	}
	balance, ok := util.SafeSub(ch.Balance, amount)
	if !ok {
		return 0, fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientBalance, ch.Balance, amount)
	}
	ch.Balance = balance
	return balance, nil
}

// CloseUnilateral closes the caller's own channel without a counterparty
// signature and returns the remaining balance as the payout owed to the
// owner. The caller is already authenticated as the owner, so no further
// proof is required.
func (s *Store) CloseUnilateral(owner types.Identity) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[owner.Key()]
	if !ok || !ch.IsOpen {
		return 0, ErrChannelNotOpen
	}
	payout := ch.Balance
	ch.Balance = 0
	ch.IsOpen = false
	return payout, nil
}

// Balance returns the balance of the owner's open channel.
func (s *Store) Balance(owner types.Identity) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[owner.Key()]
	if !ok || !ch.IsOpen {
		return 0, ErrChannelNotOpen
	}
	return ch.Balance, nil
}

// Get returns a copy of the owner's channel record, open or closed.
func (s *Store) Get(owner types.Identity) (Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[owner.Key()]
	if !ok {
		return Channel{}, ErrChannelNotOpen
	}
	return *ch, nil
}

// Remove deletes a closed channel record so that a fresh deposit starts
// a new lifecycle. Removing an open channel is rejected.
func (s *Store) Remove(owner types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[owner.Key()]
	if !ok {
		return ErrChannelNotOpen
	}
	if ch.IsOpen {
		return fmt.Errorf("cannot remove an open channel")
	}
	delete(s.channels, owner.Key())
	return nil
}
