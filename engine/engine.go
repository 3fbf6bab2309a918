/*
Package engine ties the catalog, channel store, activation ledger and
settlement protocol into the single operation surface a transport layer
consumes.

The engine is the concurrency boundary: every operation touching one
identity's channel or activation state runs under that identity's lock,
so concurrent requests for the same identity never interleave their
read-modify-write steps. Operations on different identities proceed in
parallel. The current time is taken from a clock function so that the
embedding service controls it (and tests can).
*/
package engine

import (
	"github.com/subchannel-org/subchannel-go-base/catalog"
	"github.com/subchannel-org/subchannel-go-base/channel"
	"github.com/subchannel-org/subchannel-go-base/ledger"
	"github.com/subchannel-org/subchannel-go-base/settle"
	"github.com/subchannel-org/subchannel-go-base/types"
)

type (
	Engine struct {
		catalog    *catalog.Catalog
		channels   *channel.Store
		ledger     *ledger.Ledger
		settlement *settle.Settlement
		clock      func() uint64
		locks      keyLock
	}

	Option func(c *conf)

	conf struct {
		clock  func() uint64
		verify settle.VerifyFunc
	}
)

// WithClock overrides the default wall clock (seconds from epoch).
func WithClock(clock func() uint64) Option {
	return func(c *conf) {
		c.clock = clock
	}
}

// WithVerify overrides the default attestation verification primitive.
func WithVerify(verify settle.VerifyFunc) Option {
	return func(c *conf) {
		c.verify = verify
	}
}

// New creates an engine with an empty catalog administered by admin.
func New(admin types.Identity, opts ...Option) (*Engine, error) {
	c := &conf{clock: types.NewTimestamp}
	for _, opt := range opts {
		opt(c)
	}
	cat, err := catalog.New(admin)
	if err != nil {
		return nil, err
	}
	channels := channel.NewStore()
	l := ledger.New(cat, channels)
	return &Engine{
		catalog:    cat,
		channels:   channels,
		ledger:     l,
		settlement: settle.New(channels, l, c.verify),
		clock:      c.clock,
	}, nil
}

// RegisterEntry registers a new catalog offering; admin only.
func (e *Engine) RegisterEntry(caller types.Identity, name string, price, duration uint64) (uint64, error) {
	return e.catalog.RegisterEntry(caller, name, price, duration)
}

func (e *Engine) GetEntry(id uint64) (catalog.Entry, error) {
	return e.catalog.Entry(id)
}

func (e *Engine) ListEntries() []catalog.Entry {
	return e.catalog.Entries()
}

// Deposit adds funds to the owner's channel, creating it on first use.
func (e *Engine) Deposit(owner types.Identity, amount uint64) (uint64, error) {
	defer e.locks.lock(owner)()
	return e.channels.Deposit(owner, amount)
}

// Balance returns the owner's open channel balance.
func (e *Engine) Balance(owner types.Identity) (uint64, error) {
	return e.channels.Balance(owner)
}

// ActivateOne activates one catalog entry against the owner's channel.
func (e *Engine) ActivateOne(owner types.Identity, entryID uint64) (ledger.Record, error) {
	defer e.locks.lock(owner)()
	return e.ledger.ActivateOne(owner, entryID, e.clock())
}

// ActivateBatch activates several entries all-or-nothing, see the
// ledger package.
func (e *Engine) ActivateBatch(owner types.Identity, entryIDs []uint64) ([]ledger.BatchResult, error) {
	defer e.locks.lock(owner)()
	return e.ledger.ActivateBatch(owner, entryIDs, e.clock())
}

func (e *Engine) IsActive(owner types.Identity, entryID uint64) bool {
	return e.ledger.IsActive(owner, entryID, e.clock())
}

func (e *Engine) ListActive(owner types.Identity) []uint64 {
	return e.ledger.ListActive(owner, e.clock())
}

// CloseUnilateral closes the caller's own channel and returns the
// payout owed to the owner.
func (e *Engine) CloseUnilateral(owner types.Identity) (uint64, error) {
	defer e.locks.lock(owner)()
	return e.channels.CloseUnilateral(owner)
}

// CloseCooperative closes a channel via a signed close attestation and
// returns the payout. Validation is the settlement's job; the engine
// only pins the owner's lock for the verify-and-commit step.
func (e *Engine) CloseCooperative(att *settle.CloseAttestation) (uint64, error) {
	var owner types.Identity
	if att != nil {
		owner = att.Owner
	}
	defer e.locks.lock(owner)()
	return e.settlement.CloseCooperative(att, e.clock())
}

// Reopen ends a closed channel's lifecycle: the channel record and all
// of the owner's activation records are removed, so the next deposit
// creates a fresh channel with no stale activations attached. The
// cooperative close nonce high-water mark survives.
func (e *Engine) Reopen(owner types.Identity) error {
	defer e.locks.lock(owner)()
	if err := e.channels.Remove(owner); err != nil {
		return err
	}
	e.ledger.Clear(owner)
	return nil
}

// PurgeExpired drops the owner's expired activation records, returning
// the number removed.
func (e *Engine) PurgeExpired(owner types.Identity) int {
	defer e.locks.lock(owner)()
	return e.ledger.PurgeExpired(owner, e.clock())
}

// LastNonce returns the owner's cooperative close nonce high-water mark.
func (e *Engine) LastNonce(owner types.Identity) uint64 {
	return e.settlement.LastNonce(owner)
}
