/*
Package ledger implements the activation ledger: which catalog entries
are active for which identity, and until when.

Activating an entry debits the owner's channel by the entry price and
records an expiry of now + entry duration. Expiry is lazy - records are
treated as inactive once their expiry passes, no background sweep is
needed for correctness. PurgeExpired exists for storage reclamation
only.

ActivateOne and ActivateBatch compose a check with a channel debit and a
record insert; callers running them concurrently for the same identity
must linearize per identity (the engine package does).
*/
package ledger

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/subchannel-org/subchannel-go-base/catalog"
	"github.com/subchannel-org/subchannel-go-base/channel"
	"github.com/subchannel-org/subchannel-go-base/types"
	"github.com/subchannel-org/subchannel-go-base/util"
)

var ErrAlreadyActive = errors.New("entry is already active")

type (
	// Record marks one catalog entry active for one identity until
	// ExpiresAt. Renewal replaces the record, it is never duplicated.
	Record struct {
		_           struct{}       `cbor:",toarray"`
		Owner       types.Identity `json:"owner"`
		EntryID     uint64         `json:"entryId"`
		ActivatedAt uint64         `json:"activatedAt,string"`
		ExpiresAt   uint64         `json:"expiresAt,string"`
	}

	// BatchResult is the per-entry outcome of ActivateBatch. An entry
	// that was active before the batch is skipped, not re-debited, and
	// reported with AlreadyActive set.
	BatchResult struct {
		_             struct{} `cbor:",toarray"`
		EntryID       uint64   `json:"entryId"`
		AlreadyActive bool     `json:"alreadyActive"`
	}

	Ledger struct {
		catalog  *catalog.Catalog
		channels *channel.Store

		mu      sync.RWMutex
		records map[string]map[uint64]Record
	}
)

func New(cat *catalog.Catalog, channels *channel.Store) *Ledger {
	return &Ledger{
		catalog:  cat,
		channels: channels,
		records:  map[string]map[uint64]Record{},
	}
}

// ActivateOne activates a single catalog entry for the owner, debiting
// the entry price from the owner's channel. Re-activating an entry that
// is active and unexpired fails with ErrAlreadyActive; activating after
// expiry replaces the old record.
func (l *Ledger) ActivateOne(owner types.Identity, entryID uint64, now uint64) (Record, error) {
	entry, err := l.catalog.Entry(entryID)
	if err != nil {
		return Record{}, err
	}
	if l.IsActive(owner, entryID, now) {
		return Record{}, fmt.Errorf("%w: entry %d", ErrAlreadyActive, entryID)
	}
	if _, err := l.channels.Debit(owner, entry.Price); err != nil {
		return Record{}, fmt.Errorf("activating entry %d: %w", entryID, err)
	}
	rec := Record{
		Owner:       owner,
		EntryID:     entryID,
		ActivatedAt: now,
		ExpiresAt:   expiry(now, entry.Duration),
	}
	l.put(rec)
	return rec, nil
}

// ActivateBatch activates several entries with all-or-nothing funding:
// the total cost of the entries not already active is checked against
// the channel balance before anything is mutated, and a batch the
// channel cannot fully fund fails without applying any part of it.
// Entries already active (including ids repeated within the batch) are
// skipped and reported, they do not abort the batch. An unregistered id
// aborts the whole batch, its price cannot enter the up-front total.
func (l *Ledger) ActivateBatch(owner types.Identity, entryIDs []uint64, now uint64) ([]BatchResult, error) {
	type pending struct {
		entry catalog.Entry
		skip  bool
	}
	plan := make([]pending, 0, len(entryIDs))
	costs := make([]uint64, 0, len(entryIDs))
	seen := make(map[uint64]bool, len(entryIDs))
	for _, id := range entryIDs {
		entry, err := l.catalog.Entry(id)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", id, err)
		}
		skip := seen[id] || l.IsActive(owner, id, now)
		if !skip {
			costs = append(costs, entry.Price)
			seen[id] = true
		}
		plan = append(plan, pending{entry: entry, skip: skip})
	}

	totalCost, _, err := util.AddUint64(costs...)
	if err != nil {
		return nil, fmt.Errorf("batch cost: %w", err)
	}
	balance, err := l.channels.Balance(owner)
	if err != nil {
		return nil, err
	}
	if totalCost > balance {
		return nil, fmt.Errorf("%w: balance %d, batch cost %d", channel.ErrInsufficientBalance, balance, totalCost)
	}

	// the total was pre-validated under the caller's identity lock, no
	// individual debit below can fail
	results := make([]BatchResult, 0, len(plan))
	for _, p := range plan {
		if p.skip {
			results = append(results, BatchResult{EntryID: p.entry.ID, AlreadyActive: true})
			continue
		}
		if _, err := l.channels.Debit(owner, p.entry.Price); err != nil {
			return nil, fmt.Errorf("batch debit for entry %d: %w", p.entry.ID, err)
		}
		l.put(Record{
			Owner:       owner,
			EntryID:     p.entry.ID,
			ActivatedAt: now,
			ExpiresAt:   expiry(now, p.entry.Duration),
		})
		results = append(results, BatchResult{EntryID: p.entry.ID})
	}
	return results, nil
}

// IsActive reports whether the entry is active for the owner, ie a
// record exists and has not expired.
func (l *Ledger) IsActive(owner types.Identity, entryID uint64, now uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[owner.Key()][entryID]
	return ok && now < rec.ExpiresAt
}

// ListActive returns the ids of all entries active for the owner,
// in ascending id order.
func (l *Ledger) ListActive(owner types.Identity, now uint64) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var ids []uint64
	for id, rec := range l.records[owner.Key()] {
		if now < rec.ExpiresAt {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Get returns the activation record for (owner, entryID), expired or not.
func (l *Ledger) Get(owner types.Identity, entryID uint64) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[owner.Key()][entryID]
	return rec, ok
}

// Clear removes all activation records of the owner. Used when a closed
// channel's owner starts a new lifecycle, so stale records cannot
// reactivate against new deposits.
func (l *Ledger) Clear(owner types.Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, owner.Key())
}

// PurgeExpired removes the owner's expired records and returns how many
// were removed. Only reclaims storage, correctness does not depend on it.
func (l *Ledger) PurgeExpired(owner types.Identity, now uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for id, rec := range l.records[owner.Key()] {
		if now >= rec.ExpiresAt {
			delete(l.records[owner.Key()], id)
			n++
		}
	}
	return n
}

// expiry returns now + duration saturated at the maximum timestamp. An
// effectively unlimited duration must not wrap into the past, a wrapped
// expiry would produce a record that is debited but never active.
func expiry(now, duration uint64) uint64 {
	e, ok := util.SafeAdd(now, duration)
	if !ok {
		return math.MaxUint64
	}
	return e
}

func (l *Ledger) put(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byOwner, ok := l.records[rec.Owner.Key()]
	if !ok {
		byOwner = map[uint64]Record{}
		l.records[rec.Owner.Key()] = byOwner
	}
	byOwner[rec.EntryID] = rec
}
