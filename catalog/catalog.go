/*
Package catalog implements the registry of subscription offerings.

The catalog is append only: entries are assigned sequential ids starting
at 0 and are never removed or changed, so an id referenced by an
activation record stays resolvable for the lifetime of the system.
Registration is restricted to the admin identity the catalog was created
with.
*/
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/subchannel-org/subchannel-go-base/types"
)

var (
	ErrInvalidEntry  = errors.New("invalid catalog entry")
	ErrNotFound      = errors.New("catalog entry not found")
	ErrNotAuthorized = errors.New("caller is not the catalog admin")
)

type (
	// Entry is a single subscription offering. Price is in the smallest
	// monetary unit, Duration in seconds.
	Entry struct {
		_        struct{} `cbor:",toarray"`
		ID       uint64   `json:"id"`
		Name     string   `json:"name"`
		Price    uint64   `json:"price,string"`
		Duration uint64   `json:"duration,string"`
	}

	Catalog struct {
		admin types.Identity

		mu      sync.RWMutex
		entries []Entry
	}
)

// New creates an empty catalog administered by the given identity.
func New(admin types.Identity) (*Catalog, error) {
	if err := admin.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid admin identity: %w", err)
	}
	return &Catalog{admin: admin}, nil
}

// RegisterEntry appends a new offering and returns its id. Only the
// catalog admin may register entries.
func (c *Catalog) RegisterEntry(caller types.Identity, name string, price, duration uint64) (uint64, error) {
	if !c.admin.Eq(caller) {
		return 0, ErrNotAuthorized
	}
	if name == "" {
		return 0, fmt.Errorf("%w: name is empty", ErrInvalidEntry)
	}
	if price == 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidEntry)
	}
	if duration == 0 {
		return 0, fmt.Errorf("%w: duration must be positive", ErrInvalidEntry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	id := uint64(len(c.entries))
	c.entries = append(c.entries, Entry{
		ID:       id,
		Name:     name,
		Price:    price,
		Duration: duration,
	})
	return id, nil
}

// Entry returns the offering registered under the given id.
func (c *Catalog) Entry(id uint64) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id >= uint64(len(c.entries)) {
		return Entry{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return c.entries[id], nil
}

// Entries returns all offerings in registration order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Admin returns the identity allowed to register entries.
func (c *Catalog) Admin() types.Identity {
	return c.admin
}
