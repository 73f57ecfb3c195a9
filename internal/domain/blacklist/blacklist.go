// Package blacklist implements the hard gate on order creation: a phone
// number present in the blacklist store can never place a new order.
package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a phone is not present in the store.
var ErrNotFound = errors.New("phone not blacklisted")

// Entry is one banned phone number.
type Entry struct {
	Phone     string
	Reason    string
	CreatedAt time.Time
}

// Repository provides persistence for blacklist entries.
type Repository interface {
	// FindByPhone returns the entry for the given phone, or ErrNotFound.
	FindByPhone(ctx context.Context, phone string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Add(ctx context.Context, e Entry) error
	Remove(ctx context.Context, phone string) error
}

// Bloom filter sizing. The filter only has to cover banned numbers, which
// stay in the low millions even with aggressive fraud-list ingestion.
const (
	filterCapacity = 5_000_000
	filterFPR      = 0.001
)

// Gate answers "is this phone blocked" in front of the store. A bloom
// filter seeded from the store absorbs the common case: a clean phone
// misses the filter and is cleared without a store roundtrip. Filter hits
// are confirmed against the store, so false positives cost one lookup and
// never block anyone.
type Gate struct {
	repo Repository

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewGate builds a Gate and seeds its filter with every phone currently in
// the store.
func NewGate(ctx context.Context, repo Repository) (*Gate, error) {
	entries, err := repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list blacklist")
	}

	filter := bloom.NewWithEstimates(filterCapacity, filterFPR)
	for _, e := range entries {
		filter.AddString(e.Phone)
	}

	return &Gate{repo: repo, filter: filter}, nil
}

// Check returns the blacklist entry for phone, or nil when the phone is
// not blocked.
func (g *Gate) Check(ctx context.Context, phone string) (*Entry, error) {
	g.mu.RLock()
	hit := g.filter.TestString(phone)
	g.mu.RUnlock()
	if !hit {
		return nil, nil
	}

	e, err := g.repo.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// False positive from the filter.
			return nil, nil
		}
		return nil, errors.Wrap(err, "confirm blacklist hit")
	}
	return e, nil
}

// Add persists a new entry and records it in the filter.
func (g *Gate) Add(ctx context.Context, e Entry) error {
	if err := g.repo.Add(ctx, e); err != nil {
		return errors.Wrap(err, "add blacklist entry")
	}

	g.mu.Lock()
	g.filter.AddString(e.Phone)
	g.mu.Unlock()
	return nil
}

// Remove deletes the entry from the store. The filter bit stays set; the
// stale positive only costs one confirming lookup per Check.
func (g *Gate) Remove(ctx context.Context, phone string) error {
	if err := g.repo.Remove(ctx, phone); err != nil {
		return errors.Wrap(err, "remove blacklist entry")
	}
	return nil
}

// List returns all entries, newest first per the repository's ordering.
func (g *Gate) List(ctx context.Context) ([]Entry, error) {
	return g.repo.List(ctx)
}
