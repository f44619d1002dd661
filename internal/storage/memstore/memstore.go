package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"livebid/internal/lifecycle"
	"livebid/internal/models"
	"livebid/internal/storage"
)

// MemoryRepo is a concurrency-safe in-memory implementation of storage.Store.
// AcceptBid checks and writes under one write lock, which makes it the
// store-level atomic operation for a single process.
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]*models.Auction
	bids     map[string]models.Bid
}

var _ storage.Store = (*MemoryRepo)(nil)

func New() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]*models.Auction),
		bids:     make(map[string]models.Bid),
	}
}

func (r *MemoryRepo) CreateAuction(_ context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[a.ID]; ok {
		return fmt.Errorf("create auction %s: already exists", a.ID)
	}
	r.auctions[a.ID] = cloneAuction(a)
	return nil
}

func (r *MemoryRepo) GetAuction(_ context.Context, id string) (*models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[id]
	if !ok {
		return nil, fmt.Errorf("get auction %s: %w", id, storage.ErrNotFound)
	}
	return cloneAuction(a), nil
}

// ListAuctions returns auctions newest first.
func (r *MemoryRepo) ListAuctions(_ context.Context, f storage.ListFilter) ([]models.Auction, error) {
	f = f.Normalize()

	r.mu.RLock()
	all := make([]models.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		all = append(all, *cloneAuction(a))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if f.Offset >= len(all) {
		return []models.Auction{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], nil
}

func (r *MemoryRepo) ListOpenAuctions(_ context.Context) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Auction, 0)
	for _, a := range r.auctions {
		if a.Status != models.StatusCompleted {
			out = append(out, *cloneAuction(a))
		}
	}
	return out, nil
}

func (r *MemoryRepo) AdvanceStatus(_ context.Context, id string, from, to models.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok {
		return false, fmt.Errorf("advance status %s: %w", id, storage.ErrNotFound)
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (r *MemoryRepo) CreateBid(_ context.Context, bid *models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bids[bid.ID] = *bid
	return nil
}

func (r *MemoryRepo) DeleteBid(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bids, id)
	return nil
}

func (r *MemoryRepo) AcceptBid(_ context.Context, p storage.AcceptBidParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[p.AuctionID]
	if !ok {
		return false, nil
	}
	if lifecycle.CheckOpen(p.Now, a.StartTime, a.EndTime) != nil || a.CurrentBid >= p.Amount {
		return false, nil
	}
	a.CurrentBid = p.Amount
	a.BidIDs = append(a.BidIDs, p.BidID)
	a.UpdatedAt = p.Now
	return true, nil
}

// ListBids returns the auction's linked bids in acceptance order.
func (r *MemoryRepo) ListBids(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("list bids %s: %w", auctionID, storage.ErrNotFound)
	}
	out := make([]models.Bid, 0, len(a.BidIDs))
	for _, id := range a.BidIDs {
		if b, ok := r.bids[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// BidCount returns the number of bid records held, linked or not.
// This method is intended for tests.
func (r *MemoryRepo) BidCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bids)
}

func cloneAuction(a *models.Auction) *models.Auction {
	c := *a
	c.BidIDs = append(make([]string, 0, len(a.BidIDs)), a.BidIDs...)
	if a.StartTime != nil {
		st := *a.StartTime
		c.StartTime = &st
	}
	return &c
}
