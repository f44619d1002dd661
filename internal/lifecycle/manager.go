package lifecycle

import (
	"context"
	"fmt"
	"time"

	"livebid/internal/models"
	"livebid/internal/storage"

	"go.uber.org/zap"
)

const DefaultInterval = time.Minute

// Manager owns the persisted status of every auction.
type Manager struct {
	store    storage.StatusStore
	clock    func() time.Time
	interval time.Duration
}

type Option func(*Manager)

// WithClock injects the time source used by Sweep, Refresh and Run.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithInterval sets the period between background sweeps.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

func NewManager(store storage.StatusStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		clock:    func() time.Time { return time.Now().UTC() },
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sweep advances every open auction to the status it should hold right now.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.SweepAt(ctx, m.clock())
}

// SweepAt advances every open auction to the status it should hold at now.
// It is idempotent for a fixed now. Failures on one auction do not stop the
// pass; the first one is returned.
func (m *Manager) SweepAt(ctx context.Context, now time.Time) (int, error) {
	open, err := m.store.ListOpenAuctions(ctx)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: list open auctions: %w", err)
	}

	var (
		changed  int
		firstErr error
	)
	for i := range open {
		ok, err := m.advance(ctx, &open[i], now)
		if err != nil {
			zap.L().Error("lifecycle.advance_failed", zap.String("auction_id", open[i].ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, firstErr
}

// Refresh brings a single auction's status up to date and returns the
// auction as stored afterwards.
func (m *Manager) Refresh(ctx context.Context, id string) (*models.Auction, error) {
	a, err := m.store.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	if targetStatus(a, now) == a.Status {
		return a, nil
	}
	if _, err := m.advance(ctx, a, now); err != nil {
		return a, err
	}
	// Read back even on a lost transition: the winner already moved it.
	return m.store.GetAuction(ctx, id)
}

func targetStatus(a *models.Auction, now time.Time) models.Status {
	return Advance(a.Status, ComputeStatus(now, a.StartTime, a.EndTime))
}

func (m *Manager) advance(ctx context.Context, a *models.Auction, now time.Time) (bool, error) {
	target := targetStatus(a, now)
	if target == a.Status {
		return false, nil
	}
	ok, err := m.store.AdvanceStatus(ctx, a.ID, a.Status, target)
	if err != nil {
		return false, fmt.Errorf("lifecycle: advance %s %s->%s: %w", a.ID, a.Status, target, err)
	}
	if ok {
		zap.L().Info("lifecycle.status_changed",
			zap.String("auction_id", a.ID),
			zap.String("from", string(a.Status)),
			zap.String("to", string(target)),
		)
		a.Status = target
	}
	return ok, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// Run blocks; start it in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	tk := time.NewTicker(m.interval)
	defer tk.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) {
	n, err := m.Sweep(ctx)
	if err != nil {
		zap.L().Warn("lifecycle.sweep", zap.Int("changed", n), zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Debug("lifecycle.sweep", zap.Int("changed", n))
	}
}
