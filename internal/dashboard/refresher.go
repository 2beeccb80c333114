// Package dashboard keeps a periodically refreshed snapshot of the admin
// overview so that polling admins do not each re-read every collection.
package dashboard

import (
	"context"
	"sync"
	"time"

	"gameshop/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultSchedule = "@every 30s"

// Source is the read side the refresher needs.
type Source interface {
	GetStats(ctx context.Context) (models.Stats, error)
	ListOrdersByStatus(ctx context.Context, status string) ([]models.Order, error)
	ListTopupsByStatus(ctx context.Context, status string) ([]models.Topup, error)
}

type Snapshot struct {
	Stats         models.Stats   `json:"stats"`
	PendingOrders []models.Order `json:"pendingOrders"`
	PendingTopups []models.Topup `json:"pendingTopups"`
	RefreshedAt   time.Time      `json:"refreshedAt"`
}

type Refresher struct {
	source  Source
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration

	mu       sync.RWMutex
	snapshot Snapshot
	ready    bool

	cron *cron.Cron
}

func NewRefresher(source Source, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		source:  source,
		logger:  logger,
		now:     time.Now,
		timeout: 20 * time.Second,
	}
}

// Refresh re-reads the overview and replaces the snapshot. The previous
// snapshot is kept when any read fails.
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	var next Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := r.source.GetStats(gctx)
		next.Stats = stats
		return err
	})
	g.Go(func() error {
		orders, err := r.source.ListOrdersByStatus(gctx, models.StatusPending)
		next.PendingOrders = orders
		return err
	})
	g.Go(func() error {
		topups, err := r.source.ListTopupsByStatus(gctx, models.StatusPending)
		next.PendingTopups = topups
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	next.RefreshedAt = r.now().UTC()

	r.mu.Lock()
	r.snapshot = next
	r.ready = true
	r.mu.Unlock()
	return next, nil
}

// Snapshot returns the last refreshed overview, refreshing first if none
// has been taken yet.
func (r *Refresher) Snapshot(ctx context.Context) (Snapshot, error) {
	r.mu.RLock()
	snap, ready := r.snapshot, r.ready
	r.mu.RUnlock()
	if ready {
		return snap, nil
	}
	return r.Refresh(ctx)
}

// Start schedules Refresh on schedule (cron syntax or "@every" descriptors).
func (r *Refresher) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.tick); err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.logger.Info("dashboard_refresher_started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Refresher) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	start := r.now()
	snap, err := r.Refresh(ctx)
	if err != nil {
		r.logger.Warn("dashboard_refresh_failed", zap.Error(err))
		return
	}
	r.logger.Debug("dashboard_refreshed",
		zap.Int("pending_orders", len(snap.PendingOrders)),
		zap.Int("pending_topups", len(snap.PendingTopups)),
		zap.Duration("took", r.now().Sub(start)))
}
