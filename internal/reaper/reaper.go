// Package reaper periodically deletes carts that are past their expiry.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/juju/clock"
)

const (
	DefaultInterval     = 24 * time.Hour
	DefaultInitialDelay = 10 * time.Second
)

// Store removes every cart whose expiry is before now and reports how many
// were deleted.
type Store interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config holds all necessary attributes to start a Reaper.
type Config struct {
	Store        Store
	Clock        clock.Clock
	Interval     time.Duration
	InitialDelay time.Duration
	Logger       *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Registry
}

// Validate will err unless basic requirements for a valid config are met.
func (c Config) Validate() error {
	if c.Store == nil {
		return errors.New("missing Store")
	}
	if c.Clock == nil {
		return errors.New("missing Clock")
	}
	if c.Logger == nil {
		return errors.New("missing Logger")
	}
	if c.Interval <= 0 {
		return errors.New("Interval must be positive")
	}
	if c.InitialDelay < 0 {
		return errors.New("InitialDelay must not be negative")
	}
	return nil
}

type Reaper struct {
	cfg Config
}

func New(cfg Config) (*Reaper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reaper{cfg: cfg}, nil
}

// Run sweeps once after InitialDelay and then every Interval until ctx is
// cancelled. A failed sweep is logged and the schedule continues.
func (r *Reaper) Run(ctx context.Context) {
	timer := r.cfg.Clock.NewTimer(r.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			r.Sweep(ctx)
			timer.Reset(r.cfg.Interval)
		}
	}
}

// Sweep performs one bulk delete of expired carts.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	now := r.cfg.Clock.Now()

	deleted, err := r.cfg.Store.DeleteExpired(ctx, now)
	if err != nil {
		r.cfg.Logger.Error("expired cart sweep failed", "error", err)
		r.observe("error", 0)
		return 0, err
	}

	r.cfg.Logger.Info("expired carts removed", "deleted", deleted, "cutoff", now)
	r.observe("ok", deleted)
	return deleted, nil
}

func (r *Reaper) observe(result string, deleted int64) {
	if r.cfg.Metrics == nil {
		return
	}
	r.cfg.Metrics.ReaperRuns.WithLabelValues(result).Inc()
	r.cfg.Metrics.CartsReaped.Add(float64(deleted))
}
