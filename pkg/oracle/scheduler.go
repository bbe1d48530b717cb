package oracle

import (
	"context"
	"errors"
	"time"

	"predix-engine/internal/engine"
	"github.com/sirupsen/logrus"
)

// Scheduler resolves markets whose deadline has passed. Each tick it asks the
// engine for due markets, fetches a verified price for each market's feed and
// resolves against it. A market whose feed is stale or unreachable stays open
// and is retried on the next tick.
type Scheduler struct {
	engine   *engine.Engine
	adapter  *Adapter
	interval time.Duration

	// now produces the current basis value. Overridable in tests.
	now func() uint64
}

// NewScheduler creates a resolution scheduler.
func NewScheduler(eng *engine.Engine, adapter *Adapter, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   eng,
		adapter:  adapter,
		interval: interval,
		now:      func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logrus.WithField("interval", s.interval).Info("Resolution scheduler started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Resolution scheduler stopped")
			return
		case <-ticker.C:
			s.ResolveDue(ctx)
		}
	}
}

// ResolveDue resolves every market whose deadline has been reached.
func (s *Scheduler) ResolveDue(ctx context.Context) {
	now := s.now()

	for _, id := range s.engine.DueMarkets(now) {
		view, err := s.engine.GetMarketInfo(id)
		if err != nil {
			logrus.WithError(err).WithField("market_id", id).Warn("Due market lookup failed")
			continue
		}

		price, err := s.adapter.VerifiedPrice(ctx, view.Asset)
		if err != nil {
			level := logrus.WarnLevel
			if errors.Is(err, engine.ErrStalePrice) {
				level = logrus.InfoLevel
			}
			logrus.StandardLogger().WithError(err).WithField("market_id", id).Log(level, "Skipping market resolution")
			continue
		}

		side, err := s.engine.ResolveMarket(id, price.Value, now)
		if err != nil {
			// Lost a race with a manual resolution or cancellation.
			logrus.WithError(err).WithField("market_id", id).Info("Market no longer resolvable")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"market_id":    id,
			"final_price":  price.Value,
			"winning_side": sideName(side),
		}).Info("Market resolved")
	}
}

func sideName(side bool) string {
	if side {
		return "yes"
	}
	return "no"
}
