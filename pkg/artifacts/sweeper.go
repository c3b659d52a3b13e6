package artifacts

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes expired artifacts on a fixed schedule. It runs on its own
// timer and coordinates with request-path writes only through the
// filesystem's atomic rename and idempotent delete semantics.
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweeper creates a sweeper for the store.
func NewSweeper(store *Store, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the sweep. It returns immediately; sweeps run in the
// cron's own goroutine and never block request handling.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.Sweep)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("artifact sweep scheduled", "interval", s.interval, "ttl", s.ttl)

	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one pass. Repeated runs are idempotent: expired artifacts are
// always removed, younger ones always left intact.
func (s *Sweeper) Sweep() {
	deleted, err := s.store.sweepOnce(s.ttl)
	if err != nil {
		s.logger.Warn("artifact sweep failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("artifact sweep completed", "deleted", deleted)
	}
}
