package reconciler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"helloev/pkg/config"
)

const sweepTimeout = 2 * time.Minute

// Scheduler runs the reconciler on the configured cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	cfg        *config.Config
}

func NewScheduler(reconciler *Reconciler, cfg *config.Config) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(),
		reconciler: reconciler,
		cfg:        cfg,
	}

	if _, err := s.cron.AddFunc(cfg.ReconcileSchedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.cfg.Log.Info("Reconciler scheduled", "schedule", s.cfg.ReconcileSchedule)
}

// Stop waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cfg.Log.Info("Reconciler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.reconciler.Sweep(ctx); err != nil {
		s.cfg.Log.Error("Reconciliation sweep failed", "error", err)
	}
}
