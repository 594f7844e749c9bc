package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/config"
	"github.com/kdiawara/branchstock/internal/domain/models"
)

// StaleLister finds requisitions the sweep should look at.
type StaleLister interface {
	ListStale(ctx context.Context, before time.Time) ([]models.Requisition, error)
}

// AuditSink receives reconciliation flags, best-effort.
type AuditSink interface {
	Append(ctx context.Context, entry models.AuditEntry) error
}

// Scheduler runs the reconciliation sweep: it flags requisitions stuck with a
// receive claim (a crash may have moved counters without persisting the
// received status) and in-transit requisitions that have gone quiet. The
// sweep is read-only on requisitions; it never runs transitions.
type Scheduler struct {
	cron   *cron.Cron
	store  StaleLister
	audit  AuditSink
	cfg    config.ReconcileConfig
	logger *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.ReconcileConfig, store StaleLister, audit AuditSink, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers and starts the sweep.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.CronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.sweep); err != nil {
		s.logger.Error("failed to schedule reconciliation sweep", zap.Error(err))
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.cfg.StaleAfter)
	stale, err := s.store.ListStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("reconciliation sweep failed", zap.Error(err))
		return
	}

	if len(stale) == 0 {
		s.logger.Debug("reconciliation sweep clean")
		return
	}

	for _, req := range stale {
		s.logger.Warn("requisition needs reconciliation",
			zap.String("id", req.ID),
			zap.String("number", req.Number),
			zap.String("status", string(req.Status)),
			zap.Bool("receiving", req.Receiving),
			zap.Time("updated_at", req.UpdatedAt))

		if s.audit == nil {
			continue
		}
		entry := models.AuditEntry{
			Action:        "reconcile.flag",
			Actor:         "scheduler",
			RequisitionID: req.ID,
			Timestamp:     time.Now().UTC(),
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			s.logger.Error("failed appending reconciliation flag", zap.String("id", req.ID), zap.Error(err))
		}
	}

	s.logger.Info("reconciliation sweep completed", zap.Int("flagged", len(stale)))
}
