package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// AuditPruner deletes audit events older than a cutoff.
type AuditPruner interface {
	PruneAuditEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// parseCronExpr tries 6-field (with seconds) then 5-field (standard) parsing.
// If timezone is non-empty and non-UTC, it is applied via the CRON_TZ= prefix.
func parseCronExpr(expr string, timezone string) (cron.Schedule, error) {
	if timezone != "" && timezone != "UTC" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser5.Parse(expr)
}

// RetentionScheduler periodically prunes audit events past their retention.
type RetentionScheduler struct {
	cron      *cron.Cron
	pruner    AuditPruner
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// NewRetentionScheduler registers the prune job on expr. The scheduler does
// nothing until Start.
func NewRetentionScheduler(pruner AuditPruner, expr string, retention time.Duration) (*RetentionScheduler, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	sched, err := parseCronExpr(expr, "")
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", expr, err)
	}
	s := &RetentionScheduler{
		cron:      cron.New(),
		pruner:    pruner,
		retention: retention,
		timeout:   time.Minute,
		now:       time.Now,
	}
	s.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			slog.Error("retention: prune failed", "err", err)
		}
	}))
	slog.Info("retention: registered cron job", "cron", expr, "retention", retention)
	return s, nil
}

// RunOnce prunes events older than the retention window.
func (s *RetentionScheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.pruner.PruneAuditEvents(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("retention: pruned audit events", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *RetentionScheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *RetentionScheduler) Stop() {
	<-s.cron.Stop().Done()
}
