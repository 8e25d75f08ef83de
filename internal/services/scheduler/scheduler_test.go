package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseCronExpr_5Field(t *testing.T) {
	sched, err := parseCronExpr("*/5 * * * *", "")
	if err != nil {
		t.Fatalf("expected 5-field expression to parse, got error: %v", err)
	}
	next := sched.Next(time.Now())
	if next.IsZero() {
		t.Fatal("expected non-zero next time")
	}
}

func TestParseCronExpr_6Field(t *testing.T) {
	sched, err := parseCronExpr("0 */5 * * * *", "")
	if err != nil {
		t.Fatalf("expected 6-field expression to parse, got error: %v", err)
	}
	next := sched.Next(time.Now())
	if next.IsZero() {
		t.Fatal("expected non-zero next time")
	}
}

func TestParseCronExpr_Invalid(t *testing.T) {
	_, err := parseCronExpr("invalid cron", "")
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestParseCronExpr_Timezone(t *testing.T) {
	if _, err := parseCronExpr("0 3 * * *", "Asia/Seoul"); err != nil {
		t.Fatalf("expected timezone expression to parse, got error: %v", err)
	}
}

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (p *fakePruner) PruneAuditEvents(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.n, p.err
}

func TestRetentionScheduler_RunOnce(t *testing.T) {
	p := &fakePruner{n: 3}
	s, err := NewRetentionScheduler(p, "0 3 * * *", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fixed := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	n, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 3 {
		t.Errorf("pruned = %d, want 3", n)
	}
	if want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC); !p.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoff, want)
	}

	p.err = errors.New("db down")
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Error("expected prune error")
	}
}

func TestNewRetentionScheduler_Invalid(t *testing.T) {
	if _, err := NewRetentionScheduler(&fakePruner{}, "bogus", time.Hour); err == nil {
		t.Error("expected parse error")
	}
	if _, err := NewRetentionScheduler(&fakePruner{}, "@daily", 0); err == nil {
		t.Error("expected retention error")
	}
}

func TestRetentionScheduler_StartStop(t *testing.T) {
	s, err := NewRetentionScheduler(&fakePruner{}, "@hourly", time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	s.Stop()
}
