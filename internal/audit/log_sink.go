package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, e Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit",
		"id", e.ID,
		"action", e.Action,
		"org", e.OrganizationID,
		"user", e.UserID,
		"resource_type", e.ResourceType,
		"resource_id", e.ResourceID,
		"details", e.Details,
	)
	return nil
}
