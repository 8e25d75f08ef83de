package notify

import (
	"context"
	"errors"
	"net/http"

	"github.com/soochol/salesconnect/internal/audit"
)

// SlackSink posts audit events to a Slack incoming webhook.
type SlackSink struct {
	WebhookURL string
	Channel    string
	Client     *http.Client
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Deliver(ctx context.Context, e audit.Event) error {
	if s.WebhookURL == "" {
		return errors.New("slack sink missing webhook_url")
	}
	payload := map[string]string{"text": Message(e)}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	return postJSON(ctx, s.Client, s.WebhookURL, payload, "slack")
}
