package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/soochol/salesconnect/internal/audit"
)

// Message renders an audit event as a short human-readable line.
func Message(e audit.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Action, e.ResourceID)
	fmt.Fprintf(&b, " org=%s", e.OrganizationID)
	if e.UserID != "" {
		fmt.Fprintf(&b, " user=%s", e.UserID)
	}
	if p, ok := e.Details["provider"].(string); ok && p != "" {
		fmt.Fprintf(&b, " provider=%s", p)
	}
	return b.String()
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, service string) error {
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s send: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s API returned %d", service, resp.StatusCode)
	}
	return nil
}
