package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/soochol/salesconnect/internal/audit"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSink sends audit events through the Telegram Bot API.
type TelegramSink struct {
	Token  string
	ChatID string
	// BaseURL overrides the Bot API host.
	BaseURL string
	Client  *http.Client
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Deliver(ctx context.Context, e audit.Event) error {
	if s.Token == "" || s.ChatID == "" {
		return errors.New("telegram sink requires token and chat_id")
	}
	base := s.BaseURL
	if base == "" {
		base = telegramAPI
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(base, "/"), s.Token)
	return postJSON(ctx, s.Client, url, map[string]string{
		"chat_id": s.ChatID,
		"text":    Message(e),
	}, "telegram")
}
