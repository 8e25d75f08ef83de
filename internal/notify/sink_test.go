package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/soochol/salesconnect/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() audit.Event {
	return audit.NewEvent("O1", audit.ActionConnected, audit.ResourceIntegration, "hubspot_user").
		WithUser("U1").
		WithDetails(map[string]any{"provider": "hubspot"})
}

func TestMessage(t *testing.T) {
	msg := Message(testEvent())
	assert.Equal(t, "integration.connected hubspot_user org=O1 user=U1 provider=hubspot", msg)
}

func TestSlackSink_Deliver(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := &SlackSink{WebhookURL: srv.URL, Channel: "#audit", Client: srv.Client()}
	require.NoError(t, sink.Deliver(context.Background(), testEvent()))
	assert.Equal(t, "#audit", got["channel"])
	assert.Contains(t, got["text"], "integration.connected")
}

func TestSlackSink_Errors(t *testing.T) {
	err := (&SlackSink{}).Deliver(context.Background(), testEvent())
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	err = (&SlackSink{WebhookURL: srv.URL}).Deliver(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTelegramSink_Deliver(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := &TelegramSink{Token: "fake-token", ChatID: "12345", BaseURL: srv.URL + "/", Client: srv.Client()}
	require.NoError(t, sink.Deliver(context.Background(), testEvent()))
	assert.Equal(t, "/botfake-token/sendMessage", path)
	assert.Equal(t, "12345", body["chat_id"])
	assert.True(t, strings.HasPrefix(body["text"], "integration.connected"))
}

func TestTelegramSink_MissingChatID(t *testing.T) {
	err := (&TelegramSink{Token: "tok"}).Deliver(context.Background(), testEvent())
	assert.Error(t, err)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSink_Deliver(t *testing.T) {
	fw := &fakeWriter{}
	sink := &KafkaSink{writer: fw}

	e := testEvent()
	require.NoError(t, sink.Deliver(context.Background(), e))
	require.Len(t, fw.msgs, 1)

	msg := fw.msgs[0]
	assert.Equal(t, "O1", string(msg.Key))
	var decoded audit.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, audit.ActionConnected, decoded.Action)

	fw.err = errors.New("broker down")
	assert.Error(t, sink.Deliver(context.Background(), e))
}

type recordingStore struct{ events []audit.Event }

func (s *recordingStore) InsertAuditEvent(_ context.Context, e audit.Event) error {
	s.events = append(s.events, e)
	return nil
}

func TestStoreSink_Deliver(t *testing.T) {
	st := &recordingStore{}
	sink := &StoreSink{Store: st}
	require.NoError(t, sink.Deliver(context.Background(), testEvent()))
	require.Len(t, st.events, 1)
	assert.Equal(t, "db", sink.Name())
}
