package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type captureSender struct {
	mu   sync.Mutex
	sent []Toast
	err  error
}

func (c *captureSender) Send(_ context.Context, t Toast) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, t)
	return c.err
}

func (c *captureSender) Name() string { return "capture" }

type captureBus struct {
	domain.SignalBus
	mu       sync.Mutex
	channels []string
}

func (b *captureBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return nil
}

func TestNotifier_FiltersSendersButAlwaysPublishes(t *testing.T) {
	sender := &captureSender{}
	bus := &captureBus{}
	n := NewNotifier([]Sender{sender}, []string{EventTransactionFailed}, bus, discard)

	n.Toast(context.Background(), Toast{Event: EventTransactionSuccess, Level: LevelSuccess, Title: "ok"})
	n.Toast(context.Background(), Toast{Event: EventTransactionFailed, Level: LevelError, Title: "bad"})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "bad", sender.sent[0].Title)
	assert.False(t, sender.sent[0].Timestamp.IsZero())
	assert.Equal(t, []string{domain.ChannelToasts, domain.ChannelToasts}, bus.channels)
}

func TestNotifier_SenderErrorIsSwallowed(t *testing.T) {
	failing := &captureSender{err: errors.New("down")}
	ok := &captureSender{}
	n := NewNotifier([]Sender{failing, ok}, nil, nil, discard)

	n.Toast(context.Background(), Toast{Event: EventScenarioChanged, Title: "x"})
	assert.Len(t, ok.sent, 1)
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), Toast{Level: LevelSuccess, Title: "Settled", Message: "INE1"}))
	assert.Equal(t, "42", got["chat_id"])
	assert.Contains(t, got["text"], "*Settled*")
}

func TestDiscordSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Toast{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
