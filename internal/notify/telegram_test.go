package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pingpay/internal/config"
)

type fakeChannels struct {
	channels map[string]int64
}

func (f *fakeChannels) GetChatChannel(_ context.Context, handle string) (int64, bool, error) {
	id, ok := f.channels[handle]
	return id, ok, nil
}

func (f *fakeChannels) SaveChatChannel(_ context.Context, handle string, chatID int64) error {
	f.channels[handle] = chatID
	return nil
}

func newTestTelegram(apiURL string, channels *fakeChannels) *Telegram {
	cfg := config.TelegramConfig{
		BotToken:     "test-token",
		APIBaseURL:   apiURL,
		ClaimBaseURL: "http://localhost:5173/receive",
		PollInterval: time.Second,
	}
	return NewTelegram(cfg, channels, zerolog.New(nil))
}

func TestNotifyRecipientUnregistered(t *testing.T) {
	tg := newTestTelegram("http://unused.invalid", &fakeChannels{channels: map[string]int64{}})

	delivery := tg.NotifyRecipient(context.Background(), "ghost", "10", "token", "alice")
	if delivery.Delivered {
		t.Fatal("delivered to an unregistered handle")
	}
	if delivery.Reason != "recipient not reachable" {
		t.Errorf("reason = %q, want %q", delivery.Reason, "recipient not reachable")
	}
}

func TestNotifyRecipientSendsMessage(t *testing.T) {
	var got struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottest-token/sendMessage") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channels := &fakeChannels{channels: map[string]int64{"bob": 42}}
	tg := newTestTelegram(server.URL, channels)

	delivery := tg.NotifyRecipient(context.Background(), "@Bob", "10", "claim-token", "alice")
	if !delivery.Delivered {
		t.Fatalf("not delivered: %s", delivery.Reason)
	}
	if got.ChatID != 42 {
		t.Errorf("chat_id = %d, want 42", got.ChatID)
	}
	if !strings.Contains(got.Text, "10 USDC") || !strings.Contains(got.Text, "@alice") {
		t.Errorf("message text missing amount or sender: %q", got.Text)
	}
	if !strings.Contains(got.Text, "http://localhost:5173/receive") {
		t.Errorf("message text missing claim link: %q", got.Text)
	}
}

func TestNotifyRecipientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	channels := &fakeChannels{channels: map[string]int64{"bob": 42}}
	tg := newTestTelegram(server.URL, channels)

	if delivery := tg.NotifyRecipient(context.Background(), "bob", "10", "token", ""); delivery.Delivered {
		t.Fatal("delivery reported despite API failure")
	}
}

func TestHandleUpdateRegistersChannel(t *testing.T) {
	var welcomed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			welcomed = true
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channels := &fakeChannels{channels: map[string]int64{}}
	tg := newTestTelegram(server.URL, channels)

	var u update
	if err := json.Unmarshal([]byte(`{
		"update_id": 7,
		"message": {"text": "/start", "chat": {"id": 99}, "from": {"username": "Bob"}}
	}`), &u); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}

	tg.handleUpdate(context.Background(), u)

	if id, ok := channels.channels["bob"]; !ok || id != 99 {
		t.Errorf("channel registry = %v, want bob -> 99", channels.channels)
	}
	if !welcomed {
		t.Error("no welcome message sent for /start")
	}
}

func TestNopNotifier(t *testing.T) {
	delivery := Nop{}.NotifyRecipient(context.Background(), "bob", "10", "token", "")
	if delivery.Delivered {
		t.Fatal("nop notifier reported delivery")
	}
}
