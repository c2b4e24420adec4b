package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hotpool/internal/model"
)

func sampleAlert() Alert {
	return Alert{
		PoolAddress:        "PoolAddr111",
		PoolName:           "BONK-SOL",
		Tier:               model.TierInstantAlert,
		Metrics:            model.Metrics{TVLUSD: 10000, FeeTVLRatioPct: 22, APRPct: 50, Fees30mUSD: 2200, Volume30mUSD: 880000},
		Snapshot:           model.MarketSnapshot{OrganicScore: 90, PriceChange5mPct: 1},
		Holders:            420,
		FeeTVLThresholdPct: 5,
		DetectedAt:         time.Now(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 1}})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	if received["parse_mode"] != "HTML" {
		t.Fatalf("parse_mode should be HTML: %#v", received)
	}
	if received["disable_web_page_preview"] != true {
		t.Fatalf("link previews should be disabled: %#v", received)
	}
	text, _ := received["text"].(string)
	if !strings.Contains(text, "INSTANT ALERT") || !strings.Contains(text, "PoolAddr111") {
		t.Fatalf("text missing alert content: %q", text)
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Bad Request: chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), sampleAlert())
	if err == nil {
		t.Fatal("ok=false should fail")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("error should carry the description: %v", err)
	}
}

func TestTelegramNotifierRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests: retry after 7",
			"parameters":  map[string]any{"retry_after": 7},
		})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), sampleAlert())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.RetryAfter != 7*time.Second {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestTelegramTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	const token = "123456:SECRET-TOKEN"
	notifier := NewTelegramNotifier(token, "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), sampleAlert())
	if err == nil {
		t.Fatal("closed server should fail")
	}
	if strings.Contains(err.Error(), "SECRET-TOKEN") || strings.Contains(err.Error(), "/bot") {
		t.Fatalf("error leaks the bot token: %v", err)
	}
	if !strings.Contains(err.Error(), "send telegram sendMessage request") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestTelegramCancelledContextStillDetectable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(ctx, sampleAlert())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if strings.Contains(err.Error(), "token") {
		t.Fatalf("error leaks the bot token: %v", err)
	}
}

func TestCommandListenerAnswersPing(t *testing.T) {
	var replies []map[string]any
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bottoken/getUpdates":
			calls++
			if calls == 2 && r.URL.Query().Get("offset") != "12" {
				t.Fatalf("offset should advance past handled updates, got %q", r.URL.Query().Get("offset"))
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":10,"message":{"text":"/ping@hotpool_bot","chat":{"id":-100}}},
				{"update_id":11,"message":{"text":"hello","chat":{"id":-100}}}
			]}`))
		case "/bottoken/sendMessage":
			body := map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			replies = append(replies, body)
			_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	listener := NewCommandListener(notifier, time.Second, testLogger())

	handled, err := listener.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce should succeed: %v", err)
	}
	if handled != 1 || len(replies) != 1 {
		t.Fatalf("expected one reply, handled=%d replies=%d", handled, len(replies))
	}
	if replies[0]["chat_id"] != "-100" || replies[0]["text"] != PongText {
		t.Fatalf("unexpected reply %#v", replies[0])
	}

	if _, err := listener.PollOnce(context.Background()); err != nil {
		t.Fatalf("second poll should succeed: %v", err)
	}
}

func TestIsCommand(t *testing.T) {
	cases := map[string]bool{
		"/ping":           true,
		"/PING now":       true,
		"/ping@some_bot":  true,
		"/pingpong":       false,
		"ping":            false,
		"":                false,
		"  /ping  ":       true,
	}
	for text, want := range cases {
		if got := isCommand(text, "ping"); got != want {
			t.Fatalf("isCommand(%q) = %v, want %v", text, got, want)
		}
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
