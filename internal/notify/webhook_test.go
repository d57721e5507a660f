package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/lohit-dev/arb-vol/internal/config"
)

func TestSendSyncDeliversBeforeReturning(t *testing.T) {
	var delivered atomic.Int32
	var gotTitle atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading webhook body: %v", err)
			return
		}
		var payload map[string]string
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decoding webhook payload: %v", err)
			return
		}
		gotTitle.Store(payload["title"])
		delivered.Add(1)
	}))
	defer srv.Close()

	n := New(config.NotifyConfig{WebhookURL: srv.URL})
	n.SendSync("Bot stopped", "shutdown complete")

	// SendSync must not return until the POST has been answered.
	if got := delivered.Load(); got != 1 {
		t.Fatalf("delivered = %d requests at SendSync return, want 1", got)
	}
	if title, _ := gotTitle.Load().(string); title != "Bot stopped" {
		t.Errorf("title = %q, want %q", title, "Bot stopped")
	}
}

func TestNilAndUnconfiguredNotifierAreSafe(t *testing.T) {
	var nilNotifier *Notifier
	nilNotifier.Send("a", "b")
	nilNotifier.SendSync("a", "b")

	n := New(config.NotifyConfig{})
	if n.Enabled() {
		t.Error("notifier without a URL reports enabled")
	}
	n.Send("a", "b")
	n.SendSync("a", "b")
}
