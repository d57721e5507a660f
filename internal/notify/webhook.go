package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
)

// Notifier pushes operational events to an outbound webhook. Delivery is
// best effort and fire-and-forget: a dead webhook must never slow down or
// fail a trade path.
type Notifier struct {
	url    string
	client *http.Client
}

func New(cfg config.NotifyConfig) *Notifier {
	return &Notifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Send posts a titled message asynchronously. Safe to call on a nil or
// unconfigured notifier.
func (n *Notifier) Send(title, message string) {
	if !n.Enabled() {
		return
	}
	go n.post(title, message)
}

// SendSync posts a titled message and waits for delivery. The shutdown
// path uses this; main exits as soon as it returns, so a fire-and-forget
// goroutine would be killed before the request leaves the process.
func (n *Notifier) SendSync(title, message string) {
	if !n.Enabled() {
		return
	}
	n.post(title, message)
}

func (n *Notifier) post(title, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"title":     title,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Webhook delivery failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Debug().Str("status", fmt.Sprint(resp.StatusCode)).Msg("Webhook rejected")
	}
}
