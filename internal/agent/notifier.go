// Package agent is the thin client side of the external autonomous agent:
// a fire-and-forget wake webhook. The agent itself is an opaque
// collaborator that reads the pending queue and writes the presence file
// and spatial cache out-of-band.
package agent

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notifier delivers wake notifications to the agent webhook.
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier creates a notifier targeting url. Returns nil if url is empty
// (wakes disabled).
func NewNotifier(url string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify POSTs {"message": ...} to the webhook. At-most-once: failures are
// logged, never retried, never surfaced to whoever triggered the wake.
func (n *Notifier) Notify(message string) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		slog.Error("wake marshal failed", "error", err)
		return
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Warn("wake delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		slog.Warn("wake rejected", "status", resp.StatusCode)
		return
	}
	slog.Debug("wake delivered", "url", n.url)
}
