// Package notify delivers operator messages to a chat webhook. Delivery is
// fire-and-forget: a failed POST is logged and dropped, it never fails the
// trading cycle.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook builds a notifier posting to url. An empty url yields a
// notifier that silently drops everything.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Notify(text string) {
	if w.url == "" {
		return
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		log.Warn().Err(err).Msg("notify: marshal failed")
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("notify: webhook post failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("notify: webhook rejected message")
	}
}
