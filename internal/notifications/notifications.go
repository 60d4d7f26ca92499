package notifications

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultServer = "https://ntfy.sh"

var ErrDisabled = errors.New("notifications not configured")

// Client publishes push notifications to an ntfy topic.
type Client struct {
	server string
	topic  string
	http   *http.Client
}

// New returns a client for topic. An empty topic yields a disabled client whose
// Send returns ErrDisabled.
func New(server, topic string) *Client {
	if server == "" {
		server = defaultServer
	}
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
	} else {
		log.Info().Str("topic", topic).Msg("Ntfy notifications initialized")
	}
	return &Client{
		server: strings.TrimRight(server, "/"),
		topic:  topic,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.topic != ""
}

// Send publishes a notification to the configured topic.
func (c *Client) Send(title, message string) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	jsonData, err := json.Marshal(map[string]string{
		"topic":   c.topic,
		"title":   title,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.server, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().Str("title", title).Int("status", resp.StatusCode).Msg("Notification sent successfully")
	return nil
}
