package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Email is an outbound email dispatch request.
type Email struct {
	To      string `json:"to_email"`
	From    string `json:"from_email"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Sender dispatches outbound email. Delivery guarantees beyond a synchronous
// accept/reject from the notification service are out of scope here.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Client sends email through the platform notification service's mailgun
// endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Send posts the email to the notification service. Any non-2xx response is
// an error; the caller decides whether that is fatal for its request.
func (c *Client) Send(ctx context.Context, email Email) error {
	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	url := c.baseURL + "/api/notification/mailgun"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Sender = (*Client)(nil)
