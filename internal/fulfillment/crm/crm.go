package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-boxoffice/internal/logger"

	"github.com/cenkalti/backoff/v4"
)

const (
	StatusLead     = "Lead"
	StatusCustomer = "Customer"
)

// Contact is the webhook body the CRM expects.
type Contact struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Tag        string `json:"tag"`
	Status     string `json:"status"`
	EventName  string `json:"event_name"`
	Subscribed bool   `json:"subscribed"`
}

type Client struct {
	URL        string
	HTTP       *http.Client
	MaxRetries int
	// RetryInterval is the first backoff step; it doubles per attempt.
	RetryInterval time.Duration
	log           *logger.Logger
}

func NewClient(url string, timeout time.Duration, maxRetries int, log *logger.Logger) *Client {
	return &Client{
		URL:           url,
		HTTP:          &http.Client{Timeout: timeout},
		MaxRetries:    maxRetries,
		RetryInterval: 500 * time.Millisecond,
		log:           log,
	}
}

// Enabled is false when no webhook URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.URL != ""
}

// Push posts the contact, retrying transport errors and 5xx/429 responses
// with exponential backoff. Other 4xx responses fail immediately.
func (c *Client) Push(ctx context.Context, contact Contact) error {
	if !c.Enabled() {
		return nil
	}
	contact.Subscribed = true
	body, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("marshal crm contact: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("crm webhook returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("crm webhook rejected contact: %d", resp.StatusCode))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.RetryInterval
	var b backoff.BackOff = policy
	if c.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(policy, uint64(c.MaxRetries))
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("push %s contact %s after %d attempts: %w", contact.Status, contact.Email, attempt, err)
	}
	c.log.Info("CRM", fmt.Sprintf("Pushed %s contact %s with tag %q", contact.Status, contact.Email, contact.Tag))
	return nil
}
