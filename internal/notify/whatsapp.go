package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WhatsAppChannel sends messages through the Twilio WhatsApp API.
type WhatsAppChannel struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

// WhatsAppOption configures the channel.
type WhatsAppOption func(*WhatsAppChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WhatsAppOption {
	return func(ch *WhatsAppChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) WhatsAppOption {
	return func(ch *WhatsAppChannel) {
		if baseURL != "" {
			ch.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewWhatsAppChannel constructs a Twilio WhatsApp channel.
func NewWhatsAppChannel(accountSID, authToken, from string, opts ...WhatsAppOption) (*WhatsAppChannel, error) {
	if accountSID == "" {
		return nil, errors.New("whatsapp channel: empty account sid")
	}
	if authToken == "" {
		return nil, errors.New("whatsapp channel: empty auth token")
	}
	if from == "" {
		return nil, errors.New("whatsapp channel: empty sender")
	}
	channel := &WhatsAppChannel{
		baseURL:    "https://api.twilio.com",
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts a form-encoded message create request.
func (c *WhatsAppChannel) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return errors.New("whatsapp channel: nil channel")
	}
	if msg.Phone == "" {
		return errors.New("whatsapp channel: empty phone")
	}
	if msg.Body == "" {
		return errors.New("whatsapp channel: empty body")
	}

	form := url.Values{}
	form.Set("From", "whatsapp:"+c.from)
	form.Set("To", "whatsapp:"+msg.Phone)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp channel: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
