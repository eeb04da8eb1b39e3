// Package twiliowhatsapp wraps the Twilio API for WhatsApp integration in LeadPipe.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender sends WhatsApp text messages through Twilio.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, also used to verify webhook signatures.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending WhatsApp number, with or without the "whatsapp:" prefix.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Address formats a phone number as a Twilio WhatsApp address.
func Address(number string) string {
	number = strings.TrimPrefix(strings.TrimSpace(number), "whatsapp:")
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return "whatsapp:" + number
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	validator twilioclient.RequestValidator
	from      string
}

// NewClient creates a Client. Unset options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("twiliowhatsapp.NewClient: config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	return &Client{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		validator: twilioclient.NewRequestValidator(cfg.AuthToken),
		from:      Address(cfg.FromNumber),
	}, nil
}

// SendMessage sends a WhatsApp message using Twilio API
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp.Sid != nil {
		slog.Debug("Client.SendMessage: sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// ValidateWebhook checks the X-Twilio-Signature of an inbound webhook request.
func (c *Client) ValidateWebhook(url string, params map[string]string, signature string) bool {
	return c.validator.Validate(url, params, signature)
}

// MockClient records sent messages instead of calling Twilio.
type MockClient struct {
	SentMessages []SentMessage
	Err          error
}

// SentMessage is one message recorded by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records the message or returns m.Err.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
