// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in LeadPipe.
//
// It provides methods for sending messages and reading inbound text.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow device database
	DefaultSQLitePath = "/var/lib/leadpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// CanonicalNumber strips everything but digits from a phone number or JID user.
func CanonicalNumber(s string) string {
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return nonDigits.ReplaceAllString(s, "")
}

// Sender is an interface for sending WhatsApp messages (for production and testing)
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // print the raw pairing code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow device database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the raw pairing code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// driverFor picks the database/sql driver for the device store and reports whether a
// SQLite DSN lacks the foreign keys pragma whatsmeow relies on.
func driverFor(dsn string) (driver string, missingForeignKeys bool) {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres", false
	}
	return "sqlite3", !strings.Contains(dsn, "foreign_keys")
}

// Client wraps the Whatsmeow client
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient connects to WhatsApp, running the login flow when the device store holds no
// session yet.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("whatsapp.NewClient: no device DSN provided, using default", "path", dbDSN)
	}
	driver, missingFK := driverFor(dbDSN)
	if missingFK {
		slog.Warn("whatsapp.NewClient: SQLite device store without foreign keys; add '?_foreign_keys=on'",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	container, err := sqlstore.New(ctx, driver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	if waClient.Store.ID == nil {
		if err := login(ctx, waClient, cfg); err != nil {
			return nil, err
		}
	} else if err := waClient.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	slog.Info("whatsapp.NewClient: connected")
	return &Client{waClient: waClient}, nil
}

func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("whatsapp.login: login required, starting pairing flow")
	qrChan, _ := waClient.GetQRChannel(ctx)
	if err := waClient.Connect(); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("whatsapp.login: pairing event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(writer, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
		}
	}
	return nil
}

// SendMessage sends a plain text message to a phone number.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	number := CanonicalNumber(to)
	if number == "" {
		return fmt.Errorf("invalid recipient %q", to)
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, types.NewJID(number, JIDSuffix), msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", number, err)
	}
	slog.Debug("Client.SendMessage: sent", "to", number, "body_length", len(body))
	return nil
}

// AddEventHandler registers a whatsmeow event handler.
func (c *Client) AddEventHandler(handler func(evt interface{})) uint32 {
	return c.waClient.AddEventHandler(handler)
}

// Disconnect closes the WhatsApp connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// MessageText extracts the text of a plain or extended text message.
func MessageText(msg *waE2E.Message) (string, bool) {
	switch {
	case msg == nil:
		return "", false
	case msg.Conversation != nil:
		return msg.GetConversation(), true
	case msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != nil:
		return msg.GetExtendedTextMessage().GetText(), true
	default:
		return "", false
	}
}

// MockClient records sent messages instead of talking to WhatsApp.
type MockClient struct {
	Sent []SentMessage
	Err  error
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
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}
