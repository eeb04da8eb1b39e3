package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// webhookValidator is implemented by the live Twilio client.
type webhookValidator interface {
	ValidateWebhook(url string, params map[string]string, signature string) bool
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithWebhookURL sets the public webhook URL Twilio signs. When set and the client can
// validate signatures, unsigned webhook requests are rejected.
func WithWebhookURL(url string) TwilioOption {
	return func(s *TwilioService) { s.webhookURL = url }
}

// TwilioService implements the Service interface using Twilio API
type TwilioService struct {
	client     twiliowhatsapp.Sender // Could be real Twilio client or MockClient
	validator  webhookValidator
	webhookURL string
	menus      *numberedMenus
	inbox      *inbox
	now        func() time.Time
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.Sender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		client: client,
		menus:  newNumberedMenus(),
		inbox:  newInbox("twilio"),
		now:    time.Now,
	}
	if v, ok := client.(webhookValidator); ok {
		s.validator = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Service.
func (s *TwilioService) Name() string { return "twilio" }

// Start is a no-op: inbound messages arrive through WebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channel.
func (s *TwilioService) Stop() error {
	if s.inbox.close() {
		slog.Info("TwilioService.Stop: stopped")
	}
	return nil
}

// Send delivers the message with its buttons rendered as a numbered list.
func (s *TwilioService) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	if s.inbox.isStopped() {
		return "", ErrServiceStopped
	}
	text, ref := s.menus.render(msg)
	if err := s.client.SendMessage(ctx, msg.To, text); err != nil {
		s.menus.forget(msg.To, ref)
		return "", fmt.Errorf("twilio send to %s: %w", msg.To, err)
	}
	return ref, nil
}

// RemoveButtons forgets the numbered list so a later digit reads as plain text.
func (s *TwilioService) RemoveButtons(ctx context.Context, to, messageRef string) error {
	s.menus.forget(to, messageRef)
	return nil
}

// AnswerCallback is a no-op for Twilio.
func (s *TwilioService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

// Events implements Service.
func (s *TwilioService) Events() <-chan models.InboundEvent {
	return s.inbox.events
}

// WebhookHandler handles inbound Twilio webhook requests and emits them as events.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.WebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil && s.webhookURL != "" {
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !s.validator.ValidateWebhook(s.webhookURL, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("TwilioService.WebhookHandler: invalid signature", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := whatsapp.CanonicalNumber(r.FormValue("From"))
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.WebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	contact := models.Contact{FirstName: r.FormValue("ProfileName")}
	s.inbox.emit(s.menus.inbound(r.FormValue("MessageSid"), from, contact, body, s.now()))

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}
