package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// eventSource is implemented by the live whatsmeow client, not by the mock.
type eventSource interface {
	AddEventHandler(handler func(evt interface{})) uint32
}

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client whatsapp.Sender
	source eventSource
	menus  *numberedMenus
	inbox  *inbox
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{
		client: client,
		menus:  newNumberedMenus(),
		inbox:  newInbox("whatsapp"),
	}
	if src, ok := client.(eventSource); ok {
		s.source = src
	} else {
		slog.Debug("NewWhatsAppService: client does not deliver events (likely mock)")
	}
	return s
}

// Name implements Service.
func (s *WhatsAppService) Name() string { return "whatsapp" }

// Start registers the inbound message handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	s.source.AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService.Start: event handler registered")
	return nil
}

// Stop closes the event channel.
func (s *WhatsAppService) Stop() error {
	if s.inbox.close() {
		slog.Info("WhatsAppService.Stop: stopped")
	}
	return nil
}

// Send delivers the message with its buttons rendered as a numbered list.
func (s *WhatsAppService) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	if s.inbox.isStopped() {
		return "", ErrServiceStopped
	}
	text, ref := s.menus.render(msg)
	if err := s.client.SendMessage(ctx, msg.To, text); err != nil {
		s.menus.forget(msg.To, ref)
		return "", fmt.Errorf("whatsapp send to %s: %w", msg.To, err)
	}
	return ref, nil
}

// RemoveButtons forgets the numbered list so a later digit reads as plain text.
func (s *WhatsAppService) RemoveButtons(ctx context.Context, to, messageRef string) error {
	s.menus.forget(to, messageRef)
	return nil
}

// AnswerCallback is a no-op: WhatsApp has no callback acknowledgement.
func (s *WhatsAppService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

// Events implements Service.
func (s *WhatsAppService) Events() <-chan models.InboundEvent {
	return s.inbox.events
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}
	s.handleMessage(msg)
}

// handleMessage forwards private text messages from prospects.
func (s *WhatsAppService) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	text, ok := whatsapp.MessageText(evt.Message)
	if !ok {
		slog.Debug("WhatsAppService.handleMessage: ignoring non-text message", "from", evt.Info.Sender.User)
		return
	}
	from := whatsapp.CanonicalNumber(evt.Info.Sender.User)
	if from == "" {
		slog.Warn("WhatsAppService.handleMessage: sender without a number", "sender", evt.Info.Sender.String())
		return
	}
	contact := models.Contact{FirstName: evt.Info.PushName}
	s.inbox.emit(s.menus.inbound(string(evt.Info.ID), from, contact, text, evt.Info.Timestamp))
}
