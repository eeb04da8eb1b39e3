package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/notify"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/google/uuid"
)

// Sender delivers replies and handles button housekeeping on the transport.
type Sender interface {
	Send(ctx context.Context, msg models.OutgoingMessage) (string, error)
	RemoveButtons(ctx context.Context, to, messageRef string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Notifier alerts the business owner.
type Notifier interface {
	NotifyQualified(ctx context.Context, p models.Prospect) error
	NotifyMeeting(ctx context.Context, p models.Prospect, m models.Meeting) error
}

// Engine runs inbound events through the Machine and applies the outcomes.
type Engine struct {
	store    store.Store
	states   StateManager
	machine  *Machine
	sender   Sender
	notifier Notifier
	ownerID  string
	now      func() time.Time
}

// NewEngine wires an Engine. ownerID may be empty, which disables /stats.
func NewEngine(st store.Store, machine *Machine, sender Sender, notifier Notifier, ownerID string) *Engine {
	return &Engine{
		store:    st,
		states:   NewStoreBasedStateManager(st),
		machine:  machine,
		sender:   sender,
		notifier: notifier,
		ownerID:  ownerID,
		now:      time.Now,
	}
}

// Handle processes one inbound event. Upstream failures are answered inside; only
// persistence errors are returned.
func (e *Engine) Handle(ctx context.Context, ev models.InboundEvent) error {
	if ev.IsCallback() {
		return e.handleCallback(ctx, ev)
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		slog.Debug("Engine.Handle: ignoring empty message", "prospectID", ev.From)
		return nil
	}

	var event Event = TextEvent{Text: text}
	switch command(text) {
	case "/start":
		event = StartEvent{}
	case "/help":
		if _, err := e.touch(ctx, ev); err != nil {
			return err
		}
		e.send(ctx, ev.From, Reply{Text: HelpText})
		return nil
	case "/stats":
		e.send(ctx, ev.From, Reply{Text: e.statsText(ctx, ev.From)})
		return nil
	}

	p, err := e.touch(ctx, ev)
	if err != nil {
		return err
	}
	return e.step(ctx, *p, event, nil)
}

func (e *Engine) handleCallback(ctx context.Context, ev models.InboundEvent) error {
	cb := ev.Callback
	if cb.MessageRef != "" {
		if err := e.sender.RemoveButtons(ctx, ev.From, cb.MessageRef); err != nil {
			slog.Warn("Engine.handleCallback: remove buttons failed", "error", err, "prospectID", ev.From)
		}
	}

	tok, err := ParseToken(cb.Data)
	if err != nil || tok.ProspectID != ev.From {
		slog.Debug("Engine.handleCallback: ignoring foreign or malformed token", "prospectID", ev.From, "data", cb.Data)
		e.ack(ctx, cb)
		return nil
	}

	existing, err := e.store.GetProspect(ctx, ev.From)
	if err != nil {
		return fmt.Errorf("load prospect %s: %w", ev.From, err)
	}
	if existing == nil {
		slog.Warn("Engine.handleCallback: prospect missing, asking to restart", "prospectID", ev.From)
		if err := e.states.ResetState(ctx, ev.From); err != nil {
			return err
		}
		e.ack(ctx, cb)
		e.send(ctx, ev.From, Reply{Text: RestartText})
		return nil
	}

	p, err := e.touch(ctx, ev)
	if err != nil {
		return err
	}
	return e.step(ctx, *p, ButtonEvent{Token: tok}, cb)
}

// step runs one transition and applies it: session and prospect first, then side effects,
// then replies.
func (e *Engine) step(ctx context.Context, p models.Prospect, event Event, cb *models.Callback) error {
	s, err := e.states.GetState(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load state for %s: %w", p.ID, err)
	}

	out := e.machine.Step(ctx, p, s, event)
	if cb != nil {
		e.ack(ctx, cb)
	}
	if out.Stale {
		slog.Debug("Engine.step: stale interaction", "prospectID", p.ID, "state", stateName(s))
		return nil
	}

	if out.Restart {
		if err := e.states.ResetState(ctx, p.ID); err != nil {
			return err
		}
	}
	if qualificationChanged(p, out.Prospect) {
		out.Prospect.UpdatedAt = e.now().UTC()
		if err := e.store.SaveProspect(ctx, out.Prospect); err != nil {
			return fmt.Errorf("save prospect %s: %w", p.ID, err)
		}
		if p.Tier != out.Prospect.Tier {
			slog.Info("Engine.step: tier changed", "prospectID", p.ID, "from", p.Tier, "to", out.Prospect.Tier)
		}
	}
	if err := e.states.SetState(ctx, p.ID, out.Next); err != nil {
		return fmt.Errorf("save state for %s: %w", p.ID, err)
	}
	slog.Debug("Engine.step: transition", "prospectID", p.ID, "from", stateName(s), "to", stateName(out.Next))

	for _, eff := range out.Effects {
		if err := e.apply(ctx, out.Prospect, eff); err != nil {
			return err
		}
	}
	for _, r := range out.Replies {
		e.send(ctx, p.ID, r)
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, p models.Prospect, eff Effect) error {
	switch ef := eff.(type) {
	case RecordMessage:
		msg := models.ConversationMessage{
			ID:         uuid.NewString(),
			ProspectID: p.ID,
			Role:       ef.Role,
			Content:    ef.Content,
			CreatedAt:  e.now().UTC(),
		}
		if err := e.store.AddConversationMessage(ctx, msg); err != nil {
			return fmt.Errorf("record message for %s: %w", p.ID, err)
		}
	case BookMeeting:
		m := models.Meeting{
			ID:          uuid.NewString(),
			ProspectID:  p.ID,
			ScheduledAt: ef.At,
			Status:      models.MeetingStatusScheduled,
			CreatedAt:   e.now().UTC(),
		}
		if err := e.store.CreateMeeting(ctx, m); err != nil {
			return fmt.Errorf("create meeting for %s: %w", p.ID, err)
		}
		slog.Info("Engine.apply: meeting booked", "prospectID", p.ID, "meetingID", m.ID, "at", m.ScheduledAt)
		if err := e.notifier.NotifyMeeting(ctx, p, m); err != nil {
			slog.Error("Engine.apply: meeting notification failed", "error", err, "prospectID", p.ID, "meetingID", m.ID)
		}
	case NotifyQualified:
		if err := e.notifier.NotifyQualified(ctx, p); err != nil {
			slog.Error("Engine.apply: tier notification failed", "error", err, "prospectID", p.ID, "tier", ef.Tier)
		}
	}
	return nil
}

// touch records the inbound message on the prospect.
func (e *Engine) touch(ctx context.Context, ev models.InboundEvent) (*models.Prospect, error) {
	at := ev.Time
	if at.IsZero() {
		at = e.now()
	}
	p, err := e.store.TouchProspect(ctx, ev.From, ev.Contact, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("touch prospect %s: %w", ev.From, err)
	}
	return p, nil
}

func (e *Engine) send(ctx context.Context, to string, r Reply) {
	if _, err := e.sender.Send(ctx, models.OutgoingMessage{To: to, Text: r.Text, Buttons: r.Buttons}); err != nil {
		slog.Error("Engine.send: delivery failed", "error", err, "prospectID", to)
	}
}

func (e *Engine) ack(ctx context.Context, cb *models.Callback) {
	if cb.ID == "" {
		return
	}
	if err := e.sender.AnswerCallback(ctx, cb.ID, ""); err != nil {
		slog.Debug("Engine.ack: answer callback failed", "error", err)
	}
}

func (e *Engine) statsText(ctx context.Context, from string) string {
	if e.ownerID == "" || from != e.ownerID {
		return NoAccessText
	}
	now := e.now().In(e.machine.cfg.Location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats, err := e.store.Stats(ctx, midnight.UTC())
	if err != nil {
		slog.Error("Engine.statsText: stats failed", "error", err)
		return ApologyText
	}
	return notify.FormatStats(stats)
}

// command returns the bot command at the start of text, without arguments or a @bot suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func qualificationChanged(before, after models.Prospect) bool {
	return before.Task != after.Task || before.Budget != after.Budget ||
		before.Deadline != after.Deadline || before.Tier != after.Tier
}

func stateName(s State) models.StateType {
	if s == nil {
		return ""
	}
	return s.Kind()
}
