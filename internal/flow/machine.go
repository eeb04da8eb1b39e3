package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/lead"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Defaults for Config fields left zero.
const (
	DefaultFreeChatThreshold = 5
	DefaultHistoryLimit      = 20
	DefaultTimezone          = "Europe/Moscow"
)

// Assistant answers free-form questions and reads typed meeting times.
type Assistant interface {
	Respond(ctx context.Context, p models.Prospect, history []models.ConversationMessage, text string) (genai.Decision, error)
	ExtractMeetingTime(ctx context.Context, text string, now time.Time, loc *time.Location) (time.Time, error)
}

// HistoryReader loads the recent free-chat history of a prospect.
type HistoryReader interface {
	GetConversationHistory(ctx context.Context, prospectID string, limit int) ([]models.ConversationMessage, error)
}

// Config holds the conversation settings of a business profile.
type Config struct {
	BusinessName        string
	BusinessDescription string
	Materials           Materials
	// FreeChatThreshold is the number of free-chat messages after which a meeting is suggested.
	FreeChatThreshold int
	HistoryLimit      int
	Location          *time.Location
}

// LoadLocation resolves a timezone name, falling back to a fixed UTC+3 zone when the
// tz database is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("LoadLocation: timezone unavailable, using UTC+3", "timezone", name, "error", err)
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// Machine computes conversation transitions. It performs no writes; the caller applies
// the returned Outcome.
type Machine struct {
	cfg       Config
	assistant Assistant
	history   HistoryReader
	now       func() time.Time
}

// NewMachine creates a Machine, filling unset Config fields with defaults.
func NewMachine(cfg Config, assistant Assistant, history HistoryReader) *Machine {
	if cfg.FreeChatThreshold <= 0 {
		cfg.FreeChatThreshold = DefaultFreeChatThreshold
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Location == nil {
		cfg.Location = LoadLocation(DefaultTimezone)
	}
	return &Machine{cfg: cfg, assistant: assistant, history: history, now: time.Now}
}

// Step computes the transition of prospect p in state s on event ev. A nil s means the
// prospect has no session.
func (m *Machine) Step(ctx context.Context, p models.Prospect, s State, ev Event) Outcome {
	switch e := ev.(type) {
	case StartEvent:
		return m.restart(p)
	case ButtonEvent:
		if (e.Token.Domain == DomainAction || e.Token.Domain == DomainChat) && e.Token.Selector == SelectRestart {
			if _, fresh := s.(TaskState); fresh {
				return stale(p, s)
			}
			return m.restart(p)
		}
	}

	switch st := s.(type) {
	case nil:
		if _, ok := ev.(TextEvent); ok {
			return m.restart(p)
		}
		return stale(p, s)
	case TaskState:
		return m.onTask(p, ev)
	case TaskCustomState:
		if e, ok := ev.(TextEvent); ok {
			return m.setTask(p, e.Text)
		}
	case BudgetState:
		return m.onBudget(p, ev)
	case BudgetCustomState:
		if e, ok := ev.(TextEvent); ok {
			return m.setBudget(p, lead.Answer{Text: e.Text})
		}
	case DeadlineState:
		return m.onDeadline(p, st, ev)
	case DeadlineCustomState:
		if e, ok := ev.(TextEvent); ok {
			return m.qualify(p, st.Budget, lead.Answer{Text: e.Text})
		}
	case ActionState:
		return m.onAction(ctx, p, st, ev)
	case FreeChatState:
		return m.onFreeChat(ctx, p, st, ev)
	case MeetingTimeState:
		if e, ok := ev.(TextEvent); ok {
			return m.onMeetingTime(ctx, p, st, e.Text)
		}
	}
	return stale(p, s)
}

func stale(p models.Prospect, s State) Outcome {
	return Outcome{Next: s, Prospect: p, Stale: true}
}

func (m *Machine) restart(p models.Prospect) Outcome {
	p.ResetQualification()
	return Outcome{
		Next:     TaskState{},
		Prospect: p,
		Restart:  true,
		Replies: []Reply{
			{Text: greetingText(p, m.cfg.BusinessName, m.cfg.BusinessDescription)},
			{Text: taskQuestion, Buttons: TaskKeyboard(p.ID)},
		},
	}
}

// buttonFor returns the selector of a press in domain d.
func buttonFor(ev Event, d Domain) (string, bool) {
	b, ok := ev.(ButtonEvent)
	if !ok || b.Token.Domain != d {
		return "", false
	}
	return b.Token.Selector, true
}

func (m *Machine) onTask(p models.Prospect, ev Event) Outcome {
	if e, ok := ev.(TextEvent); ok {
		return m.setTask(p, e.Text)
	}
	sel, ok := buttonFor(ev, DomainTask)
	if !ok {
		return stale(p, TaskState{})
	}
	if sel == lead.CustomKey {
		return Outcome{Next: TaskCustomState{}, Prospect: p, Replies: []Reply{{Text: taskCustomPrompt}}}
	}
	opt, ok := lead.LookupOption(lead.TaskOptions, sel)
	if !ok {
		return stale(p, TaskState{})
	}
	return m.setTask(p, opt.Label)
}

func (m *Machine) setTask(p models.Prospect, task string) Outcome {
	p.Task = task
	return Outcome{
		Next:     BudgetState{},
		Prospect: p,
		Replies:  []Reply{{Text: budgetQuestion, Buttons: BudgetKeyboard(p.ID)}},
	}
}

func (m *Machine) onBudget(p models.Prospect, ev Event) Outcome {
	if e, ok := ev.(TextEvent); ok {
		return m.setBudget(p, lead.Answer{Text: e.Text})
	}
	sel, ok := buttonFor(ev, DomainBudget)
	if !ok {
		return stale(p, BudgetState{})
	}
	if sel == lead.CustomKey {
		return Outcome{Next: BudgetCustomState{}, Prospect: p, Replies: []Reply{{Text: budgetCustomPrompt}}}
	}
	opt, ok := lead.LookupOption(lead.BudgetOptions, sel)
	if !ok {
		return stale(p, BudgetState{})
	}
	return m.setBudget(p, lead.Answer{Key: opt.Key, Text: opt.Label})
}

func (m *Machine) setBudget(p models.Prospect, budget lead.Answer) Outcome {
	p.Budget = budget.Text
	return Outcome{
		Next:     DeadlineState{Budget: budget},
		Prospect: p,
		Replies:  []Reply{{Text: deadlineQuestion, Buttons: DeadlineKeyboard(p.ID)}},
	}
}

func (m *Machine) onDeadline(p models.Prospect, st DeadlineState, ev Event) Outcome {
	if e, ok := ev.(TextEvent); ok {
		return m.qualify(p, st.Budget, lead.Answer{Text: e.Text})
	}
	sel, ok := buttonFor(ev, DomainDeadline)
	if !ok {
		return stale(p, st)
	}
	if sel == lead.CustomKey {
		return Outcome{Next: DeadlineCustomState(st), Prospect: p, Replies: []Reply{{Text: deadlineCustomPrompt}}}
	}
	opt, ok := lead.LookupOption(lead.DeadlineOptions, sel)
	if !ok {
		return stale(p, st)
	}
	return m.qualify(p, st.Budget, lead.Answer{Key: opt.Key, Text: opt.Label})
}

// qualify finishes the pass. The owner notification for a newly notable tier is held in
// ActionState until the prospect picks a next step.
func (m *Machine) qualify(p models.Prospect, budget, deadline lead.Answer) Outcome {
	p.Deadline = deadline.Text
	prev := p.Tier
	p.Tier = lead.Promote(prev, lead.Qualify(budget, deadline))

	next := ActionState{}
	if lead.Improved(prev, p.Tier) && lead.Notable(p.Tier) {
		next.Pending = &NotifyQualified{Tier: p.Tier}
	}
	return Outcome{
		Next:     next,
		Prospect: p,
		Replies:  []Reply{{Text: summaryText(p), Buttons: ActionKeyboard(p.ID, p.Tier)}},
	}
}

// flush releases a deferred notification.
func flush(pending *NotifyQualified) []Effect {
	if pending == nil {
		return nil
	}
	return []Effect{*pending}
}

func (m *Machine) onAction(ctx context.Context, p models.Prospect, st ActionState, ev Event) Outcome {
	if e, ok := ev.(TextEvent); ok {
		out := m.chat(ctx, p, FreeChatState{Slots: st.Slots}, e.Text)
		out.Effects = append(flush(st.Pending), out.Effects...)
		return out
	}
	if sel, ok := buttonFor(ev, DomainMeeting); ok && st.Slots != nil {
		return m.chooseSlot(p, sel, st, st.Slots, st.Pending, FreeChatState{})
	}
	sel, ok := buttonFor(ev, DomainAction)
	if !ok || st.Slots != nil {
		return stale(p, st)
	}

	switch sel {
	case SelectScheduleMeeting:
		if p.Tier == models.TierCold {
			return m.declineMeeting(p, FreeChatState{})
		}
		offered := OfferSlots(m.now(), m.cfg.Location)
		return Outcome{
			Next:     ActionState{Pending: st.Pending, Slots: offered},
			Prospect: p,
			Replies:  []Reply{{Text: meetingQuestion, Buttons: MeetingKeyboard(p.ID, offered)}},
		}
	case SelectSendMaterials:
		out := m.sendMaterials(p, FreeChatState{})
		out.Effects = flush(st.Pending)
		return out
	case SelectFreeChat:
		return Outcome{
			Next:     FreeChatState{},
			Prospect: p,
			Replies:  []Reply{{Text: freeChatPrompt}},
			Effects:  flush(st.Pending),
		}
	}
	return stale(p, st)
}

func (m *Machine) onFreeChat(ctx context.Context, p models.Prospect, st FreeChatState, ev Event) Outcome {
	if e, ok := ev.(TextEvent); ok {
		return m.chat(ctx, p, st, e.Text)
	}
	if sel, ok := buttonFor(ev, DomainMeeting); ok && st.Slots != nil {
		return m.chooseSlot(p, sel, st, st.Slots, nil, FreeChatState{Exchanges: st.Exchanges, Menu: st.Menu})
	}
	raw, ok := buttonFor(ev, DomainChat)
	if !ok {
		return stale(p, st)
	}
	sel, menu, ok := splitChatSelector(raw)
	if !ok || menu != st.Menu {
		return stale(p, st)
	}

	switch sel {
	case SelectScheduleMeeting:
		if st.Slots != nil {
			return stale(p, st)
		}
		if p.Tier == models.TierCold {
			return m.declineMeeting(p, st)
		}
		st.Menu++
		st.Slots = OfferSlots(m.now(), m.cfg.Location)
		return Outcome{
			Next:     st,
			Prospect: p,
			Replies:  []Reply{{Text: meetingQuestion, Buttons: MeetingKeyboard(p.ID, st.Slots)}},
		}
	case SelectSendMaterials:
		return m.sendMaterials(p, st)
	}
	return stale(p, st)
}

// declineMeeting and sendMaterials answer with a fresh free-chat menu, retiring the one pressed.
func (m *Machine) declineMeeting(p models.Prospect, next FreeChatState) Outcome {
	next.Menu++
	return Outcome{
		Next:     next,
		Prospect: p,
		Replies:  []Reply{{Text: coldDecline, Buttons: FreeChatKeyboard(p.ID, p.Tier, next.Menu)}},
	}
}

func (m *Machine) sendMaterials(p models.Prospect, next FreeChatState) Outcome {
	if m.cfg.Materials.Empty() {
		slog.Warn("Machine.sendMaterials: no materials configured", "prospectID", p.ID)
	}
	next.Menu++
	return Outcome{
		Next:     next,
		Prospect: p,
		Replies:  []Reply{{Text: m.cfg.Materials.Text(), Buttons: FreeChatKeyboard(p.ID, p.Tier, next.Menu)}},
	}
}

// chooseSlot handles a press on the meeting menu shown in current. after is the state
// entered once the meeting is booked; a pending notification is dropped because the booking
// alert supersedes it.
func (m *Machine) chooseSlot(p models.Prospect, sel string, current State, offered Slots, pending *NotifyQualified, after FreeChatState) Outcome {
	if sel == SelectCustomTime {
		return Outcome{
			Next:     MeetingTimeState{Pending: pending},
			Prospect: p,
			Replies:  []Reply{{Text: meetingCustomPrompt}},
		}
	}
	at, ok := offered[sel]
	if !ok {
		return stale(p, current)
	}
	now := m.now()
	if !at.After(now) {
		fresh := OfferSlots(now, m.cfg.Location)
		return Outcome{
			Next:     withSlots(current, fresh),
			Prospect: p,
			Replies:  []Reply{{Text: meetingPast}, {Text: meetingQuestion, Buttons: MeetingKeyboard(p.ID, fresh)}},
		}
	}
	return m.book(p, at, after)
}

// withSlots replaces the offered meeting slots of a menu-carrying state.
func withSlots(s State, slots Slots) State {
	switch st := s.(type) {
	case ActionState:
		st.Slots = slots
		return st
	case FreeChatState:
		st.Slots = slots
		return st
	}
	return s
}

func (m *Machine) book(p models.Prospect, at time.Time, next FreeChatState) Outcome {
	next.Slots = nil
	return Outcome{
		Next:     next,
		Prospect: p,
		Replies:  []Reply{{Text: meetingBooked(FormatSlot(at.In(m.cfg.Location)))}},
		Effects:  []Effect{BookMeeting{At: at}},
	}
}

func (m *Machine) onMeetingTime(ctx context.Context, p models.Prospect, st MeetingTimeState, text string) Outcome {
	now := m.now()
	at, err := m.assistant.ExtractMeetingTime(ctx, text, now, m.cfg.Location)
	if err != nil {
		reply := meetingUnparsed
		if !errors.Is(err, genai.ErrUnparseableTime) {
			slog.Error("Machine.onMeetingTime: assistant failed", "error", err, "prospectID", p.ID)
			reply = ApologyText
		}
		return Outcome{Next: st, Prospect: p, Replies: []Reply{{Text: reply}}}
	}
	if !at.After(now) {
		return Outcome{Next: st, Prospect: p, Replies: []Reply{{Text: meetingPast}}}
	}
	return m.book(p, at, FreeChatState{})
}

// chat answers a free-form message. Every message counts towards the threshold; reaching
// it resets the counter and appends a meeting suggestion.
func (m *Machine) chat(ctx context.Context, p models.Prospect, st FreeChatState, text string) Outcome {
	st.Exchanges++
	out := Outcome{Prospect: p}
	out.Effects = append(out.Effects, RecordMessage{Role: models.RoleUser, Content: text})

	history, err := m.history.GetConversationHistory(ctx, p.ID, m.cfg.HistoryLimit)
	if err != nil {
		slog.Warn("Machine.chat: history unavailable", "error", err, "prospectID", p.ID)
		history = nil
	}

	reply := Reply{Text: ApologyText}
	var extra []Reply
	d, err := m.assistant.Respond(ctx, p, history, text)
	if err != nil {
		slog.Error("Machine.chat: assistant failed", "error", err, "prospectID", p.ID)
	} else {
		reply.Text = d.Reply
		out.Effects = append(out.Effects, RecordMessage{Role: models.RoleAssistant, Content: d.Reply})

		prev := p.Tier
		p.Tier = lead.Promote(prev, d.Tier)
		if lead.Improved(prev, p.Tier) && lead.Notable(p.Tier) {
			out.Effects = append(out.Effects, NotifyQualified{Tier: p.Tier})
		}

		switch d.Action {
		case genai.ActionScheduleMeeting:
			if p.Tier != models.TierCold && st.Slots == nil {
				st.Slots = OfferSlots(m.now(), m.cfg.Location)
				extra = append(extra, Reply{Text: meetingQuestion, Buttons: MeetingKeyboard(p.ID, st.Slots)})
			}
		case genai.ActionSendMaterials:
			if !m.cfg.Materials.Empty() {
				extra = append(extra, Reply{Text: m.cfg.Materials.Text()})
			}
		}
	}

	if st.Exchanges >= m.cfg.FreeChatThreshold {
		st.Exchanges = 0
		if p.Tier != models.TierCold {
			st.Menu++
			reply.Text = strings.TrimSpace(reply.Text) + "\n\n" + meetingSuggestion
			reply.Buttons = FreeChatKeyboard(p.ID, p.Tier, st.Menu)
		}
	}

	out.Next = st
	out.Prospect = p
	out.Replies = append([]Reply{reply}, extra...)
	return out
}
