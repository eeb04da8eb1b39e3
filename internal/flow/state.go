// Package flow implements the qualification conversation.
//
// A prospect's position in the conversation is a State value. Machine.Step is a pure
// transition from (prospect, state, event) to an Outcome; Engine loads the session, runs the
// step and applies the outcome to the store, the transport and the notifier.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/lead"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// State is the position of a prospect in the qualification conversation.
type State interface {
	Kind() models.StateType
	isState()
}

// Slots maps meeting selectors to the instants that were offered for them.
type Slots map[string]time.Time

// TaskState waits for the task question to be answered.
type TaskState struct{}

// TaskCustomState waits for a typed task description.
type TaskCustomState struct{}

// BudgetState waits for the budget question to be answered.
type BudgetState struct{}

// BudgetCustomState waits for a typed budget.
type BudgetCustomState struct{}

// DeadlineState waits for the deadline answer and remembers how the budget was given.
type DeadlineState struct {
	Budget lead.Answer
}

// DeadlineCustomState waits for a typed deadline.
type DeadlineCustomState struct {
	Budget lead.Answer
}

// ActionState follows a finished qualification pass. Pending holds the owner notification
// deferred until the prospect picks a next step; Slots is set once a meeting menu was shown.
type ActionState struct {
	Pending *NotifyQualified
	Slots   Slots
}

// FreeChatState answers free-form questions with the assistant. Menu numbers the latest
// free-chat keyboard sent; presses on older keyboards are stale.
type FreeChatState struct {
	Exchanges int
	Menu      int
	Slots     Slots
}

// MeetingTimeState waits for a typed meeting time.
type MeetingTimeState struct {
	Pending *NotifyQualified
}

func (TaskState) Kind() models.StateType           { return models.StateTask }
func (TaskCustomState) Kind() models.StateType     { return models.StateTaskCustomInput }
func (BudgetState) Kind() models.StateType         { return models.StateBudget }
func (BudgetCustomState) Kind() models.StateType   { return models.StateBudgetCustomInput }
func (DeadlineState) Kind() models.StateType       { return models.StateDeadline }
func (DeadlineCustomState) Kind() models.StateType { return models.StateDeadlineCustomInput }
func (ActionState) Kind() models.StateType         { return models.StateAction }
func (FreeChatState) Kind() models.StateType       { return models.StateFreeChat }
func (MeetingTimeState) Kind() models.StateType    { return models.StateMeetingCustomTime }

func (TaskState) isState()           {}
func (TaskCustomState) isState()     {}
func (BudgetState) isState()         {}
func (BudgetCustomState) isState()   {}
func (DeadlineState) isState()       {}
func (DeadlineCustomState) isState() {}
func (ActionState) isState()         {}
func (FreeChatState) isState()       {}
func (MeetingTimeState) isState()    {}

// Event is an inbound interaction from the prospect.
type Event interface {
	isEvent()
}

// TextEvent is a typed message.
type TextEvent struct {
	Text string
}

// ButtonEvent is a button press carrying a parsed token.
type ButtonEvent struct {
	Token Token
}

// StartEvent is the /start command.
type StartEvent struct{}

func (TextEvent) isEvent()   {}
func (ButtonEvent) isEvent() {}
func (StartEvent) isEvent()  {}

// Effect is a side effect requested by a transition and carried out by the Engine.
type Effect interface {
	isEffect()
}

// NotifyQualified alerts the owner that the prospect reached a notable tier.
type NotifyQualified struct {
	Tier models.Tier
}

// BookMeeting creates a scheduled meeting and alerts the owner.
type BookMeeting struct {
	At time.Time
}

// RecordMessage appends to the prospect's conversation history.
type RecordMessage struct {
	Role    models.MessageRole
	Content string
}

func (NotifyQualified) isEffect() {}
func (BookMeeting) isEffect()     {}
func (RecordMessage) isEffect()   {}

// Reply is an outgoing message to the prospect.
type Reply struct {
	Text    string
	Buttons [][]models.Button
}

// Outcome is the result of one transition.
type Outcome struct {
	Next     State
	Prospect models.Prospect
	Replies  []Reply
	Effects  []Effect
	// Stale marks an event that did not apply to the current state; nothing else is set.
	Stale bool
	// Restart marks a cleared session; Next is the fresh TaskState.
	Restart bool
}

// StateManager persists conversation state per prospect.
type StateManager interface {
	// GetState returns nil when the prospect has no session.
	GetState(ctx context.Context, prospectID string) (State, error)
	// SetState replaces the session with s.
	SetState(ctx context.Context, prospectID string, s State) error
	// ResetState removes the session.
	ResetState(ctx context.Context, prospectID string) error
}
