// Package models defines the core data structures for LeadPipe.
//
// It includes prospects, meetings, conversation records and the API envelope shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Tier is the priority classification assigned to a prospect.
type Tier string

const (
	// TierNew is assigned on first contact and after an explicit restart.
	TierNew Tier = "NEW"
	// TierCold marks a prospect with no urgency and no meaningful budget.
	TierCold Tier = "COLD"
	// TierWarm marks a prospect worth nurturing.
	TierWarm Tier = "WARM"
	// TierHot marks a prospect ready for a meeting.
	TierHot Tier = "HOT"
)

// AllTiers lists tiers in rank order.
var AllTiers = []Tier{TierNew, TierCold, TierWarm, TierHot}

// Rank returns the priority rank of the tier (NEW=0, COLD=1, WARM=2, HOT=3).
// Unknown tiers rank below NEW.
func (t Tier) Rank() int {
	switch t {
	case TierNew:
		return 0
	case TierCold:
		return 1
	case TierWarm:
		return 2
	case TierHot:
		return 3
	default:
		return -1
	}
}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// ParseTier matches s case-insensitively against the known tiers.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// Error variables shared by stores and the conversation engine.
var (
	ErrEmptyProspectID  = errors.New("prospect id cannot be empty")
	ErrProspectNotFound = errors.New("prospect not found")
	ErrInvalidTier      = errors.New("invalid tier")
)

// Prospect is a platform user engaging with the assistant.
type Prospect struct {
	ID            string    `json:"id"` // platform user id, also the chat address
	Username      string    `json:"username,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Tier          Tier      `json:"tier"`
	Task          string    `json:"task,omitempty"`
	Budget        string    `json:"budget,omitempty"`
	Deadline      string    `json:"deadline,omitempty"`
	FollowUpCount int       `json:"follow_up_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewProspect returns a prospect on first contact.
func NewProspect(id string, contact Contact, now time.Time) Prospect {
	return Prospect{
		ID:            id,
		Username:      contact.Username,
		FirstName:     contact.FirstName,
		LastName:      contact.LastName,
		Tier:          TierNew,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the prospect before it is persisted.
func (p Prospect) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyProspectID
	}
	if !p.Tier.Valid() {
		return ErrInvalidTier
	}
	return nil
}

// DisplayName returns the best human-readable name available.
func (p Prospect) DisplayName() string {
	switch {
	case p.FirstName != "":
		return p.FirstName
	case p.Username != "":
		return p.Username
	default:
		return "User " + p.ID
	}
}

// ResetQualification clears the answers of the qualification pass and drops the tier to NEW.
func (p *Prospect) ResetQualification() {
	p.Task = ""
	p.Budget = ""
	p.Deadline = ""
	p.Tier = TierNew
}

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusCompleted MeetingStatus = "completed"
	MeetingStatusCancelled MeetingStatus = "cancelled"
)

// Meeting is a call booked by a prospect.
type Meeting struct {
	ID          string        `json:"id"`
	ProspectID  string        `json:"prospect_id"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Status      MeetingStatus `json:"status"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// MessageRole identifies the author of a stored conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationMessage is one entry of a prospect's free-chat history.
type ConversationMessage struct {
	ID         string      `json:"id"`
	ProspectID string      `json:"prospect_id"`
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Stats summarizes the prospect base for the owner.
type Stats struct {
	TotalProspects    int          `json:"total_prospects" yaml:"total_prospects"`
	NewToday          int          `json:"new_today" yaml:"new_today"`
	ByTier            map[Tier]int `json:"by_tier" yaml:"by_tier"`
	ScheduledMeetings int          `json:"scheduled_meetings" yaml:"scheduled_meetings"`
	LastHot           *Prospect    `json:"last_hot,omitempty" yaml:"last_hot,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
