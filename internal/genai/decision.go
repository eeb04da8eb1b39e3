package genai

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Action is the follow-up the model suggests alongside its reply.
type Action string

const (
	ActionContinue        Action = "continue"
	ActionScheduleMeeting Action = "schedule_meeting"
	ActionSendMaterials   Action = "send_materials"
)

// ParseAction matches s against the known actions; anything else is ActionContinue.
func ParseAction(s string) Action {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionScheduleMeeting, ActionSendMaterials:
		return a
	default:
		return ActionContinue
	}
}

// Decision is the normalized model reply consumed by the conversation engine.
type Decision struct {
	Reply     string
	Tier      models.Tier
	Action    Action
	Reasoning string
}

// ParseResult is the outcome of decoding a model reply: either Ok or Malformed.
type ParseResult interface {
	isParseResult()
}

// Ok is a well-formed reply. TierKnown is false when the status did not name a known tier.
type Ok struct {
	Decision  Decision
	TierKnown bool
}

// Malformed carries the original text of a reply that could not be decoded.
type Malformed struct {
	Raw string
}

func (Ok) isParseResult()        {}
func (Malformed) isParseResult() {}

// wireDecision is the JSON object the system prompt asks for.
type wireDecision struct {
	Response  *string `json:"response"`
	Status    string  `json:"status"`
	Action    string  `json:"action"`
	Reasoning string  `json:"reasoning"`
}

// ParseDecision strips an optional code fence and decodes the reply. A reply that is not a
// JSON object with a string "response" field is Malformed.
func ParseDecision(raw string) ParseResult {
	var w wireDecision
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &w); err != nil || w.Response == nil {
		return Malformed{Raw: raw}
	}
	tier, known := models.ParseTier(w.Status)
	return Ok{
		Decision: Decision{
			Reply:     *w.Response,
			Tier:      tier,
			Action:    ParseAction(w.Action),
			Reasoning: w.Reasoning,
		},
		TierKnown: known,
	}
}

// Parse resolves a model reply to a Decision, never failing. Unknown tiers fall back to
// defaultTier; undecodable replies become the reply text verbatim.
func Parse(raw string, defaultTier models.Tier) Decision {
	switch r := ParseDecision(raw).(type) {
	case Ok:
		d := r.Decision
		if !r.TierKnown {
			d.Tier = defaultTier
		}
		return d
	case Malformed:
		return Decision{Reply: r.Raw, Tier: defaultTier, Action: ActionContinue}
	default:
		return Decision{Reply: raw, Tier: defaultTier, Action: ActionContinue}
	}
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrapping.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ErrUnparseableTime is returned when the model could not extract a meeting time.
var ErrUnparseableTime = errors.New("meeting time could not be parsed")

// wireMeetingTime is the JSON object returned by the meeting-time prompt.
type wireMeetingTime struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Error string `json:"error"`
}

// ParseMeetingTime decodes {"date":"YYYY-MM-DD","time":"HH:MM"} into an instant in loc.
func ParseMeetingTime(raw string, loc *time.Location) (time.Time, error) {
	var w wireMeetingTime
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &w); err != nil {
		return time.Time{}, ErrUnparseableTime
	}
	if w.Error != "" || w.Date == "" || w.Time == "" {
		return time.Time{}, ErrUnparseableTime
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", w.Date+" "+w.Time, loc)
	if err != nil {
		return time.Time{}, ErrUnparseableTime
	}
	return t, nil
}
