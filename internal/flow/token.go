package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Domain scopes a callback token to the question or menu that issued it.
type Domain string

const (
	DomainTask     Domain = "task"
	DomainBudget   Domain = "budget"
	DomainDeadline Domain = "deadline"
	DomainAction   Domain = "action"
	DomainMeeting  Domain = "meeting"
	DomainChat     Domain = "chat"
)

// Action and free-chat menu selectors.
const (
	SelectScheduleMeeting = "schedule_meeting"
	SelectSendMaterials   = "send_materials"
	SelectFreeChat        = "free_chat"
	SelectRestart         = "restart"
)

// Meeting menu selectors besides slot indexes.
const (
	SelectNextWeek   = "next_week"
	SelectCustomTime = "custom"
)

// ErrInvalidToken is returned for callback data that is not a well-formed token.
var ErrInvalidToken = errors.New("invalid callback token")

// Token is the callback payload carried by a button: {domain}:{prospect_id}:{selector}.
type Token struct {
	Domain     Domain
	ProspectID string
	Selector   string
}

// String encodes the token for the transport.
func (t Token) String() string {
	return string(t.Domain) + ":" + t.ProspectID + ":" + t.Selector
}

// ParseToken decodes callback data. The selector may itself contain colons.
func ParseToken(data string) (Token, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, data)
	}
	d := Domain(parts[0])
	switch d {
	case DomainTask, DomainBudget, DomainDeadline, DomainAction, DomainMeeting, DomainChat:
	default:
		return Token{}, fmt.Errorf("%w: unknown domain %q", ErrInvalidToken, parts[0])
	}
	return Token{Domain: d, ProspectID: parts[1], Selector: parts[2]}, nil
}

// chatSelector numbers a free-chat menu selector: "send_materials:3".
func chatSelector(sel string, menu int) string {
	return sel + ":" + strconv.Itoa(menu)
}

// splitChatSelector reverses chatSelector.
func splitChatSelector(s string) (string, int, bool) {
	sel, n, ok := strings.Cut(s, ":")
	if !ok || sel == "" {
		return "", 0, false
	}
	menu, err := strconv.Atoi(n)
	if err != nil {
		return "", 0, false
	}
	return sel, menu, true
}
