package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/lead"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// ErrUnknownState is returned when a stored session names a state this version does not know.
var ErrUnknownState = errors.New("unknown flow state")

// EncodeState flattens s into the string map stored with the session.
func EncodeState(s State) (models.StateType, map[models.DataKey]string, error) {
	data := make(map[models.DataKey]string)
	switch st := s.(type) {
	case DeadlineState:
		encodeBudget(data, st.Budget)
	case DeadlineCustomState:
		encodeBudget(data, st.Budget)
	case ActionState:
		encodePending(data, st.Pending)
		if err := encodeSlots(data, st.Slots); err != nil {
			return "", nil, err
		}
	case FreeChatState:
		data[models.DataKeyExchanges] = strconv.Itoa(st.Exchanges)
		if st.Menu != 0 {
			data[models.DataKeyMenu] = strconv.Itoa(st.Menu)
		}
		if err := encodeSlots(data, st.Slots); err != nil {
			return "", nil, err
		}
	case MeetingTimeState:
		encodePending(data, st.Pending)
	}
	return s.Kind(), data, nil
}

// DecodeState rebuilds a State from a stored session.
func DecodeState(kind models.StateType, data map[models.DataKey]string) (State, error) {
	switch kind {
	case models.StateTask:
		return TaskState{}, nil
	case models.StateTaskCustomInput:
		return TaskCustomState{}, nil
	case models.StateBudget:
		return BudgetState{}, nil
	case models.StateBudgetCustomInput:
		return BudgetCustomState{}, nil
	case models.StateDeadline:
		return DeadlineState{Budget: decodeBudget(data)}, nil
	case models.StateDeadlineCustomInput:
		return DeadlineCustomState{Budget: decodeBudget(data)}, nil
	case models.StateAction:
		slots, err := decodeSlots(data)
		if err != nil {
			return nil, err
		}
		return ActionState{Pending: decodePending(data), Slots: slots}, nil
	case models.StateFreeChat:
		slots, err := decodeSlots(data)
		if err != nil {
			return nil, err
		}
		n, _ := strconv.Atoi(data[models.DataKeyExchanges])
		menu, _ := strconv.Atoi(data[models.DataKeyMenu])
		return FreeChatState{Exchanges: n, Menu: menu, Slots: slots}, nil
	case models.StateMeetingCustomTime:
		return MeetingTimeState{Pending: decodePending(data)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, kind)
	}
}

func encodeBudget(data map[models.DataKey]string, b lead.Answer) {
	data[models.DataKeyBudgetChoice] = b.Key
	data[models.DataKeyBudgetText] = b.Text
}

func decodeBudget(data map[models.DataKey]string) lead.Answer {
	return lead.Answer{Key: data[models.DataKeyBudgetChoice], Text: data[models.DataKeyBudgetText]}
}

func encodePending(data map[models.DataKey]string, n *NotifyQualified) {
	if n != nil {
		data[models.DataKeyNotifyPending] = string(n.Tier)
	}
}

func decodePending(data map[models.DataKey]string) *NotifyQualified {
	tier, ok := models.ParseTier(data[models.DataKeyNotifyPending])
	if !ok {
		return nil
	}
	return &NotifyQualified{Tier: tier}
}

func encodeSlots(data map[models.DataKey]string, slots Slots) error {
	if len(slots) == 0 {
		return nil
	}
	wire := make(map[string]string, len(slots))
	for sel, at := range slots {
		wire[sel] = at.Format(time.RFC3339)
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encode offered slots: %w", err)
	}
	data[models.DataKeyOfferedSlots] = string(b)
	return nil
}

func decodeSlots(data map[models.DataKey]string) (Slots, error) {
	raw := data[models.DataKeyOfferedSlots]
	if raw == "" {
		return nil, nil
	}
	var wire map[string]string
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decode offered slots: %w", err)
	}
	slots := make(Slots, len(wire))
	for sel, v := range wire {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("decode offered slot %q: %w", sel, err)
		}
		slots[sel] = at
	}
	return slots, nil
}
