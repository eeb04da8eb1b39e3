package flow

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/lead"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allTiers = []models.Tier{models.TierNew, models.TierCold, models.TierWarm, models.TierHot}

func newTestMachine(llm Assistant) *Machine {
	m := NewMachine(Config{BusinessName: "Студия", Location: msk}, llm, store.NewInMemoryStore())
	m.now = func() time.Time { return time.Date(2025, 12, 22, 12, 0, 0, 0, msk) }
	return m
}

func press(d Domain, selector string) ButtonEvent {
	return ButtonEvent{Token: Token{Domain: d, ProspectID: "1", Selector: selector}}
}

func TestNewMachine_Defaults(t *testing.T) {
	m := NewMachine(Config{}, &testutil.ScriptedAssistant{}, store.NewInMemoryStore())
	assert.Equal(t, DefaultFreeChatThreshold, m.cfg.FreeChatThreshold)
	assert.Equal(t, DefaultHistoryLimit, m.cfg.HistoryLimit)
	assert.NotNil(t, m.cfg.Location)
}

func TestMachine_QualificationNeverLowersTier(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{})
	budgetKeys := []string{"low", "medium", "high", "unknown"}
	deadlineKeys := []string{"urgent", "soon", "later"}

	rapid.Check(t, func(rt *rapid.T) {
		p := models.Prospect{ID: "1", Tier: rapid.SampledFrom(allTiers).Draw(rt, "tier")}

		var budget lead.Answer
		if rapid.Bool().Draw(rt, "typedBudget") {
			budget = lead.Answer{Text: rapid.String().Draw(rt, "budgetText")}
		} else {
			key := rapid.SampledFrom(budgetKeys).Draw(rt, "budgetKey")
			opt, _ := lead.LookupOption(lead.BudgetOptions, key)
			budget = lead.Answer{Key: key, Text: opt.Label}
		}

		var ev Event
		if rapid.Bool().Draw(rt, "typedDeadline") {
			ev = TextEvent{Text: rapid.StringN(1, 40, -1).Draw(rt, "deadlineText")}
		} else {
			ev = press(DomainDeadline, rapid.SampledFrom(deadlineKeys).Draw(rt, "deadlineKey"))
		}

		out := m.Step(context.Background(), p, DeadlineState{Budget: budget}, ev)
		if out.Stale {
			rt.Fatalf("deadline answer was treated as stale")
		}
		if out.Prospect.Tier.Rank() < p.Tier.Rank() {
			rt.Fatalf("tier dropped from %s to %s", p.Tier, out.Prospect.Tier)
		}
		st, ok := out.Next.(ActionState)
		if !ok {
			rt.Fatalf("expected ActionState, got %T", out.Next)
		}
		notable := lead.Improved(p.Tier, out.Prospect.Tier) && lead.Notable(out.Prospect.Tier)
		if notable != (st.Pending != nil) {
			rt.Fatalf("pending notification %v for %s -> %s", st.Pending, p.Tier, out.Prospect.Tier)
		}
		if len(out.Effects) != 0 {
			rt.Fatalf("qualification must not notify immediately, got %v", out.Effects)
		}
	})
}

func TestMachine_ChatNeverLowersTier(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		current := rapid.SampledFrom(allTiers).Draw(rt, "current")
		suggested := rapid.SampledFrom(allTiers).Draw(rt, "suggested")
		m := newTestMachine(&testutil.ScriptedAssistant{Decision: genai.Decision{Reply: "ok", Tier: suggested}})

		out := m.Step(context.Background(), models.Prospect{ID: "1", Tier: current}, FreeChatState{}, TextEvent{Text: "вопрос"})
		if out.Prospect.Tier != lead.Promote(current, suggested) {
			rt.Fatalf("tier %s with suggestion %s became %s", current, suggested, out.Prospect.Tier)
		}
		notified := false
		for _, eff := range out.Effects {
			if _, ok := eff.(NotifyQualified); ok {
				notified = true
			}
		}
		if want := lead.Improved(current, out.Prospect.Tier) && lead.Notable(out.Prospect.Tier); notified != want {
			rt.Fatalf("notified=%v, want %v for %s -> %s", notified, want, current, out.Prospect.Tier)
		}
	})
}

func TestMachine_StartRestartsFromAnyState(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{})
	states := []State{
		nil, TaskState{}, TaskCustomState{}, BudgetState{}, BudgetCustomState{},
		DeadlineState{}, DeadlineCustomState{}, ActionState{Pending: &NotifyQualified{Tier: models.TierHot}},
		FreeChatState{Exchanges: 4}, MeetingTimeState{},
	}
	p := models.Prospect{ID: "1", Tier: models.TierHot, Task: "Дизайн", Budget: "До 50 000 ₽", Deadline: "Скоро"}
	for _, s := range states {
		out := m.Step(context.Background(), p, s, StartEvent{})
		assert.True(t, out.Restart, "state %v", stateName(s))
		assert.Equal(t, TaskState{}, out.Next)
		assert.Equal(t, models.TierNew, out.Prospect.Tier)
		assert.Empty(t, out.Prospect.Task+out.Prospect.Budget+out.Prospect.Deadline)
		assert.Empty(t, out.Effects, "restart drops pending notifications")
		require.Len(t, out.Replies, 2)
	}
}

func TestMachine_ButtonsOfOtherStepsAreStale(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{})
	p := models.Prospect{ID: "1", Tier: models.TierWarm}
	tests := []struct {
		name  string
		state State
		ev    Event
	}{
		{"budget press while asking task", TaskState{}, press(DomainBudget, "high")},
		{"unknown task option", TaskState{}, press(DomainTask, "poetry")},
		{"task press while asking deadline", DeadlineState{}, press(DomainTask, "website")},
		{"button while typing task", TaskCustomState{}, press(DomainTask, "website")},
		{"meeting press without a menu", ActionState{}, press(DomainMeeting, "0")},
		{"unknown slot", ActionState{Slots: Slots{"0": time.Date(2025, 12, 23, 10, 0, 0, 0, msk)}}, press(DomainMeeting, "9")},
		{"action press while typing a time", MeetingTimeState{}, press(DomainAction, SelectSendMaterials)},
		{"button without a session", nil, press(DomainTask, "website")},
		{"action menu press in free chat", FreeChatState{Menu: 1}, press(DomainAction, SelectSendMaterials)},
		{"retired free-chat menu", FreeChatState{Menu: 2}, press(DomainChat, chatSelector(SelectSendMaterials, 1))},
		{"unnumbered free-chat selector", FreeChatState{}, press(DomainChat, SelectSendMaterials)},
		{"free-chat menu press in action", ActionState{}, press(DomainChat, chatSelector(SelectSendMaterials, 0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.Step(context.Background(), p, tt.state, tt.ev)
			assert.True(t, out.Stale)
			assert.Empty(t, out.Replies)
			assert.Empty(t, out.Effects)
		})
	}
}

func TestMachine_ColdMeetingRequestDeclined(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{})
	p := models.Prospect{ID: "1", Tier: models.TierCold}

	out := m.Step(context.Background(), p, ActionState{}, press(DomainAction, SelectScheduleMeeting))
	assert.Equal(t, FreeChatState{Menu: 1}, out.Next)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, coldDecline, out.Replies[0].Text)
	assert.Empty(t, out.Effects)
}

func TestMachine_ChatActionMeetingSkippedForCold(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{Decision: genai.Decision{Reply: "ok", Action: genai.ActionScheduleMeeting}})

	out := m.Step(context.Background(), models.Prospect{ID: "1", Tier: models.TierCold}, FreeChatState{}, TextEvent{Text: "созвонимся?"})
	assert.Len(t, out.Replies, 1)
	assert.Equal(t, FreeChatState{Exchanges: 1}, out.Next)

	out = m.Step(context.Background(), models.Prospect{ID: "1", Tier: models.TierWarm}, FreeChatState{}, TextEvent{Text: "созвонимся?"})
	require.Len(t, out.Replies, 2)
	assert.Equal(t, meetingQuestion, out.Replies[1].Text)
	st := out.Next.(FreeChatState)
	assert.Len(t, st.Slots, 5)
}

func TestMachine_ChatMaterialsAction(t *testing.T) {
	llm := &testutil.ScriptedAssistant{Decision: genai.Decision{Reply: "Сейчас пришлю", Action: genai.ActionSendMaterials}}
	m := newTestMachine(llm)
	p := models.Prospect{ID: "1", Tier: models.TierWarm}

	out := m.Step(context.Background(), p, FreeChatState{}, TextEvent{Text: "есть примеры?"})
	assert.Len(t, out.Replies, 1, "no materials configured")

	m.cfg.Materials = Materials{CasesURL: "https://example.com/cases"}
	out = m.Step(context.Background(), p, FreeChatState{}, TextEvent{Text: "есть примеры?"})
	require.Len(t, out.Replies, 2)
	assert.Contains(t, out.Replies[1].Text, "https://example.com/cases")
}

func TestMachine_ThresholdSkipsSuggestionForCold(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{Decision: genai.Decision{Reply: "ok"}})

	out := m.Step(context.Background(), models.Prospect{ID: "1", Tier: models.TierCold},
		FreeChatState{Exchanges: DefaultFreeChatThreshold - 1}, TextEvent{Text: "ещё вопрос"})
	assert.Equal(t, FreeChatState{}, out.Next)
	assert.Equal(t, "ok", out.Replies[0].Text)
	assert.Empty(t, out.Replies[0].Buttons)
}

func TestMachine_TextInActionFlushesPendingFirst(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{Decision: genai.Decision{Reply: "ok"}})
	p := models.Prospect{ID: "1", Tier: models.TierHot}

	out := m.Step(context.Background(), p, ActionState{Pending: &NotifyQualified{Tier: models.TierHot}}, TextEvent{Text: "вопрос"})
	require.NotEmpty(t, out.Effects)
	assert.Equal(t, NotifyQualified{Tier: models.TierHot}, out.Effects[0])
	assert.Equal(t, FreeChatState{Exchanges: 1}, out.Next)
}

func TestMachine_CustomSlotKeepsPending(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{})
	pending := &NotifyQualified{Tier: models.TierWarm}
	offered := OfferSlots(m.now(), msk)

	out := m.Step(context.Background(), models.Prospect{ID: "1", Tier: models.TierWarm},
		ActionState{Pending: pending, Slots: offered}, press(DomainMeeting, SelectCustomTime))
	assert.Equal(t, MeetingTimeState{Pending: pending}, out.Next)
	assert.Equal(t, meetingCustomPrompt, out.Replies[0].Text)
}

func TestMachine_BookingDropsPending(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{})
	offered := OfferSlots(m.now(), msk)

	out := m.Step(context.Background(), models.Prospect{ID: "1", Tier: models.TierHot},
		ActionState{Pending: &NotifyQualified{Tier: models.TierHot}, Slots: offered}, press(DomainMeeting, "2"))
	require.Len(t, out.Effects, 1)
	assert.Equal(t, BookMeeting{At: offered["2"]}, out.Effects[0])
	assert.Equal(t, FreeChatState{}, out.Next)
}

func TestMachine_MeetingTimeAssistantFailure(t *testing.T) {
	m := newTestMachine(&testutil.ScriptedAssistant{MeetingErr: context.DeadlineExceeded})
	st := MeetingTimeState{Pending: &NotifyQualified{Tier: models.TierHot}}

	out := m.Step(context.Background(), models.Prospect{ID: "1", Tier: models.TierHot}, st, TextEvent{Text: "завтра"})
	assert.Equal(t, st, out.Next)
	assert.Equal(t, ApologyText, out.Replies[0].Text)
	assert.Empty(t, out.Effects)
}

func TestCommand(t *testing.T) {
	tests := map[string]string{
		"/start":               "/start",
		"/START":               "/start",
		"/start payload":       "/start",
		"/stats@LeadPipeBot":   "/stats",
		"привет":               "",
		"не /start в середине": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, command(in), in)
	}
}
