package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/openai/openai-go"
)

// completer is the part of Client the Assistant needs.
type completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Assistant turns conversation context into model requests and parses the replies.
type Assistant struct {
	llm      completer
	business Business
}

// NewAssistant creates an Assistant speaking for business.
func NewAssistant(llm completer, business Business) *Assistant {
	return &Assistant{llm: llm, business: business}
}

// Respond answers a free-form prospect message. The returned Decision is always well formed;
// an error means the model could not be reached and the caller should use its fallback reply.
func (a *Assistant) Respond(ctx context.Context, p models.Prospect, history []models.ConversationMessage, text string) (Decision, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(ChatSystemPrompt(a.business, p))}
	messages = append(messages, HistoryMessages(history)...)
	messages = append(messages, openai.UserMessage(text))

	raw, err := a.llm.Complete(ctx, messages)
	if err != nil {
		return Decision{}, fmt.Errorf("respond for prospect %s: %w", p.ID, err)
	}
	if _, ok := ParseDecision(raw).(Malformed); ok {
		slog.Warn("Assistant.Respond: model reply is not a decision, using raw text", "prospectID", p.ID)
	}
	d := Parse(raw, p.Tier)
	slog.Debug("Assistant.Respond: decision", "prospectID", p.ID, "tier", d.Tier, "action", d.Action, "reasoning", d.Reasoning)
	return d, nil
}

// ExtractMeetingTime asks the model to read a meeting time from text, interpreted in loc.
func (a *Assistant) ExtractMeetingTime(ctx context.Context, text string, now time.Time, loc *time.Location) (time.Time, error) {
	now = now.In(loc)
	raw, err := a.llm.Complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(MeetingTimePrompt(now)),
		openai.UserMessage(text),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("extract meeting time: %w", err)
	}
	return ParseMeetingTime(raw, loc)
}

// Summarize returns a short owner-facing summary of the prospect.
func (a *Assistant) Summarize(ctx context.Context, p models.Prospect) (string, error) {
	raw, err := a.llm.Complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SummaryPrompt),
		openai.UserMessage(ProspectDigest(p)),
	})
	if err != nil {
		return "", fmt.Errorf("summarize prospect %s: %w", p.ID, err)
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", fmt.Errorf("summarize prospect %s: empty summary", p.ID)
	}
	return summary, nil
}

// HistoryMessages converts stored conversation messages to chat messages.
func HistoryMessages(history []models.ConversationMessage) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	return messages
}
