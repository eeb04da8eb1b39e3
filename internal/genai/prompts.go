package genai

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Business describes the company the assistant speaks for.
type Business struct {
	Name        string
	Description string
}

// ChatSystemPrompt builds the free-chat instruction including the JSON reply contract.
func ChatSystemPrompt(b Business, p models.Prospect) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ты — AI-ассистент бизнеса \"%s\".\n\n", b.Name)
	if b.Description != "" {
		sb.WriteString(b.Description)
		sb.WriteString("\n\n")
	}
	sb.WriteString(`**Твоя задача:**
1. Вести дружелюбный и профессиональный диалог с потенциальным клиентом.
2. Уточнять задачу, бюджет и сроки, если они ещё неизвестны.
3. Оценивать статус лида:
   - **HOT**: чёткая задача, подходящий бюджет, срочно (сегодня, на этой неделе)
   - **WARM**: задача понятна, бюджет средний, срок "скоро" (в этом месяце)
   - **COLD**: задача неясна, бюджет низкий или "пока думаю"
   - **NEW**: недостаточно информации

**Tone of Voice:**
- Дружелюбный, но профессиональный
- Естественный, без шаблонных фраз
- Задавай вопросы по одному

`)
	if p.Task != "" || p.Budget != "" || p.Deadline != "" {
		sb.WriteString("**Что уже известно о клиенте:**\n")
		fmt.Fprintf(&sb, "- Задача: %s\n- Бюджет: %s\n- Срок: %s\n- Текущий статус: %s\n\n",
			orUnknown(p.Task), orUnknown(p.Budget), orUnknown(p.Deadline), p.Tier)
	}
	sb.WriteString(`**Формат ответа:**
Отвечай ТОЛЬКО в JSON формате:
{
    "response": "Твой ответ клиенту",
    "status": "HOT|WARM|COLD|NEW",
    "action": "continue|schedule_meeting|send_materials",
    "reasoning": "Краткое объяснение оценки статуса"
}

- HOT: предложи встречу (action: "schedule_meeting")
- WARM: предложи материалы (action: "send_materials")
- COLD или NEW: продолжай диалог (action: "continue")
`)
	return sb.String()
}

// MeetingTimePrompt asks the model to turn a free-form time into a date and a clock time.
func MeetingTimePrompt(now time.Time) string {
	return fmt.Sprintf(`Клиент пишет, когда ему удобно созвониться. Сейчас %s (%s).
Определи дату и время встречи.

Отвечай ТОЛЬКО в JSON формате:
{"date": "YYYY-MM-DD", "time": "HH:MM"}

Если время не указано или его невозможно понять, ответь:
{"error": "причина"}`, now.Format("2006-01-02 15:04"), now.Weekday())
}

// SummaryPrompt asks for a two-sentence owner-facing summary of a prospect.
const SummaryPrompt = `Составь краткое резюме лида для владельца бизнеса: 1-2 предложения о задаче,
бюджете и сроках. Только текст резюме, без вступлений.`

// ProspectDigest renders the known qualification answers for prompts.
func ProspectDigest(p models.Prospect) string {
	return fmt.Sprintf("Имя: %s\nЗадача: %s\nБюджет: %s\nСрок: %s\nСтатус: %s",
		p.DisplayName(), orUnknown(p.Task), orUnknown(p.Budget), orUnknown(p.Deadline), p.Tier)
}

func orUnknown(s string) string {
	if s == "" {
		return "не указано"
	}
	return s
}
