package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

const (
	progressTask     = "Шаг 1 из 4: Задача"
	progressBudget   = "Шаг 2 из 4: Бюджет"
	progressDeadline = "Шаг 3 из 4: Сроки"
	progressAction   = "Шаг 4 из 4: Итог"
)

const (
	taskQuestion     = progressTask + "\n\nКакая задача у вас есть?"
	taskCustomPrompt = "Опишите вашу задачу своими словами."

	budgetQuestion     = progressBudget + "\n\nНа какой бюджет вы ориентируетесь?"
	budgetCustomPrompt = "Напишите бюджет в свободной форме, например «около 100 000 ₽»."

	deadlineQuestion     = progressDeadline + "\n\nКогда нужен результат?"
	deadlineCustomPrompt = "Напишите желаемый срок в свободной форме, например «до конца месяца»."

	freeChatPrompt = "Задайте ваш вопрос, я постараюсь помочь."

	meetingQuestion     = "Когда удобно созвониться?"
	meetingCustomPrompt = "Напишите, когда вам удобно.\n\nНапример: «в среду в 11:00» или «28 декабря, 14:00»"
	meetingUnparsed     = "Не смог понять время 😕\n\nПопробуйте указать по-другому, например:\n" +
		"• «завтра в 15:00»\n• «в пятницу в 10:00»\n• «25 декабря, 14:00»"
	meetingPast       = "Это время уже прошло 🕐\n\nУкажите время в будущем, пожалуйста."
	meetingBookedText = "Отлично! Звонок назначен: %s.\n\nВладелец свяжется с вами.\n\nЕсли что-то изменится, напишите."

	coldDecline = "Спасибо за интерес! Сейчас лучше начать с материалов и вопросов: " +
		"я с радостью расскажу подробнее. Когда задача станет актуальнее, договоримся о звонке."
	meetingSuggestion = "Кажется, нам есть что обсудить подробнее. Хотите созвониться с владельцем?"

	materialsMissing = "Материалы скоро появятся. А пока задайте вопрос, и я расскажу подробнее."

	// ApologyText is sent when the assistant cannot be reached.
	ApologyText = "Извините, произошла ошибка. Попробуйте переформулировать вопрос или напишите позже."
	// RestartText is sent when a button refers to a prospect that no longer exists.
	RestartText = "Не удалось найти ваш диалог. Нажмите /start, чтобы начать заново."
	// HelpText answers /help.
	HelpText = "🤖 Как я могу помочь:\n\n" +
		"• Просто напишите мне вашу задачу или вопрос\n" +
		"• Я помогу вам сориентироваться и подберу решение\n" +
		"• При необходимости назначу встречу с владельцем\n\n" +
		"💬 Я работаю 24/7 и всегда на связи!"
	// NoAccessText answers owner-only commands from anyone else.
	NoAccessText = "❌ У вас нет доступа к этой команде."
)

// Materials lists the links sent on request.
type Materials struct {
	PortfolioURL    string
	CasesURL        string
	PresentationURL string
}

// Empty reports whether no link is configured.
func (m Materials) Empty() bool {
	return m.PortfolioURL == "" && m.CasesURL == "" && m.PresentationURL == ""
}

// Text renders the materials reply.
func (m Materials) Text() string {
	if m.Empty() {
		return materialsMissing
	}
	var sb strings.Builder
	sb.WriteString("📂 Наши материалы:\n\n")
	if m.PortfolioURL != "" {
		fmt.Fprintf(&sb, "🌐 Портфолио: %s\n", m.PortfolioURL)
	}
	if m.CasesURL != "" {
		fmt.Fprintf(&sb, "📋 Кейсы: %s\n", m.CasesURL)
	}
	if m.PresentationURL != "" {
		fmt.Fprintf(&sb, "📊 Презентация: %s\n", m.PresentationURL)
	}
	sb.WriteString("\nЕсли возникнут вопросы, пишите, буду рад помочь! 😊")
	return sb.String()
}

func greetingText(p models.Prospect, business, description string) string {
	name := p.FirstName
	if name == "" {
		name = "друг"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Привет, %s! 👋\n\nЯ AI-ассистент %s.", name, business)
	if description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(description)
	}
	sb.WriteString("\n\nОтвечу на пару вопросов о вашей задаче, чтобы подобрать решение.")
	return sb.String()
}

func summaryText(p models.Prospect) string {
	var next string
	switch p.Tier {
	case models.TierHot:
		next = "Похоже, задачу стоит обсудить со специалистом. Давайте назначим звонок?"
	case models.TierWarm:
		next = "Могу прислать материалы, ответить на вопросы или договориться о звонке."
	default:
		next = "Посмотрите наши материалы, а если появятся вопросы, задавайте."
	}
	return fmt.Sprintf("%s\n\nСпасибо! Вот что я записал:\nЗадача: %s\nБюджет: %s\nСрок: %s\n\n%s",
		progressAction, p.Task, p.Budget, p.Deadline, next)
}

func meetingBooked(at string) string {
	return fmt.Sprintf(meetingBookedText, at)
}
