// Package notify formats owner alerts and queues them on the durable outbox.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// KindOwnerAlert is the outbox kind of owner alerts.
const KindOwnerAlert = "owner_alert"

// Summarizer produces a short prospect summary for the owner.
type Summarizer interface {
	Summarize(ctx context.Context, p models.Prospect) (string, error)
}

// Alert is the outbox payload of an owner alert.
type Alert struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Notifier queues owner alerts. A nil Summarizer always uses the fallback summary.
type Notifier struct {
	outbox     store.OutboxRepo
	ownerID    string
	summarizer Summarizer
	loc        *time.Location
}

// NewNotifier creates a Notifier for ownerID; meeting times are shown in loc.
func NewNotifier(outbox store.OutboxRepo, ownerID string, summarizer Summarizer, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{outbox: outbox, ownerID: ownerID, summarizer: summarizer, loc: loc}
}

// NotifyQualified queues a tier alert. Only WARM and HOT prospects are reported.
func (n *Notifier) NotifyQualified(ctx context.Context, p models.Prospect) error {
	if p.Tier != models.TierWarm && p.Tier != models.TierHot {
		return nil
	}
	if n.ownerID == "" {
		slog.Warn("Notifier.NotifyQualified: owner id not configured, skipping", "prospectID", p.ID)
		return nil
	}
	text := QualifiedText(p, n.summary(ctx, p))
	key := "qualified:" + p.ID + ":" + string(p.Tier) + ":" + strconv.FormatInt(p.LastMessageAt.UnixNano(), 10)
	return n.enqueue(ctx, text, key)
}

// NotifyMeeting queues a meeting alert.
func (n *Notifier) NotifyMeeting(ctx context.Context, p models.Prospect, m models.Meeting) error {
	if n.ownerID == "" {
		slog.Warn("Notifier.NotifyMeeting: owner id not configured, skipping", "prospectID", p.ID, "meetingID", m.ID)
		return nil
	}
	return n.enqueue(ctx, MeetingText(p, m, n.loc), "meeting:"+m.ID)
}

func (n *Notifier) summary(ctx context.Context, p models.Prospect) string {
	if n.summarizer == nil {
		return FallbackSummary(p)
	}
	s, err := n.summarizer.Summarize(ctx, p)
	if err != nil {
		slog.Warn("Notifier.summary: summarizer failed, using fallback", "error", err, "prospectID", p.ID)
		return FallbackSummary(p)
	}
	return s
}

func (n *Notifier) enqueue(ctx context.Context, text, dedupeKey string) error {
	payload, err := json.Marshal(Alert{To: n.ownerID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal owner alert: %w", err)
	}
	id, err := n.outbox.EnqueueOutboxMessage(ctx, n.ownerID, KindOwnerAlert, string(payload), dedupeKey)
	if err != nil {
		return fmt.Errorf("enqueue owner alert: %w", err)
	}
	slog.Info("Notifier.enqueue: owner alert queued", "outboxID", id, "dedupeKey", dedupeKey)
	return nil
}

// DeliverFunc sends one alert to the owner.
type DeliverFunc func(ctx context.Context, to, text string) error

// OutboxSender adapts deliver to the outbox sender callback.
func OutboxSender(deliver DeliverFunc) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		if msg.Kind != KindOwnerAlert {
			return fmt.Errorf("unsupported outbox kind %q", msg.Kind)
		}
		var a Alert
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &a); err != nil {
			return fmt.Errorf("decode owner alert %s: %w", msg.ID, err)
		}
		return deliver(ctx, a.To, a.Text)
	}
}

// TierBadge returns the emoji and label used for a tier in alerts.
func TierBadge(t models.Tier) (string, string) {
	switch t {
	case models.TierHot:
		return "🔥", "ГОРЯЧИЙ"
	case models.TierWarm:
		return "🟡", "ТЁПЛЫЙ"
	case models.TierCold:
		return "❄️", "ХОЛОДНЫЙ"
	default:
		return "⚪️", "Новый"
	}
}

// FallbackSummary builds a summary from the qualification answers.
func FallbackSummary(p models.Prospect) string {
	var parts []string
	if p.Task != "" {
		parts = append(parts, "Задача: "+p.Task)
	}
	if p.Budget != "" {
		parts = append(parts, "Бюджет: "+p.Budget)
	}
	if p.Deadline != "" {
		parts = append(parts, "Срок: "+p.Deadline)
	}
	if len(parts) == 0 {
		return "Информация уточняется."
	}
	return strings.Join(parts, ". ") + "."
}

// QualifiedText renders the tier alert.
func QualifiedText(p models.Prospect, summary string) string {
	emoji, label := TierBadge(p.Tier)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Новый %s лид!\n\n", emoji, label)
	fmt.Fprintf(&sb, "📝 Резюме: %s\n\n", summary)
	fmt.Fprintf(&sb, "👤 Имя: %s\n", p.DisplayName())
	writeAnswers(&sb, p)
	writeContact(&sb, p)
	return sb.String()
}

// MeetingText renders the meeting alert with the time shown in loc.
func MeetingText(p models.Prospect, m models.Meeting, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("📅 Новая встреча назначена!\n\n")
	fmt.Fprintf(&sb, "👤 Имя: %s\n", p.DisplayName())
	fmt.Fprintf(&sb, "⏰ Время: %s\n", m.ScheduledAt.In(loc).Format("02.01.2006 в 15:04"))
	writeAnswers(&sb, p)
	writeContact(&sb, p)
	return sb.String()
}

func writeAnswers(sb *strings.Builder, p models.Prospect) {
	if p.Task != "" {
		fmt.Fprintf(sb, "📋 Задача: %s\n", p.Task)
	}
	if p.Budget != "" {
		fmt.Fprintf(sb, "💰 Бюджет: %s\n", p.Budget)
	}
	if p.Deadline != "" {
		fmt.Fprintf(sb, "⏳ Срок: %s\n", p.Deadline)
	}
}

func writeContact(sb *strings.Builder, p models.Prospect) {
	if p.Username != "" {
		fmt.Fprintf(sb, "\nКонтакт: @%s", p.Username)
		return
	}
	fmt.Fprintf(sb, "\nID: %s", p.ID)
}

// FormatStats renders the owner statistics.
func FormatStats(s models.Stats) string {
	var sb strings.Builder
	sb.WriteString("📊 Статистика\n\n")
	fmt.Fprintf(&sb, "📈 Всего лидов: %d\n", s.TotalProspects)
	fmt.Fprintf(&sb, "🆕 Новых за сегодня: %d\n\n", s.NewToday)
	sb.WriteString("По статусам:\n")
	fmt.Fprintf(&sb, "🔥 Горячих: %d\n", s.ByTier[models.TierHot])
	fmt.Fprintf(&sb, "🟡 Тёплых: %d\n", s.ByTier[models.TierWarm])
	fmt.Fprintf(&sb, "❄️ Холодных: %d\n", s.ByTier[models.TierCold])
	fmt.Fprintf(&sb, "⚪️ Новых: %d\n\n", s.ByTier[models.TierNew])
	fmt.Fprintf(&sb, "📅 Назначено встреч: %d", s.ScheduledMeetings)
	if s.LastHot != nil {
		fmt.Fprintf(&sb, "\n\n🔥 Последний горячий лид: %s, %s", s.LastHot.DisplayName(), s.LastHot.UpdatedAt.Format("02.01 15:04"))
	}
	return sb.String()
}
