// Package followup reminds idle prospects and demotes the ones that never answer.
//
// A cycle snapshots three disjoint groups before touching anything: prospects due for the
// first reminder, prospects due for the second one, and prospects that ignored both. Each
// group is then processed with conditional store updates, so a prospect that replies in the
// middle of a cycle is left alone.
package followup

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// Default idle thresholds.
const (
	DefaultFirstAfter  = 24 * time.Hour
	DefaultSecondAfter = 48 * time.Hour
)

const (
	firstReminder = "Привет! 👋\n\n" +
		"Заметил, что вы не ответили. Всё ещё актуален ваш вопрос?\n\n" +
		"Если да, напишите, помогу!"
	secondReminder = "Здравствуйте! 👋\n\n" +
		"Напоминаю о себе. Если вопрос актуален, пишите, буду рад помочь!\n\n" +
		"Если сейчас не до этого, ничего страшного, обращайтесь когда будет удобно."
)

// Sender delivers reminders.
type Sender interface {
	Send(ctx context.Context, msg models.OutgoingMessage) (string, error)
}

// Config sets the idle thresholds. Zero fields take the defaults.
type Config struct {
	FirstAfter  time.Duration
	SecondAfter time.Duration
}

// Result counts what one cycle did.
type Result struct {
	First   int // first reminders sent
	Second  int // second reminders sent
	Demoted int // prospects moved to COLD
	Skipped int // prospects that replied or were claimed elsewhere
	Failed  int // reminders that could not be delivered
}

// Scheduler runs follow-up cycles.
type Scheduler struct {
	store  store.Store
	sender Sender
	cfg    Config
	now    func() time.Time
}

// NewScheduler creates a follow-up Scheduler.
func NewScheduler(st store.Store, sender Sender, cfg Config) *Scheduler {
	if cfg.FirstAfter <= 0 {
		cfg.FirstAfter = DefaultFirstAfter
	}
	if cfg.SecondAfter <= 0 {
		cfg.SecondAfter = DefaultSecondAfter
	}
	return &Scheduler{store: st, sender: sender, cfg: cfg, now: time.Now}
}

// batch is one snapshot group of a cycle.
type batch struct {
	name      string
	prospects []models.Prospect
	before    time.Time
	count     int // follow-up count the group was selected with; -1 for demotion
	text      string
}

// RunCycle performs one follow-up pass. It returns ctx.Err() when cancelled; the prospect
// being processed at that moment is finished first.
func (s *Scheduler) RunCycle(ctx context.Context) (Result, error) {
	var res Result
	now := s.now().UTC()
	firstCutoff := now.Add(-s.cfg.FirstAfter)
	secondCutoff := now.Add(-s.cfg.SecondAfter)

	queries := []struct {
		b batch
		q store.StaleQuery
	}{
		{batch{name: "first", before: firstCutoff, count: 0, text: firstReminder},
			store.StaleQuery{Before: firstCutoff, Tiers: store.FollowUpTiers, MinFollowUps: 0, MaxFollowUps: 0}},
		{batch{name: "second", before: secondCutoff, count: 1, text: secondReminder},
			store.StaleQuery{Before: secondCutoff, Tiers: store.FollowUpTiers, MinFollowUps: 1, MaxFollowUps: 1}},
		{batch{name: "demote", before: secondCutoff, count: -1},
			store.StaleQuery{Before: secondCutoff, Tiers: store.FollowUpTiers, MinFollowUps: 2, MaxFollowUps: -1}},
	}

	batches := make([]batch, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		found, err := s.store.ListStaleProspects(ctx, q.q)
		if err != nil {
			slog.Error("FollowUp.RunCycle: query failed", "batch", q.b.name, "error", err)
			continue
		}
		q.b.prospects = found
		batches = append(batches, q.b)
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, p := range b.prospects {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if b.count < 0 {
				s.demote(ctx, p, b.before, &res)
				continue
			}
			s.remind(ctx, p, b, &res)
		}
	}

	slog.Info("FollowUp.RunCycle: cycle complete",
		"first", res.First, "second", res.Second, "demoted", res.Demoted,
		"skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// Tick runs one cycle and logs its error, for use as a scheduled job.
func (s *Scheduler) Tick(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		slog.Warn("FollowUp.Tick: cycle interrupted", "error", err)
	}
}

// remind claims the reminder slot first so a reply racing with the cycle wins.
func (s *Scheduler) remind(ctx context.Context, p models.Prospect, b batch, res *Result) {
	claimed, err := s.store.ClaimFollowUp(ctx, p.ID, b.count, b.before)
	if err != nil {
		slog.Error("FollowUp.remind: claim failed", "prospectID", p.ID, "error", err)
		res.Failed++
		return
	}
	if !claimed {
		slog.Debug("FollowUp.remind: prospect no longer idle", "prospectID", p.ID)
		res.Skipped++
		return
	}

	if _, err := s.sender.Send(ctx, models.OutgoingMessage{To: p.ID, Text: b.text}); err != nil {
		slog.Error("FollowUp.remind: send failed", "prospectID", p.ID, "attempt", b.count+1, "error", err)
		res.Failed++
		return
	}
	slog.Info("FollowUp.remind: reminder sent", "prospectID", p.ID, "attempt", b.count+1)
	if b.count == 0 {
		res.First++
	} else {
		res.Second++
	}
}

func (s *Scheduler) demote(ctx context.Context, p models.Prospect, before time.Time, res *Result) {
	demoted, err := s.store.DemoteProspect(ctx, p.ID, before)
	if err != nil {
		slog.Error("FollowUp.demote: demotion failed", "prospectID", p.ID, "error", err)
		res.Failed++
		return
	}
	if !demoted {
		res.Skipped++
		return
	}
	slog.Info("FollowUp.demote: prospect moved to COLD after unanswered reminders", "prospectID", p.ID, "from", p.Tier)
	res.Demoted++
}
