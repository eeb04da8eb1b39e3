package followup

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2025, 12, 22, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *store.InMemoryStore
	sender *testutil.RecordingSender
	sched  *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		store:  store.NewInMemoryStore(),
		sender: testutil.NewRecordingSender(),
	}
	f.sched = NewScheduler(f.store, f.sender, Config{})
	f.sched.now = func() time.Time { return clock }
	return f
}

func (f *fixture) seed(t *testing.T, id string, tier models.Tier, idle time.Duration, count int) {
	t.Helper()
	require.NoError(t, f.store.SaveProspect(f.ctx, models.Prospect{
		ID:            id,
		Tier:          tier,
		FollowUpCount: count,
		LastMessageAt: clock.Add(-idle),
		CreatedAt:     clock.Add(-idle),
	}))
}

func (f *fixture) prospect(t *testing.T, id string) models.Prospect {
	t.Helper()
	p, err := f.store.GetProspect(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return *p
}

func TestRunCycle_FirstReminder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", models.TierWarm, 25*time.Hour, 0)

	res, err := f.sched.RunCycle(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{First: 1}, res)
	msgs := f.sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "1", msgs[0].To)
	assert.Equal(t, firstReminder, msgs[0].Text)
	assert.Equal(t, 1, f.prospect(t, "1").FollowUpCount)
	assert.Equal(t, models.TierWarm, f.prospect(t, "1").Tier)
}

func TestRunCycle_DemotesAfterTwoReminders(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", models.TierWarm, 50*time.Hour, 2)

	res, err := f.sched.RunCycle(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{Demoted: 1}, res)
	assert.Empty(t, f.sender.Messages())
	assert.Equal(t, models.TierCold, f.prospect(t, "1").Tier)
}

func TestRunCycle_SecondReminder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", models.TierNew, 49*time.Hour, 1)
	f.seed(t, "2", models.TierNew, 30*time.Hour, 1)

	res, err := f.sched.RunCycle(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{Second: 1}, res)
	require.Len(t, f.sender.Messages(), 1)
	assert.Equal(t, secondReminder, f.sender.Last().Text)
	assert.Equal(t, 2, f.prospect(t, "1").FollowUpCount)
	assert.Equal(t, 1, f.prospect(t, "2").FollowUpCount, "not idle long enough for the second reminder")
}

func TestRunCycle_OneStepPerCycle(t *testing.T) {
	f := newFixture(t)
	// idle long enough for every step, but no reminder sent yet
	f.seed(t, "1", models.TierNew, 72*time.Hour, 0)

	for i, want := range []Result{{First: 1}, {Second: 1}, {Demoted: 1}, {}} {
		res, err := f.sched.RunCycle(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, want, res, "cycle %d", i+1)
	}

	msgs := f.sender.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, firstReminder, msgs[0].Text)
	assert.Equal(t, secondReminder, msgs[1].Text)
	assert.Equal(t, models.TierCold, f.prospect(t, "1").Tier)
}

func TestRunCycle_ExemptTiers(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "hot", models.TierHot, 72*time.Hour, 0)
	f.seed(t, "cold", models.TierCold, 72*time.Hour, 0)
	f.seed(t, "hot2", models.TierHot, 72*time.Hour, 2)
	f.seed(t, "fresh", models.TierWarm, time.Hour, 0)

	res, err := f.sched.RunCycle(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{}, res)
	assert.Empty(t, f.sender.Messages())
	assert.Equal(t, models.TierHot, f.prospect(t, "hot2").Tier)
}

func TestRunCycle_SendFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", models.TierWarm, 25*time.Hour, 0)
	f.seed(t, "2", models.TierWarm, 26*time.Hour, 0)
	f.seed(t, "3", models.TierWarm, 60*time.Hour, 3)
	f.sender.FailSends = true

	res, err := f.sched.RunCycle(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{Demoted: 1, Failed: 2}, res)
	// the attempt is consumed even when delivery fails
	assert.Equal(t, 1, f.prospect(t, "1").FollowUpCount)
	assert.Equal(t, 1, f.prospect(t, "2").FollowUpCount)
}

// replyingStore simulates a prospect answering after the snapshot was taken.
type replyingStore struct {
	*store.InMemoryStore
	queries int
	replier string
}

func (s *replyingStore) ListStaleProspects(ctx context.Context, q store.StaleQuery) ([]models.Prospect, error) {
	out, err := s.InMemoryStore.ListStaleProspects(ctx, q)
	s.queries++
	if s.queries == 3 {
		if _, err := s.TouchProspect(ctx, s.replier, models.Contact{}, clock); err != nil {
			return nil, err
		}
	}
	return out, err
}

func TestRunCycle_ReplyWinsOverReminder(t *testing.T) {
	mem := store.NewInMemoryStore()
	st := &replyingStore{InMemoryStore: mem, replier: "1"}
	sender := testutil.NewRecordingSender()
	sched := NewScheduler(st, sender, Config{})
	sched.now = func() time.Time { return clock }

	ctx := context.Background()
	require.NoError(t, mem.SaveProspect(ctx, models.Prospect{ID: "1", Tier: models.TierWarm, LastMessageAt: clock.Add(-25 * time.Hour)}))
	require.NoError(t, mem.SaveProspect(ctx, models.Prospect{ID: "2", Tier: models.TierWarm, LastMessageAt: clock.Add(-60 * time.Hour), FollowUpCount: 2}))

	res, err := sched.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{Demoted: 1, Skipped: 1}, res)
	assert.Empty(t, sender.Messages())
	p, err := mem.GetProspect(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.FollowUpCount)
}

// cancellingSender cancels the cycle after its first delivery.
type cancellingSender struct {
	*testutil.RecordingSender
	cancel context.CancelFunc
}

func (s *cancellingSender) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	ref, err := s.RecordingSender.Send(ctx, msg)
	s.cancel()
	return ref, err
}

func TestRunCycle_CancellationStopsBeforeNextProspect(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", models.TierWarm, 30*time.Hour, 0)
	f.seed(t, "2", models.TierWarm, 26*time.Hour, 0)
	f.seed(t, "3", models.TierWarm, 60*time.Hour, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancellingSender{RecordingSender: f.sender, cancel: cancel}
	sched := NewScheduler(f.store, sender, Config{})
	sched.now = func() time.Time { return clock }

	res, err := sched.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, Result{First: 1}, res, "the in-flight reminder finishes")
	assert.Len(t, f.sender.Messages(), 1)
	assert.Equal(t, 1, f.prospect(t, "1").FollowUpCount, "oldest idle prospect goes first")
	assert.Equal(t, 0, f.prospect(t, "2").FollowUpCount)
	assert.Equal(t, models.TierWarm, f.prospect(t, "3").Tier)
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", models.TierWarm, 30*time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sched.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.sender.Messages())
	assert.Equal(t, 0, f.prospect(t, "1").FollowUpCount)
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(store.NewInMemoryStore(), testutil.NewRecordingSender(), Config{})
	assert.Equal(t, DefaultFirstAfter, s.cfg.FirstAfter)
	assert.Equal(t, DefaultSecondAfter, s.cfg.SecondAfter)

	s = NewScheduler(store.NewInMemoryStore(), testutil.NewRecordingSender(), Config{FirstAfter: time.Hour, SecondAfter: 2 * time.Hour})
	assert.Equal(t, time.Hour, s.cfg.FirstAfter)
}
