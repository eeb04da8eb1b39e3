package lead

import (
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"pgregory.net/rapid"
)

var (
	urgencies = []Urgency{UrgencyUrgent, UrgencySoon, UrgencyLater}
	budgets   = []Budget{BudgetLow, BudgetMedium, BudgetHigh, BudgetUnknown}
)

func TestClassify_IsPure(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		u := rapid.SampledFrom(urgencies).Draw(rt, "urgency")
		b := rapid.SampledFrom(budgets).Draw(rt, "budget")
		first := Classify(u, b)
		for i := 0; i < 3; i++ {
			if again := Classify(u, b); again != first {
				rt.Fatalf("Classify(%s, %s) changed from %s to %s", u, b, first, again)
			}
		}
		if first == models.TierNew {
			rt.Fatalf("structured path never yields NEW")
		}
	})
}

func TestClassifyCustom_NeverCold(t *testing.T) {
	vocabulary := []string{"срочно", "скоро", "завтра", "150 000+", "50000", "млн", "later", "пока не знаю", "x"}
	rapid.Check(t, func(rt *rapid.T) {
		deadline := rapid.OneOf(
			rapid.String(),
			rapid.SampledFrom(vocabulary),
		).Draw(rt, "deadline")
		budget := rapid.OneOf(
			rapid.String(),
			rapid.SampledFrom(vocabulary),
		).Draw(rt, "budget")
		got := ClassifyCustom(deadline, budget)
		if got != models.TierHot && got != models.TierWarm {
			rt.Fatalf("ClassifyCustom(%q, %q) = %s", deadline, budget, got)
		}
	})
}

func TestPromote_RankNonDecreasing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "steps")
		stored := models.TierNew
		for i := 0; i < n; i++ {
			candidate := rapid.SampledFrom(models.AllTiers).Draw(rt, "candidate")
			next := Promote(stored, candidate)
			if next.Rank() < stored.Rank() {
				rt.Fatalf("rank dropped from %s to %s", stored, next)
			}
			stored = next
		}
	})
}
