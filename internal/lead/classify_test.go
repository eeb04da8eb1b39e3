package lead

import (
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		urgency Urgency
		budget  Budget
		want    models.Tier
	}{
		{UrgencyUrgent, BudgetHigh, models.TierHot},
		{UrgencyUrgent, BudgetMedium, models.TierHot},
		{UrgencyUrgent, BudgetLow, models.TierWarm},
		{UrgencyUrgent, BudgetUnknown, models.TierWarm},
		{UrgencySoon, BudgetHigh, models.TierHot},
		{UrgencySoon, BudgetMedium, models.TierWarm},
		{UrgencySoon, BudgetLow, models.TierWarm},
		{UrgencySoon, BudgetUnknown, models.TierWarm},
		{UrgencyLater, BudgetHigh, models.TierCold},
		{UrgencyLater, BudgetMedium, models.TierWarm},
		{UrgencyLater, BudgetLow, models.TierCold},
		{UrgencyLater, BudgetUnknown, models.TierCold},
	}
	for _, tt := range tests {
		t.Run(string(tt.urgency)+"/"+string(tt.budget), func(t *testing.T) {
			if got := Classify(tt.urgency, tt.budget); got != tt.want {
				t.Errorf("Classify(%s, %s) = %s, want %s", tt.urgency, tt.budget, got, tt.want)
			}
		})
	}
}

func TestClassify_LiteralCases(t *testing.T) {
	if got := Classify("urgent", ParseBudget("150000+")); got != models.TierHot {
		t.Errorf(`classify("urgent","150000+") = %s, want HOT`, got)
	}
	if got := Classify("later", ParseBudget("150000+")); got == models.TierHot {
		t.Error(`classify("later","150000+") must not be HOT`)
	}
	if got := Classify("soon", "unknown"); got != models.TierWarm {
		t.Errorf(`classify("soon","unknown") = %s, want WARM`, got)
	}
}

func TestClassify_UnrecognizedFallsToCold(t *testing.T) {
	if got := Classify("someday", "gold bars"); got != models.TierCold {
		t.Errorf("expected COLD for unknown answers, got %s", got)
	}
}

func TestParseBudget(t *testing.T) {
	tests := map[string]Budget{
		"high":               BudgetHigh,
		"150000+":            BudgetHigh,
		"150 000+ ₽":         BudgetHigh,
		"50 000 - 150 000 ₽": BudgetMedium,
		"До 50 000 ₽":        BudgetLow,
		"Пока не знаю":       BudgetUnknown,
		"a lot":              BudgetUnknown,
	}
	for in, want := range tests {
		if got := ParseBudget(in); got != want {
			t.Errorf("ParseBudget(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestClassifyCustom(t *testing.T) {
	tests := []struct {
		name     string
		deadline string
		budget   string
		want     models.Tier
	}{
		{"urgent with medium budget", "Нужно срочно", "около 100 000", models.TierHot},
		{"urgent with high budget", "ASAP please", "1 million", models.TierHot},
		{"high budget and soon", "в этом месяце", "до 300 000 руб", models.TierHot},
		{"high budget but no date", "когда-нибудь", "500k", models.TierWarm},
		{"soon only", "Скоро", "не знаю", models.TierWarm},
		{"urgent without budget", "завтра", "посмотрим", models.TierWarm},
		{"nothing recognizable", "не решил", "не решил", models.TierWarm},
		{"empty", "", "", models.TierWarm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyCustom(tt.deadline, tt.budget); got != tt.want {
				t.Errorf("ClassifyCustom(%q, %q) = %s, want %s", tt.deadline, tt.budget, got, tt.want)
			}
		})
	}
}

func TestClassifyCustom_CaseInsensitive(t *testing.T) {
	if ClassifyCustom("СРОЧНО", "150000+") != ClassifyCustom("срочно", "150000+") {
		t.Error("classification must not depend on letter case")
	}
}

func TestDetectSignals_FieldsAreSeparate(t *testing.T) {
	found := DetectSignals("", "срочно")
	if found[SignalUrgent] {
		t.Error("urgency markers must only be searched in the deadline text")
	}
}

func TestPromote(t *testing.T) {
	if Promote(models.TierWarm, models.TierCold) != models.TierWarm {
		t.Error("promotion must never lower the tier")
	}
	if Promote(models.TierNew, models.TierCold) != models.TierCold {
		t.Error("COLD ranks above NEW")
	}
	if !Improved(models.TierNew, models.TierCold) || Improved(models.TierHot, models.TierHot) {
		t.Error("Improved must be a strict rank comparison")
	}
}

func TestLookupOption(t *testing.T) {
	o, ok := LookupOption(BudgetOptions, "medium")
	if !ok || o.Label != "50 000 - 150 000 ₽" {
		t.Errorf("unexpected option %+v", o)
	}
	if _, ok := LookupOption(TaskOptions, CustomKey); ok {
		t.Error("custom is not a predefined option")
	}
	for _, o := range BudgetOptions {
		if ParseBudget(o.Label) != Budget(o.Key) {
			t.Errorf("label %q does not parse back to %s", o.Label, o.Key)
		}
	}
}

func TestQualify(t *testing.T) {
	tests := []struct {
		name     string
		budget   Answer
		deadline Answer
		want     models.Tier
	}{
		{"buttons hot", Answer{Key: "high"}, Answer{Key: "urgent"}, models.TierHot},
		{"buttons later high stays cold", Answer{Key: "high"}, Answer{Key: "later"}, models.TierCold},
		{"typed budget with urgent button", Answer{Text: "около 100000"}, Answer{Key: "urgent"}, models.TierHot},
		{"high button with typed deadline", Answer{Key: "high"}, Answer{Text: "в этом месяце"}, models.TierHot},
		{"typed without markers", Answer{Text: "не знаю"}, Answer{Key: "later"}, models.TierWarm},
		{"both typed", Answer{Text: "50к"}, Answer{Text: "когда-нибудь"}, models.TierWarm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Qualify(tt.budget, tt.deadline); got != tt.want {
				t.Errorf("Qualify(%+v, %+v) = %s, want %s", tt.budget, tt.deadline, got, tt.want)
			}
		})
	}
}
