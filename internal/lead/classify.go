// Package lead implements prospect classification.
//
// Two paths map qualification answers to a tier: Classify works on button selections and
// ClassifyCustom on free text. Both are pure and table driven, so rule precedence is the
// order of the tables below.
package lead

import (
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Urgency is the deadline answer given with a button.
type Urgency string

const (
	UrgencyUrgent Urgency = "urgent"
	UrgencySoon   Urgency = "soon"
	UrgencyLater  Urgency = "later"
)

// Budget is the budget answer given with a button.
type Budget string

const (
	BudgetLow     Budget = "low"
	BudgetMedium  Budget = "medium"
	BudgetHigh    Budget = "high"
	BudgetUnknown Budget = "unknown"
)

// budgetAliases maps normalized labels to budget keys.
var budgetAliases = map[string]Budget{
	"low":          BudgetLow,
	"до50000":      BudgetLow,
	"medium":       BudgetMedium,
	"50000-150000": BudgetMedium,
	"high":         BudgetHigh,
	"150000+":      BudgetHigh,
	"unknown":      BudgetUnknown,
	"поканезнаю":   BudgetUnknown,
}

// ParseBudget normalizes a budget key or its displayed range ("150 000+ ₽") to a Budget.
// Unrecognized input yields BudgetUnknown.
func ParseBudget(s string) Budget {
	norm := strings.ToLower(s)
	norm = strings.NewReplacer(" ", "", "\u00a0", "", "₽", "", "руб", "").Replace(norm)
	if b, ok := budgetAliases[norm]; ok {
		return b
	}
	return BudgetUnknown
}

// ParseUrgency normalizes an urgency key. Unrecognized input is returned as is and
// classifies as COLD.
func ParseUrgency(s string) Urgency {
	return Urgency(strings.ToLower(strings.TrimSpace(s)))
}

// structuredRule matches when both the urgency and the budget are in the rule's sets.
// A nil set matches anything.
type structuredRule struct {
	urgencies []Urgency
	budgets   []Budget
	tier      models.Tier
}

// structuredRules is evaluated top to bottom; the first match wins.
// high budget with "later" deliberately stays out of the HOT rows.
var structuredRules = []structuredRule{
	{urgencies: []Urgency{UrgencyUrgent}, budgets: []Budget{BudgetMedium, BudgetHigh}, tier: models.TierHot},
	{urgencies: []Urgency{UrgencyUrgent, UrgencySoon}, budgets: []Budget{BudgetHigh}, tier: models.TierHot},
	{urgencies: []Urgency{UrgencySoon}, tier: models.TierWarm},
	{budgets: []Budget{BudgetMedium}, tier: models.TierWarm},
	{urgencies: []Urgency{UrgencyUrgent}, tier: models.TierWarm},
}

func (r structuredRule) matches(u Urgency, b Budget) bool {
	return (r.urgencies == nil || contains(r.urgencies, u)) && (r.budgets == nil || contains(r.budgets, b))
}

// Classify maps button answers to HOT, WARM or COLD.
func Classify(urgency Urgency, budget Budget) models.Tier {
	for _, r := range structuredRules {
		if r.matches(urgency, budget) {
			return r.tier
		}
	}
	return models.TierCold
}

// Signal is a marker family detected in free text.
type Signal int

const (
	SignalUrgent Signal = iota
	SignalSoon
	SignalHighBudget
	SignalMediumBudget
)

// field selects which answer a marker family is searched in.
type field int

const (
	fieldDeadline field = iota
	fieldBudget
)

// markerSet is one row of the free-text keyword table.
type markerSet struct {
	signal  Signal
	field   field
	markers []string
}

// markerTable lists lowercase substrings per signal. Substring matching means "5000000"
// also contains "500000"; that is accepted.
var markerTable = []markerSet{
	{SignalUrgent, fieldDeadline, []string{
		"срочно", "сегодня", "завтра", "на этой неделе", "горит", "вчера", "немедленно",
		"asap", "urgent", "today", "tomorrow", "this week", "right now",
	}},
	{SignalSoon, fieldDeadline, []string{
		"скоро", "в этом месяце", "на следующей неделе", "через неделю", "через две недели",
		"через 2 недели", "в ближайшее время", "до конца месяца",
		"soon", "this month", "next week", "couple of weeks",
	}},
	{SignalHighBudget, fieldBudget, []string{
		"150 000+", "150000+", "200 000", "200000", "300 000", "300000", "500 000", "500000",
		"200к", "300к", "500к", "200k", "300k", "500k", "млн", "миллион", "million",
	}},
	{SignalMediumBudget, fieldBudget, []string{
		"50 000", "50000", "70 000", "70000", "100 000", "100000",
		"50к", "70к", "100к", "50k", "70k", "100k",
	}},
}

// customRule fires when every signal in all is present and, if any is non-empty,
// at least one signal of any is present.
type customRule struct {
	all  []Signal
	any  []Signal
	tier models.Tier
}

// customRules is evaluated top to bottom. The free-text path never yields COLD.
var customRules = []customRule{
	{all: []Signal{SignalUrgent}, any: []Signal{SignalHighBudget, SignalMediumBudget}, tier: models.TierHot},
	{all: []Signal{SignalHighBudget}, any: []Signal{SignalUrgent, SignalSoon}, tier: models.TierHot},
	{any: []Signal{SignalSoon, SignalMediumBudget, SignalUrgent}, tier: models.TierWarm},
}

// defaultCustomTier applies when no custom rule matches.
const defaultCustomTier = models.TierWarm

// DetectSignals returns the marker families present in the deadline and budget texts.
func DetectSignals(deadlineText, budgetText string) map[Signal]bool {
	texts := map[field]string{
		fieldDeadline: strings.ToLower(deadlineText),
		fieldBudget:   strings.ToLower(budgetText),
	}
	found := make(map[Signal]bool)
	for _, set := range markerTable {
		text := texts[set.field]
		for _, m := range set.markers {
			if strings.Contains(text, m) {
				found[set.signal] = true
				break
			}
		}
	}
	return found
}

func (r customRule) matches(found map[Signal]bool) bool {
	for _, s := range r.all {
		if !found[s] {
			return false
		}
	}
	if len(r.any) == 0 {
		return true
	}
	for _, s := range r.any {
		if found[s] {
			return true
		}
	}
	return false
}

// ClassifyCustom maps free-text deadline and budget answers to HOT or WARM.
func ClassifyCustom(deadlineText, budgetText string) models.Tier {
	found := DetectSignals(deadlineText, budgetText)
	for _, r := range customRules {
		if r.matches(found) {
			return r.tier
		}
	}
	return defaultCustomTier
}

// Promote returns whichever tier ranks higher, keeping current on ties.
func Promote(current, candidate models.Tier) models.Tier {
	if candidate.Rank() > current.Rank() {
		return candidate
	}
	return current
}

// Improved reports whether next ranks strictly above prev.
func Improved(prev, next models.Tier) bool {
	return next.Rank() > prev.Rank()
}

// Notable reports whether reaching tier should alert the owner.
func Notable(tier models.Tier) bool {
	return tier == models.TierWarm || tier == models.TierHot
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
