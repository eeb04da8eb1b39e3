package lead

import "github.com/BTreeMap/LeadPipe/internal/models"

// Answer is one qualification answer: a button key, or typed text with an empty Key.
type Answer struct {
	Key  string
	Text string
}

// Typed reports whether the answer was written by the prospect.
func (a Answer) Typed() bool {
	return a.Key == ""
}

// markerText is what the free-text path sees for an answer.
func (a Answer) markerText(options []Option) string {
	if a.Typed() {
		return a.Text
	}
	if o, ok := LookupOption(options, a.Key); ok {
		return o.Marker
	}
	return ""
}

// Qualify classifies a finished qualification pass. Two button answers use the structured
// table; if either answer was typed, both go through the free-text path.
func Qualify(budget, deadline Answer) models.Tier {
	if !budget.Typed() && !deadline.Typed() {
		return Classify(ParseUrgency(deadline.Key), ParseBudget(budget.Key))
	}
	return ClassifyCustom(deadline.markerText(DeadlineOptions), budget.markerText(BudgetOptions))
}
