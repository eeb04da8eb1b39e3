package lead

// Option is one predefined answer to a qualification question.
type Option struct {
	Key    string // selector used in callback tokens
	Label  string // value stored on the prospect
	Button string // text shown on the button
	Marker string // text fed to ClassifyCustom when the other answer was typed
}

// CustomKey is the selector for "type my own answer".
const CustomKey = "custom"

// TaskOptions are the predefined task answers.
var TaskOptions = []Option{
	{Key: "website", Label: "Создание сайта", Button: "📱 Создание сайта"},
	{Key: "design", Label: "Дизайн", Button: "🎨 Дизайн"},
	{Key: "app", Label: "Разработка приложения", Button: "💻 Разработка приложения"},
}

// BudgetOptions are the predefined budget answers; keys are Budget values.
var BudgetOptions = []Option{
	{Key: string(BudgetLow), Label: "До 50 000 ₽", Button: "💰 До 50 000 ₽"},
	{Key: string(BudgetMedium), Label: "50 000 - 150 000 ₽", Button: "💰 50 000 - 150 000 ₽", Marker: "50 000"},
	{Key: string(BudgetHigh), Label: "150 000+ ₽", Button: "💰 150 000+ ₽", Marker: "150 000+"},
	{Key: string(BudgetUnknown), Label: "Пока не знаю", Button: "🤷 Пока не знаю"},
}

// DeadlineOptions are the predefined deadline answers; keys are Urgency values.
var DeadlineOptions = []Option{
	{Key: string(UrgencyUrgent), Label: "Срочно (на этой неделе)", Button: "🔥 Срочно (на этой неделе)", Marker: "срочно"},
	{Key: string(UrgencySoon), Label: "Скоро (в этом месяце)", Button: "⏰ Скоро (в этом месяце)", Marker: "скоро"},
	{Key: string(UrgencyLater), Label: "Не срочно (есть время)", Button: "📅 Не срочно (есть время)"},
}

// LookupOption finds the option with the given key.
func LookupOption(options []Option, key string) (Option, bool) {
	for _, o := range options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}
