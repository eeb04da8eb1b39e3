package flow

import (
	"sort"
	"strconv"

	"github.com/BTreeMap/LeadPipe/internal/lead"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

func button(label string, d Domain, prospectID, selector string) []models.Button {
	return []models.Button{{Label: label, Token: Token{Domain: d, ProspectID: prospectID, Selector: selector}.String()}}
}

func optionKeyboard(options []lead.Option, d Domain, prospectID, customLabel string) [][]models.Button {
	rows := make([][]models.Button, 0, len(options)+1)
	for _, o := range options {
		rows = append(rows, button(o.Button, d, prospectID, o.Key))
	}
	return append(rows, button(customLabel, d, prospectID, lead.CustomKey))
}

// TaskKeyboard offers the predefined tasks and a typed answer.
func TaskKeyboard(prospectID string) [][]models.Button {
	return optionKeyboard(lead.TaskOptions, DomainTask, prospectID, "✍️ Своя задача")
}

// BudgetKeyboard offers the budget ranges and a typed answer.
func BudgetKeyboard(prospectID string) [][]models.Button {
	return optionKeyboard(lead.BudgetOptions, DomainBudget, prospectID, "✍️ Свой вариант")
}

// DeadlineKeyboard offers the deadline choices and a typed answer.
func DeadlineKeyboard(prospectID string) [][]models.Button {
	return optionKeyboard(lead.DeadlineOptions, DomainDeadline, prospectID, "✍️ Свой срок")
}

// ActionKeyboard is shown after qualification. HOT prospects see the meeting first, WARM
// prospects see it last and COLD prospects do not see it.
func ActionKeyboard(prospectID string, tier models.Tier) [][]models.Button {
	var rows [][]models.Button
	if tier == models.TierHot {
		rows = append(rows, button("Назначить звонок", DomainAction, prospectID, SelectScheduleMeeting))
	}
	rows = append(rows,
		button("Получить материалы", DomainAction, prospectID, SelectSendMaterials),
		button("Задать вопрос", DomainAction, prospectID, SelectFreeChat),
	)
	if tier == models.TierWarm {
		rows = append(rows, button("Обсудить лично", DomainAction, prospectID, SelectScheduleMeeting))
	}
	return append(rows, button("Начать заново", DomainAction, prospectID, SelectRestart))
}

// FreeChatKeyboard accompanies free-chat replies; COLD prospects get no meeting button.
// Selectors carry the menu number so only the latest menu accepts presses.
func FreeChatKeyboard(prospectID string, tier models.Tier, menu int) [][]models.Button {
	var rows [][]models.Button
	if tier != models.TierCold {
		rows = append(rows, button("Назначить звонок", DomainChat, prospectID, chatSelector(SelectScheduleMeeting, menu)))
	}
	return append(rows,
		button("Получить материалы", DomainChat, prospectID, chatSelector(SelectSendMaterials, menu)),
		button("Начать заново", DomainChat, prospectID, SelectRestart),
	)
}

// MeetingKeyboard lists the offered slots in order, then next week and a typed time.
func MeetingKeyboard(prospectID string, offered Slots) [][]models.Button {
	var indexes []int
	for sel := range offered {
		if i, err := strconv.Atoi(sel); err == nil {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	rows := make([][]models.Button, 0, len(indexes)+2)
	for _, i := range indexes {
		sel := strconv.Itoa(i)
		rows = append(rows, button(FormatSlot(offered[sel]), DomainMeeting, prospectID, sel))
	}
	if _, ok := offered[SelectNextWeek]; ok {
		rows = append(rows, button("На следующей неделе", DomainMeeting, prospectID, SelectNextWeek))
	}
	return append(rows, button("Предложить своё время", DomainMeeting, prospectID, SelectCustomTime))
}
