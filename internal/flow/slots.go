package flow

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// shownSlots is how many weekday slots the meeting menu offers.
	shownSlots = 4
	// slotDays is how many weekdays are generated, two slots each.
	slotDays = 4
)

// slotHours are the meeting start hours offered on each weekday.
var slotHours = []int{10, 15}

var (
	ruWeekdays = [...]string{"вс", "пн", "вт", "ср", "чт", "пт", "сб"}
	ruMonths   = [...]string{"", "января", "февраля", "марта", "апреля", "мая", "июня",
		"июля", "августа", "сентября", "октября", "ноября", "декабря"}
)

// MeetingSlots returns the slots of the next weekdays starting tomorrow, in loc.
func MeetingSlots(now time.Time, loc *time.Location) []time.Time {
	local := now.In(loc)
	var slots []time.Time
	for day := 1; len(slots) < slotDays*len(slotHours); day++ {
		d := time.Date(local.Year(), local.Month(), local.Day()+day, 0, 0, 0, 0, loc)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		for _, h := range slotHours {
			slots = append(slots, time.Date(d.Year(), d.Month(), d.Day(), h, 0, 0, 0, loc))
		}
	}
	return slots
}

// NextWeekSlot returns next Monday at 10:00 in loc; on a Monday that is a week ahead.
func NextWeekSlot(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	days := (8 - int(local.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return time.Date(local.Year(), local.Month(), local.Day()+days, slotHours[0], 0, 0, 0, loc)
}

// OfferSlots builds the meeting menu contents: the first weekday slots keyed by index and
// the next-week slot.
func OfferSlots(now time.Time, loc *time.Location) Slots {
	offered := make(Slots, shownSlots+1)
	for i, at := range MeetingSlots(now, loc)[:shownSlots] {
		offered[strconv.Itoa(i)] = at
	}
	offered[SelectNextWeek] = NextWeekSlot(now, loc)
	return offered
}

// FormatDate renders a date as "пн, 23 декабря".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%s, %d %s", ruWeekdays[t.Weekday()], t.Day(), ruMonths[t.Month()])
}

// FormatSlot renders a meeting time as "пн, 23 декабря, 10:00".
func FormatSlot(t time.Time) string {
	return FormatDate(t) + ", " + t.Format("15:04")
}
