// Package schedule derives the date and time selection structures shown to
// users from the slots stored for a location. It is transport-agnostic: the
// bot package turns the grid into inline keyboard rows.
package schedule

import (
	"fmt"
	"time"

	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

// Cell is one calendar grid position. Day 0 marks a padding cell outside
// the month. Times holds the slot times on that day, so days with sessions
// render differently from empty days.
type Cell struct {
	Day   int
	Times []string
}

// Week is a Monday-first row of seven cells.
type Week [7]Cell

// Month is the calendar view for one location and month.
type Month struct {
	Year  int
	Month time.Month
	Weeks []Week
}

// MonthBounds returns the canonical date strings for the first day of the
// month and the first day of the following month, computed with calendar
// arithmetic so December and varying month lengths need no special cases.
func MonthBounds(year int, month time.Month) (from, to string) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first.Format("2006-01-02"), first.AddDate(0, 1, 0).Format("2006-01-02")
}

// BuildMonth lays the month's days out on a fixed 7-column, Monday-first
// grid (ISO week convention) and annotates each day with the times of the
// slots falling on it. Leading and trailing cells outside the month stay
// zero-valued.
func BuildMonth(year int, month time.Month, slots []storage.Slot) Month {
	timesByDay := make(map[int][]string)
	for _, sl := range slots {
		d, err := time.Parse("2006-01-02", sl.Date)
		if err != nil || d.Year() != year || d.Month() != month {
			continue
		}
		timesByDay[d.Day()] = append(timesByDay[d.Day()], sl.Time)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	// time.Weekday is Sunday-based; shift so Monday occupies column 0.
	offset := (int(first.Weekday()) + 6) % 7

	m := Month{Year: year, Month: month}
	var week Week
	col := offset
	for day := 1; day <= daysInMonth; day++ {
		week[col] = Cell{Day: day, Times: timesByDay[day]}
		col++
		if col == 7 {
			m.Weeks = append(m.Weeks, week)
			week = Week{}
			col = 0
		}
	}
	if col > 0 {
		m.Weeks = append(m.Weeks, week)
	}
	return m
}

// PrevMonth and NextMonth step the view, wrapping across year boundaries.
func PrevMonth(year int, month time.Month) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return t.Year(), t.Month()
}

func NextMonth(year int, month time.Month) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return t.Year(), t.Month()
}

// Weekdays is the Monday-first header row.
var Weekdays = [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// MonthNames maps time.Month to the Russian display name.
var MonthNames = map[time.Month]string{
	time.January: "Январь", time.February: "Февраль", time.March: "Март",
	time.April: "Апрель", time.May: "Май", time.June: "Июнь",
	time.July: "Июль", time.August: "Август", time.September: "Сентябрь",
	time.October: "Октябрь", time.November: "Ноябрь", time.December: "Декабрь",
}

// Title renders the month header, e.g. "Август 2026".
func (m Month) Title() string {
	return fmt.Sprintf("%s %d", MonthNames[m.Month], m.Year)
}
