package schedule

import (
	"testing"
	"time"

	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

func TestBuildMonthLayout(t *testing.T) {
	// June 2026 starts on a Monday and has 30 days: exactly five rows
	// starting at column 0.
	m := BuildMonth(2026, time.June, nil)
	if len(m.Weeks) != 5 {
		t.Fatalf("weeks = %d, want 5", len(m.Weeks))
	}
	if m.Weeks[0][0].Day != 1 {
		t.Errorf("first cell = %d, want day 1 in Monday column", m.Weeks[0][0].Day)
	}
	if got := m.Weeks[4][1].Day; got != 30 {
		t.Errorf("last day cell = %d, want 30", got)
	}
	if m.Weeks[4][2].Day != 0 {
		t.Error("cell after the 30th should be padding")
	}
}

func TestBuildMonthOffset(t *testing.T) {
	// August 2026 starts on a Saturday: five leading padding cells.
	m := BuildMonth(2026, time.August, nil)
	for col := 0; col < 5; col++ {
		if m.Weeks[0][col].Day != 0 {
			t.Errorf("col %d should be padding, got day %d", col, m.Weeks[0][col].Day)
		}
	}
	if m.Weeks[0][5].Day != 1 {
		t.Errorf("Saturday column = %d, want day 1", m.Weeks[0][5].Day)
	}
}

func TestBuildMonthLeapFebruary(t *testing.T) {
	m := BuildMonth(2028, time.February, nil)
	last := 0
	for _, week := range m.Weeks {
		for _, cell := range week {
			if cell.Day > last {
				last = cell.Day
			}
		}
	}
	if last != 29 {
		t.Errorf("last day = %d, want 29 in a leap year", last)
	}
}

func TestBuildMonthAnnotatesSlotDays(t *testing.T) {
	slots := []storage.Slot{
		{Location: "Центр", Date: "2026-08-15", Time: "18:00"},
		{Location: "Центр", Date: "2026-08-15", Time: "19:00"},
		{Location: "Центр", Date: "2026-09-01", Time: "10:00"}, // other month, ignored
		{Location: "Центр", Date: "oops", Time: "10:00"},       // malformed, ignored
	}
	m := BuildMonth(2026, time.August, slots)
	var found *Cell
	for wi := range m.Weeks {
		for ci := range m.Weeks[wi] {
			if m.Weeks[wi][ci].Day == 15 {
				found = &m.Weeks[wi][ci]
			}
		}
	}
	if found == nil {
		t.Fatal("day 15 missing from grid")
	}
	if len(found.Times) != 2 {
		t.Errorf("times on the 15th = %v, want two", found.Times)
	}
}

func TestMonthBounds(t *testing.T) {
	from, to := MonthBounds(2026, time.December)
	if from != "2026-12-01" || to != "2027-01-01" {
		t.Errorf("bounds = %s..%s", from, to)
	}
}

func TestMonthNavigationWrapsYears(t *testing.T) {
	if y, m := PrevMonth(2026, time.January); y != 2025 || m != time.December {
		t.Errorf("prev of Jan 2026 = %d %v", y, m)
	}
	if y, m := NextMonth(2026, time.December); y != 2027 || m != time.January {
		t.Errorf("next of Dec 2026 = %d %v", y, m)
	}
}

func TestMonthTitle(t *testing.T) {
	m := Month{Year: 2026, Month: time.August}
	if got := m.Title(); got != "Август 2026" {
		t.Errorf("title = %q", got)
	}
}
