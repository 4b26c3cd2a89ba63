package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime normalizes admin-entered session times to the canonical
// zero-padded "HH:MM" form. Both ":" and "." separators are accepted
// ("9.30" becomes "09:30"). Out-of-range values are rejected so an invalid
// entry re-prompts the wizard step instead of reaching the store.
func ParseTime(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.ReplaceAll(s, ".", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("time %q: want HH:MM or HH.MM", input)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", fmt.Errorf("time %q: bad hour", input)
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", fmt.Errorf("time %q: bad minute", input)
	}
	if h < 0 || h > 23 {
		return "", fmt.Errorf("time %q: hour out of range", input)
	}
	if m < 0 || m > 59 {
		return "", fmt.Errorf("time %q: minute out of range", input)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// ParseDate validates a canonical YYYY-MM-DD date string and returns it
// trimmed.
func ParseDate(input string) (string, error) {
	s := strings.TrimSpace(input)
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("date %q: want YYYY-MM-DD", input)
	}
	return s, nil
}
