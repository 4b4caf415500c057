package service

import (
	"strings"
	"time"
)

// placeholder marks a slot that is visually reserved but holds nobody
const placeholder = "*"

func normalizeSlot(s string) string {
	s = strings.TrimSpace(s)
	if s == placeholder {
		return ""
	}
	return s
}

// padSlots normalizes slots and pads them with empty strings to width
func padSlots(slots []string, width int) []string {
	n := width
	if len(slots) > n {
		n = len(slots)
	}
	out := make([]string, n)
	for i, s := range slots {
		out[i] = normalizeSlot(s)
	}
	return out
}

func equalSlots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func allEmpty(slots []string) bool {
	return firstFilled(slots) < 0
}

func nonEmpty(slots []string) []string {
	out := []string{}
	for _, s := range slots {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isoWeekBounds returns the Monday and Sunday of an ISO week
func isoWeekBounds(year, week int) (time.Time, time.Time, bool) {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+(week-1)*7)

	y, w := monday.ISOWeek()
	if y != year || w != week {
		return time.Time{}, time.Time{}, false
	}
	return monday, monday.AddDate(0, 0, 6), true
}
