package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rongwang/leave-roster-server/internal/models"
	"golang.org/x/text/cases"
)

// IsAvailable reports whether name holds no slot in either pool for the
// given week. Empty names and the placeholder are always available.
func (s *DefaultService) IsAvailable(ctx context.Context, name string, year, weekNumber int) (bool, error) {
	if normalizeSlot(name) == "" {
		return true, nil
	}

	docs, err := s.repo.FindLeaveWeeks(ctx, year, weekNumber)
	if err != nil {
		return false, fmt.Errorf("error loading leave weeks: %w", err)
	}

	key := s.fold(name)
	for i := range docs {
		if s.holds(slotsOf(docs[i].Data), key) {
			return false, nil
		}
	}
	return true, nil
}

// fold lower-cases a name using the configured locale's casing rules.
// A Caser is not safe for concurrent use, so one is made per call.
func (s *DefaultService) fold(name string) string {
	return cases.Lower(s.locale).String(strings.TrimSpace(name))
}

func (s *DefaultService) holds(slots []string, foldedName string) bool {
	for _, slot := range slots {
		if slot != "" && s.fold(slot) == foldedName {
			return true
		}
	}
	return false
}

// checkBooking guards an upsert: no name twice within the week, and every
// name not already in the stored week must be free in the other pool.
func (s *DefaultService) checkBooking(slots []string, current, other *models.Document, weekNumber int) error {
	seen := make(map[string]bool)
	for _, slot := range slots {
		if slot == "" {
			continue
		}
		key := s.fold(slot)
		if seen[key] {
			return invalidArgument("%s appears more than once in week %d", slot, weekNumber)
		}
		seen[key] = true
	}

	var currentSlots []string
	if current != nil {
		currentSlots = slotsOf(current.Data)
	}
	if other == nil {
		return nil
	}
	otherSlots := slotsOf(other.Data)

	for _, slot := range slots {
		if slot == "" {
			continue
		}
		key := s.fold(slot)
		if s.holds(currentSlots, key) {
			continue
		}
		if s.holds(otherSlots, key) {
			return invalidArgument("%s already holds leave in week %d", slot, weekNumber)
		}
	}
	return nil
}
