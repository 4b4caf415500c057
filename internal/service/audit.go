package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rongwang/leave-roster-server/internal/metrics"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/repository"
)

const (
	dateLayout   = "2006-01-02"
	shortIDWidth = 8
)

// auditRecord describes one mutation to be chronicled
type auditRecord struct {
	Target          models.Target
	ChangeType      models.ChangeType
	Actor           string
	ChangedFields   []string
	Prev            models.Fields // state immediately before the write; nil for create
	Next            models.Fields
	RevertedAuditID string
	ClientTime      *time.Time
}

// record appends the ledger entry for a mutation inside the mutation's own
// transaction. Ledger failures are logged and counted, never returned: the
// document write stays the source of truth.
func (s *DefaultService) record(ctx context.Context, tx repository.Tx, rec auditRecord) {
	changed := rec.ChangedFields
	if changed == nil {
		changed = []string{}
	}

	entry := &models.AuditEntry{
		Target:          rec.Target,
		ClientTimestamp: rec.ClientTime,
		ChangeType:      rec.ChangeType,
		ActorName:       rec.Actor,
		ChangedFields:   changed,
		PrevSnapshot:    rec.Prev.Clone(),
		HumanLine:       HumanLine(rec.ChangeType, rec.Actor, rec.Target, rec.Prev, rec.Next, rec.RevertedAuditID),
		RevertedAuditID: rec.RevertedAuditID,
	}

	if err := tx.AppendAuditEntry(ctx, entry); err != nil {
		s.logger.Warn(ctx, "audit ledger append failed; primary write kept",
			"target", rec.Target.Path(), "changeType", rec.ChangeType, "actor", rec.Actor, "error", err)
		metrics.AuditWriteFailures.WithLabelValues(string(rec.Target.Kind), string(rec.ChangeType)).Inc()
		if s.ledgerGapHook != nil {
			s.ledgerGapHook(ctx, *entry, err)
		}
	}
}

// AuditEntries returns the ledger of one document, oldest first
func (s *DefaultService) AuditEntries(ctx context.Context, target models.Target) ([]models.AuditEntry, error) {
	entries, err := s.repo.ListAuditEntries(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("error listing audit entries: %w", err)
	}
	return entries, nil
}

// HumanLine renders the one-sentence summary of a change. Rules are applied
// in order; the first that matches wins.
func HumanLine(
	changeType models.ChangeType,
	actor string,
	target models.Target,
	prev, next models.Fields,
	revertedAuditID string,
) string {
	labelSource := next
	if labelSource == nil {
		labelSource = prev
	}
	label := DocumentLabel(target, labelSource)

	switch changeType {
	case models.ChangeSoftDelete:
		return fmt.Sprintf("%s deleted %s.", actor, label)
	case models.ChangeReverted:
		return fmt.Sprintf("System reverted change %s.", shortID(revertedAuditID))
	}

	if target.Kind == models.KindLeave {
		prevSlots := slotsOf(prev)
		nextSlots := slotsOf(next)

		if allEmpty(prevSlots) && firstFilled(nextSlots) == 0 {
			return fmt.Sprintf("%s added a leave entry to slot 1 of %s.", actor, label)
		}

		for i, owner := range prevSlots {
			if owner == "" {
				continue
			}
			var now string
			if i < len(nextSlots) {
				now = nextSlots[i]
			}
			if now != owner {
				return fmt.Sprintf("%s replaced slot %d (%s) of %s.", actor, i+1, owner, label)
			}
		}
	}

	return fmt.Sprintf("%s made an update to %s.", actor, label)
}

// DocumentLabel names a document for human lines
func DocumentLabel(target models.Target, fields models.Fields) string {
	if target.Kind == models.KindPilot {
		if name, _ := fields[models.FieldDisplayName].(string); name != "" {
			return "pilot " + name
		}
		return "pilot " + target.ID
	}
	return WeekLabel(fields)
}

// WeekLabel prefers "<startDay>–<endDay> <month>" and falls back to "Week <n>"
func WeekLabel(fields models.Fields) string {
	startRaw, _ := fields[models.FieldStartDate].(string)
	endRaw, _ := fields[models.FieldEndDate].(string)
	start, errStart := time.Parse(dateLayout, startRaw)
	end, errEnd := time.Parse(dateLayout, endRaw)

	if errStart == nil && errEnd == nil {
		if start.Month() == end.Month() {
			return fmt.Sprintf("%d–%d %s", start.Day(), end.Day(), end.Month())
		}
		return fmt.Sprintf("%d %s–%d %s", start.Day(), start.Month(), end.Day(), end.Month())
	}

	switch n := fields[models.FieldWeekNumber].(type) {
	case float64:
		return fmt.Sprintf("Week %d", int(n))
	case int:
		return fmt.Sprintf("Week %d", n)
	}
	return "a leave week"
}

func shortID(id string) string {
	if len(id) > shortIDWidth {
		return id[:shortIDWidth]
	}
	return id
}

// slotsOf reads the slot list of a leave week body; the placeholder counts as empty
func slotsOf(fields models.Fields) []string {
	var out []string
	switch raw := fields[models.FieldSlots].(type) {
	case []any:
		out = make([]string, len(raw))
		for i, v := range raw {
			s, _ := v.(string)
			out[i] = normalizeSlot(s)
		}
	case []string:
		out = make([]string, len(raw))
		for i, v := range raw {
			out[i] = normalizeSlot(v)
		}
	}
	return out
}

func firstFilled(slots []string) int {
	for i, s := range slots {
		if s != "" {
			return i
		}
	}
	return -1
}
