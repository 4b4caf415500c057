// Package rules holds the storage access rules every repository enforces on
// ordinary (non-privileged) writes: leave weeks are never hard-deleted, their
// identity fields are fixed at creation, and the audit ledger is append-only.
package rules

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/rongwang/leave-roster-server/internal/models"
)

// ErrRuleViolation is wrapped by every rejection
var ErrRuleViolation = errors.New("storage rule violation")

var (
	ErrHardDelete        = fmt.Errorf("%w: leave weeks cannot be hard-deleted", ErrRuleViolation)
	ErrIdentityImmutable = fmt.Errorf("%w: weekNumber, year and type cannot change after creation", ErrRuleViolation)
	ErrAppendOnly        = fmt.Errorf("%w: audit entries are append-only", ErrRuleViolation)
)

var identityFields = []string{models.FieldWeekNumber, models.FieldYear, models.FieldType}

// CheckDelete validates a hard delete of a document
func CheckDelete(ref models.Target) error {
	if ref.Kind == models.KindLeave {
		return ErrHardDelete
	}
	return nil
}

// CheckUpdate validates an ordinary update of an existing document
func CheckUpdate(ref models.Target, before, after models.Fields) error {
	if ref.Kind != models.KindLeave {
		return nil
	}
	for _, field := range identityFields {
		if !sameValue(before[field], after[field]) {
			return fmt.Errorf("%w (field %s)", ErrIdentityImmutable, field)
		}
	}
	return nil
}

// CheckAuditMutation rejects any update or delete of an existing audit entry
func CheckAuditMutation(models.AuditRef) error {
	return ErrAppendOnly
}

// sameValue compares JSON-shaped values, treating numeric kinds as equal
// when they denote the same number.
func sameValue(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
