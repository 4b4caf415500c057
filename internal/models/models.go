package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// LeaveType is the leave pool a week belongs to
type LeaveType string

const (
	LeaveAnnual LeaveType = "annual"
	LeaveSummer LeaveType = "summer"
)

// SlotWidth returns the fixed number of slots for the pool
func (t LeaveType) SlotWidth() int {
	if t == LeaveSummer {
		return 5
	}
	return 4
}

// Other returns the opposite pool
func (t LeaveType) Other() LeaveType {
	if t == LeaveSummer {
		return LeaveAnnual
	}
	return LeaveSummer
}

func (t LeaveType) Valid() bool {
	return t == LeaveAnnual || t == LeaveSummer
}

// ChangeType classifies an audit entry
type ChangeType string

const (
	ChangeCreate     ChangeType = "create"
	ChangeUpdate     ChangeType = "update"
	ChangeSoftDelete ChangeType = "softDelete"
	ChangeReverted   ChangeType = "reverted"
)

// Document field names
const (
	FieldWeekNumber  = "weekNumber"
	FieldYear        = "year"
	FieldType        = "type"
	FieldDateRange   = "dateRange"
	FieldStartDate   = "startDate"
	FieldEndDate     = "endDate"
	FieldSlots       = "slots"
	FieldApproved    = "approved"
	FieldDeleted     = "deleted"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
	FieldDisplayName = "displayName"
	FieldActive      = "active"
)

// SystemActor is the actor name recorded for privileged operations
const SystemActor = "System"

// Fields is the JSON-shaped content of a stored document
type Fields map[string]any

// Clone returns a deep copy of the fields
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

// Keys returns the top-level field names in sorted order
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Fields(t).Clone()
	case Fields:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// ToFields converts a value to its JSON-shaped field map
func ToFields(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return out, nil
}

// Decode fills v from the field map
func (f Fields) Decode(v any) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}

// Document is a stored leave week or pilot record
type Document struct {
	Ref       Target    `json:"ref"`
	Data      Fields    `json:"data"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Deleted reports the soft-delete flag; a missing flag counts as live
func (d *Document) Deleted() bool {
	v, _ := d.Data[FieldDeleted].(bool)
	return v
}

// Pilot represents a licensed pilot on the roster
type Pilot struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
	Active      bool   `json:"active"`
}

// Fields returns the stored representation of the pilot
func (p *Pilot) Fields() (Fields, error) {
	f, err := ToFields(p)
	if err != nil {
		return nil, err
	}
	delete(f, "id")
	return f, nil
}

// PilotFromDocument decodes a pilot document
func PilotFromDocument(doc *Document) (*Pilot, error) {
	var p Pilot
	if err := doc.Data.Decode(&p); err != nil {
		return nil, err
	}
	p.ID = doc.Ref.ID
	return &p, nil
}

// LeaveWeek is one scheduling unit: a pool, a week and its ordered slots
type LeaveWeek struct {
	ID         string    `json:"id,omitempty"`
	WeekNumber int       `json:"weekNumber"`
	Year       int       `json:"year"`
	Type       LeaveType `json:"type"`
	DateRange  string    `json:"dateRange,omitempty"`
	StartDate  string    `json:"startDate,omitempty"`
	EndDate    string    `json:"endDate,omitempty"`
	Slots      []string  `json:"slots"`
	Approved   bool      `json:"approved"`
	Deleted    bool      `json:"deleted"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Fields returns the stored representation of the week. The id lives in the
// document key, not in the body.
func (w *LeaveWeek) Fields() (Fields, error) {
	f, err := ToFields(w)
	if err != nil {
		return nil, err
	}
	delete(f, "id")
	return f, nil
}

// LeaveWeekFromDocument decodes a leave week document
func LeaveWeekFromDocument(doc *Document) (*LeaveWeek, error) {
	var w LeaveWeek
	if err := doc.Data.Decode(&w); err != nil {
		return nil, err
	}
	w.ID = doc.Ref.ID
	return &w, nil
}

// AuditEntry is one immutable ledger record owned by a target document
type AuditEntry struct {
	ID              string     `json:"id"`
	Seq             int64      `json:"seq"`
	Target          Target     `json:"targetPath"`
	Timestamp       time.Time  `json:"ts"`
	ClientTimestamp *time.Time `json:"clientTs,omitempty"`
	ChangeType      ChangeType `json:"changeType"`
	ActorName       string     `json:"actorName"`
	ChangedFields   []string   `json:"changedFields"`
	PrevSnapshot    Fields     `json:"prevSnapshot"`
	HumanLine       string     `json:"humanLine"`
	RevertedAuditID string     `json:"revertedAuditId,omitempty"`
}

// Ref returns the reference of the entry within its target's ledger
func (e *AuditEntry) Ref() AuditRef {
	return AuditRef{Target: e.Target, ID: e.ID}
}

// AdminSettings holds the shared secret gating privileged operations.
// Only a bcrypt hash of the key is stored.
type AdminSettings struct {
	AdminKeyHash string    `db:"admin_key_hash" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// HiddenMarker suppresses an audit entry from display without touching it
type HiddenMarker struct {
	ID       string    `db:"id" json:"id"`
	Path     string    `db:"path" json:"path"`
	HiddenAt time.Time `db:"hidden_at" json:"hiddenAt"`
	By       string    `db:"hidden_by" json:"by"`
}
