package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned when a document or audit path cannot be parsed
var ErrInvalidPath = errors.New("invalid document path")

// TargetKind is the collection a mutable document belongs to
type TargetKind string

const (
	KindLeave TargetKind = "leaves"
	KindPilot TargetKind = "pilots"
)

const auditSegment = "audit"

// Target identifies a mutable document: either a leave week or a pilot
type Target struct {
	Kind TargetKind
	ID   string
}

// LeaveTarget returns the target of the leave week with the given id
func LeaveTarget(id string) Target {
	return Target{Kind: KindLeave, ID: id}
}

// PilotTarget returns the target of the pilot with the given id
func PilotTarget(id string) Target {
	return Target{Kind: KindPilot, ID: id}
}

// Path renders the target as "<kind>/<id>"
func (t Target) Path() string {
	return string(t.Kind) + "/" + t.ID
}

func (t Target) String() string {
	return t.Path()
}

// IsZero reports whether the target is unset
func (t Target) IsZero() bool {
	return t.Kind == "" && t.ID == ""
}

func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.Path()), nil
}

func (t *Target) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTarget parses "leaves/<id>" or "pilots/<id>"
func ParseTarget(path string) (Target, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return parseTargetParts(parts[0], parts[1], path)
}

// AuditRef identifies one audit entry owned by a target document
type AuditRef struct {
	Target Target
	ID     string
}

// Path renders the reference as "<kind>/<id>/audit/<auditId>"
func (r AuditRef) Path() string {
	return r.Target.Path() + "/" + auditSegment + "/" + r.ID
}

func (r AuditRef) String() string {
	return r.Path()
}

// EncodedPath is a single-segment key derived from Path, used to key hidden markers
func (r AuditRef) EncodedPath() string {
	return base64.RawURLEncoding.EncodeToString([]byte(r.Path()))
}

// ParseAuditPath parses "<kind>/<id>/audit/<auditId>". Anything else,
// including extra segments or unknown collections, is rejected.
func ParseAuditPath(path string) (AuditRef, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 4 || parts[2] != auditSegment {
		return AuditRef{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	target, err := parseTargetParts(parts[0], parts[1], path)
	if err != nil {
		return AuditRef{}, err
	}

	if !validID(parts[3]) {
		return AuditRef{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	return AuditRef{Target: target, ID: parts[3]}, nil
}

func parseTargetParts(kind, id, path string) (Target, error) {
	switch TargetKind(kind) {
	case KindLeave, KindPilot:
	default:
		return Target{}, fmt.Errorf("%w: unknown collection in %q", ErrInvalidPath, path)
	}

	if !validID(id) {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	return Target{Kind: TargetKind(kind), ID: id}, nil
}

// validID accepts the characters used by generated and hand-picked document ids
func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
