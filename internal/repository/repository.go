package repository

import (
	"context"
	"errors"

	"github.com/rongwang/leave-roster-server/internal/models"
)

var (
	// ErrVersionConflict means the document changed (or a live leave week with
	// the same identity appeared) between the read and the write. Callers retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNotFound is returned by writes whose target does not exist. Reads
	// return nil, nil instead.
	ErrNotFound = errors.New("not found")
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// RunInTx runs fn inside one transaction; it commits when fn returns nil
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Document operations
	GetDocument(ctx context.Context, ref models.Target) (*models.Document, error)
	ListDocuments(ctx context.Context, kind models.TargetKind, includeDeleted bool) ([]models.Document, error)
	ListLeaveWeeks(ctx context.Context, year int, leaveType models.LeaveType, includeDeleted bool) ([]models.Document, error)
	FindLeaveWeeks(ctx context.Context, year, weekNumber int) ([]models.Document, error)
	DeleteDocument(ctx context.Context, ref models.Target) error

	// Audit ledger operations
	GetAuditEntry(ctx context.Context, ref models.AuditRef) (*models.AuditEntry, error)
	ListAuditEntries(ctx context.Context, target models.Target) ([]models.AuditEntry, error)
	RecentAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error)
	UpdateAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	DeleteAuditEntry(ctx context.Context, ref models.AuditRef) error

	// Settings operations
	GetAdminSettings(ctx context.Context) (*models.AdminSettings, error)
	PutAdminSettings(ctx context.Context, settings *models.AdminSettings) error

	// Moderation operations
	HideAuditEntry(ctx context.Context, marker *models.HiddenMarker) error
	ListHiddenMarkers(ctx context.Context) ([]models.HiddenMarker, error)
}

// Tx is the transactional view used by every mutation: the snapshot read,
// the document write and the ledger append share it.
type Tx interface {
	GetDocument(ctx context.Context, ref models.Target) (*models.Document, error)

	// LockWeek serializes transactions touching either pool of (year,
	// weekNumber) until the transaction ends. Take it before reading the
	// week so the cross-pool booking check sees every committed write.
	LockWeek(ctx context.Context, year, weekNumber int) error

	// FindLeaveWeek returns the live week with the given identity, or nil
	FindLeaveWeek(ctx context.Context, year, weekNumber int, leaveType models.LeaveType) (*models.Document, error)

	// FindLatestLeaveWeek returns the most recently updated week with the
	// given identity, deleted or not, or nil
	FindLatestLeaveWeek(ctx context.Context, year, weekNumber int, leaveType models.LeaveType) (*models.Document, error)

	// CreateDocument stores a new document, assigning its id when empty
	CreateDocument(ctx context.Context, doc *models.Document) error

	// UpdateDocument replaces the document body after checking the storage
	// rules and that the stored version still equals expectedVersion
	UpdateDocument(ctx context.Context, doc *models.Document, expectedVersion int64) error

	// ReplaceDocument is the privileged counterpart of UpdateDocument: it
	// writes doc.Data verbatim without the identity rule, creating the
	// document when expectedVersion is 0
	ReplaceDocument(ctx context.Context, doc *models.Document, expectedVersion int64) error

	// AppendAuditEntry adds a ledger entry. A failure leaves the transaction
	// usable so the primary write can still commit.
	AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}
