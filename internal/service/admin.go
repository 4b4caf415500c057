package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rongwang/leave-roster-server/internal/metrics"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const defaultHiddenBy = "admin"

// SetAdminKey provisions or rotates the shared admin key. Only its bcrypt
// hash is stored.
func (s *DefaultService) SetAdminKey(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return invalidArgument("admin key cannot be blank")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing admin key: %w", err)
	}

	settings := &models.AdminSettings{
		AdminKeyHash: string(hash),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.repo.PutAdminSettings(ctx, settings); err != nil {
		return fmt.Errorf("error storing admin settings: %w", err)
	}
	return nil
}

// authorize checks the caller's credential against the stored admin key
func (s *DefaultService) authorize(ctx context.Context, credential string) error {
	settings, err := s.repo.GetAdminSettings(ctx)
	if err != nil {
		return fmt.Errorf("error loading admin settings: %w", err)
	}
	if settings == nil || settings.AdminKeyHash == "" {
		return fmt.Errorf("%w: admin key is not configured", ErrPermissionDenied)
	}
	if credential == "" {
		return fmt.Errorf("%w: admin key is required", ErrPermissionDenied)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(settings.AdminKeyHash), []byte(credential)); err != nil {
		return fmt.Errorf("%w: admin key does not match", ErrPermissionDenied)
	}
	return nil
}

// privileged parses the audit path, checks the credential and loads the entry
func (s *DefaultService) privileged(ctx context.Context, rc RequestContext, auditPath string) (*models.AuditEntry, error) {
	ref, err := models.ParseAuditPath(auditPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := s.authorize(ctx, rc.Credential); err != nil {
		return nil, err
	}

	entry, err := s.repo.GetAuditEntry(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("error loading audit entry: %w", err)
	}
	if entry == nil {
		return nil, notFound("audit entry %s", ref.Path())
	}
	return entry, nil
}

// Revert restores the owning document of an audit entry to the entry's
// snapshot. The snapshot replaces the whole body; fields it lacks are
// dropped. A reverted entry of its own is appended.
func (s *DefaultService) Revert(ctx context.Context, rc RequestContext, auditPath string) (err error) {
	defer func() { metrics.PrivilegedCalls.WithLabelValues("revert", outcomeKind(err)).Inc() }()

	entry, err := s.privileged(ctx, rc, auditPath)
	if err != nil {
		return err
	}
	if entry.PrevSnapshot == nil {
		return failedPrecondition("audit entry %s has nothing to restore", entry.ID)
	}

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if entry.Target.Kind == models.KindLeave {
			var week models.LeaveWeek
			if err := entry.PrevSnapshot.Decode(&week); err != nil {
				return err
			}
			if err := tx.LockWeek(ctx, week.Year, week.WeekNumber); err != nil {
				return err
			}
		}

		current, err := tx.GetDocument(ctx, entry.Target)
		if err != nil {
			return err
		}

		var expected int64
		if current != nil {
			expected = current.Version
		}

		doc := &models.Document{Ref: entry.Target, Data: entry.PrevSnapshot.Clone()}
		if err := tx.ReplaceDocument(ctx, doc, expected); err != nil {
			return err
		}

		s.record(ctx, tx, auditRecord{
			Target:          entry.Target,
			ChangeType:      models.ChangeReverted,
			Actor:           models.SystemActor,
			ChangedFields:   []string{},
			Next:            doc.Data,
			RevertedAuditID: entry.ID,
			ClientTime:      rc.ClientTime,
		})

		s.logger.Info(ctx, "document reverted",
			"target", entry.Target.Path(), "auditId", entry.ID, "replacedVersion", expected)
		return nil
	})
	return err
}

// Hide marks an audit entry as hidden from display. The entry itself is
// left untouched and hiding twice is a no-op.
func (s *DefaultService) Hide(ctx context.Context, rc RequestContext, auditPath string) (err error) {
	defer func() { metrics.PrivilegedCalls.WithLabelValues("hide", outcomeKind(err)).Inc() }()

	entry, err := s.privileged(ctx, rc, auditPath)
	if err != nil {
		return err
	}

	by := strings.TrimSpace(rc.Actor)
	if by == "" {
		by = defaultHiddenBy
	}

	ref := entry.Ref()
	marker := &models.HiddenMarker{
		ID:       ref.EncodedPath(),
		Path:     ref.Path(),
		HiddenAt: time.Now().UTC(),
		By:       by,
	}
	if err := s.repo.HideAuditEntry(ctx, marker); err != nil {
		return fmt.Errorf("error hiding audit entry: %w", err)
	}
	return nil
}

func outcomeKind(err error) string {
	if err == nil {
		return "ok"
	}
	return Kind(err)
}
