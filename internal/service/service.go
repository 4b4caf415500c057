package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rongwang/leave-roster-server/internal/metrics"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/repository"
	"github.com/rongwang/leave-roster-server/internal/utils"
	"github.com/sethvargo/go-retry"
	"golang.org/x/text/language"
)

// Service defines all the business logic operations
type Service interface {
	// Pilot directory
	ListPilots(ctx context.Context, activeOnly bool) ([]models.Pilot, error)
	CreatePilot(ctx context.Context, rc RequestContext, req models.CreatePilotRequest) (*models.Pilot, error)
	UpdatePilot(ctx context.Context, rc RequestContext, pilotID string, req models.UpdatePilotRequest) (*models.Pilot, error)

	// Availability
	IsAvailable(ctx context.Context, name string, year, weekNumber int) (bool, error)

	// Leave weeks
	ListLeaveWeeks(ctx context.Context, year int, leaveType models.LeaveType, includeDeleted bool) ([]models.LeaveWeek, error)
	GetLeaveWeek(ctx context.Context, leaveID string) (*models.LeaveWeek, error)
	SaveLeaves(ctx context.Context, rc RequestContext, req models.SaveLeavesRequest) (*models.SaveLeavesResponse, error)
	SetApproval(ctx context.Context, rc RequestContext, req models.ApprovalRequest) error
	RemoveLeaveWeek(ctx context.Context, rc RequestContext, leaveID string) (*models.LeaveWeek, error)
	DeleteLeaveWeek(ctx context.Context, rc RequestContext, leaveID string) error

	// Audit ledger
	AuditEntries(ctx context.Context, target models.Target) ([]models.AuditEntry, error)

	// Privileged operations
	SetAdminKey(ctx context.Context, key string) error
	Revert(ctx context.Context, rc RequestContext, auditPath string) error
	Hide(ctx context.Context, rc RequestContext, auditPath string) error

	// Feed
	Feed(ctx context.Context, limit int) ([]models.AuditEntry, error)
	HiddenPaths(ctx context.Context) ([]string, error)
}

// LedgerGapHook is notified whenever an audit entry could not be written
type LedgerGapHook func(ctx context.Context, entry models.AuditEntry, err error)

// Options tune a DefaultService; zero values pick the defaults
type Options struct {
	Logger        *utils.Logger
	Locale        language.Tag
	WriteFanOut   int
	MaxRetries    uint64
	RetryBase     time.Duration
	LedgerGapHook LedgerGapHook
}

const (
	defaultWriteFanOut = 10
	defaultMaxRetries  = 4
	defaultRetryBase   = 10 * time.Millisecond
)

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	logger        *utils.Logger
	locale        language.Tag
	fanOut        int
	maxRetries    uint64
	retryBase     time.Duration
	ledgerGapHook LedgerGapHook
	validate      *validator.Validate
}

var _ Service = (*DefaultService)(nil)

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, opts Options) *DefaultService {
	s := &DefaultService{
		repo:          repo,
		logger:        opts.Logger,
		locale:        opts.Locale,
		fanOut:        opts.WriteFanOut,
		maxRetries:    opts.MaxRetries,
		retryBase:     opts.RetryBase,
		ledgerGapHook: opts.LedgerGapHook,
		validate:      validator.New(),
	}
	if s.logger == nil {
		s.logger = utils.NopLogger()
	}
	if s.locale == language.Und {
		s.locale = language.English
	}
	if s.fanOut <= 0 {
		s.fanOut = defaultWriteFanOut
	}
	if s.maxRetries == 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.retryBase <= 0 {
		s.retryBase = defaultRetryBase
	}
	return s
}

// inTx runs fn in a repository transaction, retrying on version conflicts.
// fn may run more than once and must not leak state between attempts.
func (s *DefaultService) inTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.repo.RunInTx(ctx, fn)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.WriteConflicts.Inc()
			return retry.RetryableError(err)
		}
		return err
	})

	return storageError(err)
}

func (s *DefaultService) validateRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return invalidArgument("%v", err)
	}
	return nil
}
