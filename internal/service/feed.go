package service

import (
	"context"
	"fmt"

	"github.com/rongwang/leave-roster-server/internal/models"
)

const (
	DefaultFeedLimit = 50
	MaxFeedLimit     = 500
)

// Feed merges the ledgers of every document, newest first
func (s *DefaultService) Feed(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultFeedLimit
	case limit > MaxFeedLimit:
		limit = MaxFeedLimit
	}

	entries, err := s.repo.RecentAuditEntries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("error loading feed: %w", err)
	}
	return entries, nil
}

// HiddenPaths lists the audit paths suppressed from display, oldest marker first
func (s *DefaultService) HiddenPaths(ctx context.Context) ([]string, error) {
	markers, err := s.repo.ListHiddenMarkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading hidden markers: %w", err)
	}

	paths := make([]string, 0, len(markers))
	for _, marker := range markers {
		paths = append(paths, marker.Path)
	}
	return paths, nil
}
