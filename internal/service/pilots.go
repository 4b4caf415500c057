package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/repository"
)

// ListPilots returns the pilot directory sorted by display name
func (s *DefaultService) ListPilots(ctx context.Context, activeOnly bool) ([]models.Pilot, error) {
	docs, err := s.repo.ListDocuments(ctx, models.KindPilot, false)
	if err != nil {
		return nil, fmt.Errorf("error listing pilots: %w", err)
	}

	pilots := make([]models.Pilot, 0, len(docs))
	for i := range docs {
		p, err := models.PilotFromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		if activeOnly && !p.Active {
			continue
		}
		pilots = append(pilots, *p)
	}

	sort.SliceStable(pilots, func(i, j int) bool {
		return strings.ToLower(pilots[i].DisplayName) < strings.ToLower(pilots[j].DisplayName)
	})
	return pilots, nil
}

func (s *DefaultService) CreatePilot(ctx context.Context, rc RequestContext, req models.CreatePilotRequest) (*models.Pilot, error) {
	actor, err := rc.actor()
	if err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	pilot := &models.Pilot{
		DisplayName: strings.TrimSpace(req.DisplayName),
		Active:      true,
	}
	if pilot.DisplayName == "" {
		return nil, invalidArgument("display name is required")
	}
	if req.Active != nil {
		pilot.Active = *req.Active
	}

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		doc, err := s.create(ctx, tx, rc, actor, models.PilotTarget(""), pilot)
		if err != nil {
			return err
		}
		pilot.ID = doc.Ref.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pilot, nil
}

func (s *DefaultService) UpdatePilot(
	ctx context.Context,
	rc RequestContext,
	pilotID string,
	req models.UpdatePilotRequest,
) (*models.Pilot, error) {
	actor, err := rc.actor()
	if err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	payload := models.Fields{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, invalidArgument("display name cannot be blank")
		}
		payload[models.FieldDisplayName] = name
	}
	if req.Active != nil {
		payload[models.FieldActive] = *req.Active
	}
	if len(payload) == 0 {
		return nil, invalidArgument("nothing to update")
	}

	ref := models.PilotTarget(pilotID)
	var pilot *models.Pilot
	err = s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetDocument(ctx, ref)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("pilot %s", pilotID)
		}
		if err := s.update(ctx, tx, rc, actor, current, payload.Clone(), models.ChangeUpdate); err != nil {
			return err
		}

		updated, err := tx.GetDocument(ctx, ref)
		if err != nil {
			return err
		}
		pilot, err = models.PilotFromDocument(updated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pilot, nil
}
