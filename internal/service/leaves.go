package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rongwang/leave-roster-server/internal/metrics"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Week outcomes reported by SaveLeaves
const (
	ActionUnchanged = "unchanged"
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionNoop      = "noop"
	ActionFailed    = "failed"
)

func (s *DefaultService) ListLeaveWeeks(
	ctx context.Context,
	year int,
	leaveType models.LeaveType,
	includeDeleted bool,
) ([]models.LeaveWeek, error) {
	if !leaveType.Valid() {
		return nil, invalidArgument("unknown leave type %q", leaveType)
	}

	docs, err := s.repo.ListLeaveWeeks(ctx, year, leaveType, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("error listing leave weeks: %w", err)
	}

	weeks := make([]models.LeaveWeek, 0, len(docs))
	for i := range docs {
		week, err := models.LeaveWeekFromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		weeks = append(weeks, *week)
	}
	return weeks, nil
}

// GetLeaveWeek fetches a week by id, including soft-deleted ones
func (s *DefaultService) GetLeaveWeek(ctx context.Context, leaveID string) (*models.LeaveWeek, error) {
	doc, err := s.repo.GetDocument(ctx, models.LeaveTarget(leaveID))
	if err != nil {
		return nil, fmt.Errorf("error getting leave week: %w", err)
	}
	if doc == nil {
		return nil, notFound("leave week %s", leaveID)
	}
	return models.LeaveWeekFromDocument(doc)
}

// SaveLeaves diffs every submitted week against its baseline and writes only
// the weeks that changed. Weeks are independent documents: they are written
// concurrently, at most fanOut at a time, and one failing does not stop the
// others.
func (s *DefaultService) SaveLeaves(
	ctx context.Context,
	rc RequestContext,
	req models.SaveLeavesRequest,
) (*models.SaveLeavesResponse, error) {
	actor, err := rc.actor()
	if err != nil {
		return nil, err
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	width := req.Type.SlotWidth()
	seen := make(map[int]bool, len(req.Weeks))
	for _, week := range req.Weeks {
		if seen[week.WeekNumber] {
			return nil, invalidArgument("week %d submitted twice", week.WeekNumber)
		}
		seen[week.WeekNumber] = true
		if len(week.Slots) > width || len(week.Baseline) > width {
			return nil, invalidArgument("week %d has more than %d slots", week.WeekNumber, width)
		}
		if _, _, ok := isoWeekBounds(req.Year, week.WeekNumber); !ok {
			return nil, invalidArgument("%d has no week %d", req.Year, week.WeekNumber)
		}
	}

	results := make([]models.WeekResult, len(req.Weeks))
	failures := make([]error, len(req.Weeks))

	var g errgroup.Group
	g.SetLimit(s.fanOut)
	for i, week := range req.Weeks {
		i, week := i, week
		g.Go(func() error {
			res, err := s.saveWeek(ctx, rc, actor, req.Year, req.Type, week)
			metrics.LeaveWrites.WithLabelValues(res.Action, outcome(err)).Inc()
			if err != nil {
				res.Action = ActionFailed
				res.Error = err.Error()
				failures[i] = fmt.Errorf("week %d: %w", week.WeekNumber, err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	resp := &models.SaveLeavesResponse{
		Status:  "success",
		Year:    req.Year,
		Type:    req.Type,
		Results: results,
	}
	if err := errors.Join(failures...); err != nil {
		resp.Status = "partial"
		return resp, err
	}
	return resp, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (s *DefaultService) saveWeek(
	ctx context.Context,
	rc RequestContext,
	actor string,
	year int,
	leaveType models.LeaveType,
	week models.WeekSlots,
) (models.WeekResult, error) {
	width := leaveType.SlotWidth()
	slots := padSlots(week.Slots, width)
	baseline := padSlots(week.Baseline, width)

	result := models.WeekResult{WeekNumber: week.WeekNumber, Action: ActionUnchanged}
	if equalSlots(slots, baseline) {
		return result, nil
	}

	if allEmpty(slots) {
		err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			result.Action, result.LeaveID = ActionNoop, ""
			if err := tx.LockWeek(ctx, year, week.WeekNumber); err != nil {
				return err
			}
			current, err := tx.FindLeaveWeek(ctx, year, week.WeekNumber, leaveType)
			if err != nil || current == nil {
				return err
			}
			result.Action, result.LeaveID = ActionDeleted, current.Ref.ID
			return s.softDelete(ctx, tx, rc, actor, current)
		})
		return result, err
	}

	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.LockWeek(ctx, year, week.WeekNumber); err != nil {
			return err
		}
		current, err := tx.FindLeaveWeek(ctx, year, week.WeekNumber, leaveType)
		if err != nil {
			return err
		}
		other, err := tx.FindLeaveWeek(ctx, year, week.WeekNumber, leaveType.Other())
		if err != nil {
			return err
		}
		if err := s.checkBooking(slots, current, other, week.WeekNumber); err != nil {
			return err
		}

		if current == nil {
			doc, err := s.createWeek(ctx, tx, rc, actor, year, leaveType, week, slots)
			if err != nil {
				return err
			}
			result.Action, result.LeaveID = ActionCreated, doc.Ref.ID
		} else {
			if err := s.updateWeekSlots(ctx, tx, rc, actor, current, week, slots); err != nil {
				return err
			}
			result.Action, result.LeaveID = ActionUpdated, current.Ref.ID
		}

		if other != nil {
			return s.softDelete(ctx, tx, rc, actor, other)
		}
		return nil
	})
	return result, err
}

// weekDates resolves the date bounds of a week, deriving them from the ISO
// calendar when the client sent none
func weekDates(year int, week models.WeekSlots) (string, string) {
	start, end := week.StartDate, week.EndDate
	if start == "" || end == "" {
		if monday, sunday, ok := isoWeekBounds(year, week.WeekNumber); ok {
			start, end = monday.Format(dateLayout), sunday.Format(dateLayout)
		}
	}
	return start, end
}

func (s *DefaultService) createWeek(
	ctx context.Context,
	tx repository.Tx,
	rc RequestContext,
	actor string,
	year int,
	leaveType models.LeaveType,
	week models.WeekSlots,
	slots []string,
) (*models.Document, error) {
	now := time.Now().UTC()
	start, end := weekDates(year, week)

	lw := &models.LeaveWeek{
		WeekNumber: week.WeekNumber,
		Year:       year,
		Type:       leaveType,
		StartDate:  start,
		EndDate:    end,
		Slots:      slots,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	lw.DateRange = week.DateRange
	if lw.DateRange == "" {
		lw.DateRange = WeekLabel(models.Fields{models.FieldStartDate: start, models.FieldEndDate: end})
	}

	return s.create(ctx, tx, rc, actor, models.LeaveTarget(""), lw)
}

// create stores a new document built from v and chronicles it
func (s *DefaultService) create(
	ctx context.Context,
	tx repository.Tx,
	rc RequestContext,
	actor string,
	ref models.Target,
	v interface{ Fields() (models.Fields, error) },
) (*models.Document, error) {
	data, err := v.Fields()
	if err != nil {
		return nil, err
	}

	doc := &models.Document{Ref: ref, Data: data}
	if err := tx.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.record(ctx, tx, auditRecord{
		Target:        doc.Ref,
		ChangeType:    models.ChangeCreate,
		Actor:         actor,
		ChangedFields: data.Keys(),
		Next:          data,
		ClientTime:    rc.ClientTime,
	})
	return doc, nil
}

func (s *DefaultService) updateWeekSlots(
	ctx context.Context,
	tx repository.Tx,
	rc RequestContext,
	actor string,
	current *models.Document,
	week models.WeekSlots,
	slots []string,
) error {
	payload := models.Fields{models.FieldSlots: slots}
	if week.StartDate != "" && week.EndDate != "" {
		payload[models.FieldStartDate] = week.StartDate
		payload[models.FieldEndDate] = week.EndDate
	}
	if week.DateRange != "" {
		payload[models.FieldDateRange] = week.DateRange
	}
	return s.update(ctx, tx, rc, actor, current, payload, models.ChangeUpdate)
}

// update merges payload into the current body, writes it under the current
// version and chronicles the change with the pre-write state as snapshot
func (s *DefaultService) update(
	ctx context.Context,
	tx repository.Tx,
	rc RequestContext,
	actor string,
	current *models.Document,
	payload models.Fields,
	changeType models.ChangeType,
) error {
	if current.Ref.Kind == models.KindLeave {
		payload[models.FieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	payload, err := models.ToFields(payload)
	if err != nil {
		return err
	}

	next := current.Data.Clone()
	if next == nil {
		next = models.Fields{}
	}
	for k, v := range payload {
		next[k] = v
	}

	doc := &models.Document{Ref: current.Ref, Data: next}
	if err := tx.UpdateDocument(ctx, doc, current.Version); err != nil {
		return err
	}

	s.record(ctx, tx, auditRecord{
		Target:        current.Ref,
		ChangeType:    changeType,
		Actor:         actor,
		ChangedFields: payload.Keys(),
		Prev:          current.Data,
		Next:          next,
		ClientTime:    rc.ClientTime,
	})
	return nil
}

func (s *DefaultService) softDelete(
	ctx context.Context,
	tx repository.Tx,
	rc RequestContext,
	actor string,
	current *models.Document,
) error {
	return s.update(ctx, tx, rc, actor, current, models.Fields{models.FieldDeleted: true}, models.ChangeSoftDelete)
}

// SetApproval toggles approval of a summer week. Approving promotes the
// week into the annual pool: any live annual record for the week is
// soft-deleted, a new annual record takes the summer week's filled slots, and
// the summer record is soft-deleted so no name is booked twice. A summer week
// with more names than an annual week has slots cannot be approved. Withdrawing
// approval only clears the flag; the promotion stands until the weeks are
// saved again.
func (s *DefaultService) SetApproval(ctx context.Context, rc RequestContext, req models.ApprovalRequest) error {
	actor, err := rc.actor()
	if err != nil {
		return err
	}
	if err := s.validateRequest(req); err != nil {
		return err
	}

	if !req.Approved {
		return s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.LockWeek(ctx, req.Year, req.WeekNumber); err != nil {
				return err
			}
			summer, err := tx.FindLatestLeaveWeek(ctx, req.Year, req.WeekNumber, models.LeaveSummer)
			if err != nil {
				return err
			}
			if summer == nil {
				return notFound("no summer leave for week %d of %d", req.WeekNumber, req.Year)
			}
			if approved, _ := summer.Data[models.FieldApproved].(bool); !approved {
				return nil
			}
			return s.update(ctx, tx, rc, actor, summer, models.Fields{models.FieldApproved: false}, models.ChangeUpdate)
		})
	}

	return s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.LockWeek(ctx, req.Year, req.WeekNumber); err != nil {
			return err
		}
		summer, err := tx.FindLeaveWeek(ctx, req.Year, req.WeekNumber, models.LeaveSummer)
		if err != nil {
			return err
		}
		if summer == nil {
			return notFound("no live summer leave for week %d of %d", req.WeekNumber, req.Year)
		}
		names := nonEmpty(slotsOf(summer.Data))
		if width := models.LeaveAnnual.SlotWidth(); len(names) > width {
			return failedPrecondition("summer week %d holds %d names but the annual pool holds %d", req.WeekNumber, len(names), width)
		}

		if err := s.update(ctx, tx, rc, actor, summer, models.Fields{models.FieldApproved: true}, models.ChangeUpdate); err != nil {
			return err
		}
		// re-read so the soft delete below snapshots the approved state
		summer, err = tx.GetDocument(ctx, summer.Ref)
		if err != nil {
			return err
		}

		annual, err := tx.FindLeaveWeek(ctx, req.Year, req.WeekNumber, models.LeaveAnnual)
		if err != nil {
			return err
		}
		if annual != nil {
			if err := s.softDelete(ctx, tx, rc, actor, annual); err != nil {
				return err
			}
		}

		summerWeek, err := models.LeaveWeekFromDocument(summer)
		if err != nil {
			return err
		}
		promoted := models.WeekSlots{
			WeekNumber: req.WeekNumber,
			StartDate:  summerWeek.StartDate,
			EndDate:    summerWeek.EndDate,
			DateRange:  summerWeek.DateRange,
		}
		slots := padSlots(names, models.LeaveAnnual.SlotWidth())
		if _, err := s.createWeek(ctx, tx, rc, actor, req.Year, models.LeaveAnnual, promoted, slots); err != nil {
			return err
		}

		return s.softDelete(ctx, tx, rc, actor, summer)
	})
}

// RemoveLeaveWeek explicitly soft-deletes a week
func (s *DefaultService) RemoveLeaveWeek(ctx context.Context, rc RequestContext, leaveID string) (*models.LeaveWeek, error) {
	actor, err := rc.actor()
	if err != nil {
		return nil, err
	}
	ref := models.LeaveTarget(leaveID)

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetDocument(ctx, ref)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("leave week %s", leaveID)
		}
		if current.Deleted() {
			return nil
		}
		return s.softDelete(ctx, tx, rc, actor, current)
	})
	if err != nil {
		return nil, err
	}

	return s.GetLeaveWeek(ctx, leaveID)
}

// DeleteLeaveWeek forwards a hard delete to storage, whose rules reject it
// for every leave week
func (s *DefaultService) DeleteLeaveWeek(ctx context.Context, rc RequestContext, leaveID string) error {
	if _, err := rc.actor(); err != nil {
		return err
	}
	return storageError(s.repo.DeleteDocument(ctx, models.LeaveTarget(leaveID)))
}
