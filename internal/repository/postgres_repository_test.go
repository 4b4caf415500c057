package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(sqlx.NewDb(db, "postgres")), mock
}

var documentColumns = []string{"collection", "id", "data", "version", "created_at", "updated_at"}

func TestPostgresRepository_GetDocument(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	q := regexp.QuoteMeta(`SELECT * FROM documents WHERE collection = $1 AND id = $2`)
	mock.ExpectQuery(q).
		WithArgs("leaves", "abc").
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("leaves", "abc", []byte(`{"year":2025,"weekNumber":35,"type":"annual","slots":["A",""]}`), 3, now, now))

	doc, err := repo.GetDocument(context.Background(), models.LeaveTarget("abc"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, models.LeaveTarget("abc"), doc.Ref)
	assert.Equal(t, int64(3), doc.Version)
	assert.Equal(t, float64(35), doc.Data[models.FieldWeekNumber])
	assert.Equal(t, []any{"A", ""}, doc.Data[models.FieldSlots])

	mock.ExpectQuery(q).
		WithArgs("leaves", "nope").
		WillReturnRows(sqlmock.NewRows(documentColumns))

	doc, err = repo.GetDocument(context.Background(), models.LeaveTarget("nope"))
	assert.NoError(t, err)
	assert.Nil(t, doc)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DeleteDocument(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	// leave weeks are refused before reaching the database
	err := repo.DeleteDocument(ctx, models.LeaveTarget("abc"))
	assert.ErrorIs(t, err, rules.ErrHardDelete)

	q := regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)
	mock.ExpectExec(q).WithArgs("pilots", "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("pilots", "p2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("pilots", "p3").WillReturnError(&pq.Error{Code: pqInsufficientPrivilege, Message: "denied"})

	assert.NoError(t, repo.DeleteDocument(ctx, models.PilotTarget("p1")))
	assert.ErrorIs(t, repo.DeleteDocument(ctx, models.PilotTarget("p2")), ErrNotFound)
	assert.ErrorIs(t, repo.DeleteDocument(ctx, models.PilotTarget("p3")), rules.ErrRuleViolation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateVersionMismatchRollsBack(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2 AND version = $3 FOR UPDATE`)).
		WithArgs("leaves", "abc", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.UpdateDocument(ctx, &models.Document{Ref: models.LeaveTarget("abc"), Data: models.Fields{}}, 3)
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateRejectsIdentityChange(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT data FROM documents`).
		WithArgs("leaves", "abc", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"year":2025,"weekNumber":35,"type":"annual"}`)))
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		doc := &models.Document{
			Ref:  models.LeaveTarget("abc"),
			Data: models.Fields{"year": 2025, "weekNumber": 35, "type": "summer"},
		}
		return tx.UpdateDocument(ctx, doc, 1)
	})
	assert.ErrorIs(t, err, rules.ErrIdentityImmutable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateIdentityClash(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("leaves", "abc", sqlmock.AnyArg(), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Message: "duplicate key"})
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateDocument(ctx, &models.Document{Ref: models.LeaveTarget("abc"), Data: models.Fields{"slots": []string{}}})
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AuditAppendFailureKeepsTransaction(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`^\s*UPDATE documents SET data`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "pilots", "p1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at"}).AddRow(2, now))
	mock.ExpectExec(`^SAVEPOINT audit_append$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO audit_entries`).WillReturnError(errors.New("disk full"))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT audit_append$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var appendErr error
	doc := &models.Document{Ref: models.PilotTarget("p1"), Data: models.Fields{"displayName": "Kari"}}
	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.ReplaceDocument(ctx, doc, 1); err != nil {
			return err
		}
		appendErr = tx.AppendAuditEntry(ctx, &models.AuditEntry{Target: doc.Ref, ChangeType: models.ChangeUpdate})
		return nil
	})
	require.NoError(t, err)
	assert.EqualError(t, appendErr, "disk full")
	assert.Equal(t, int64(2), doc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AuditAppend(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ts := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT audit_append$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO audit_entries`).
		WithArgs("e1", "leaves", "abc", sqlmock.AnyArg(), "reverted", "System",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "System reverted change xyz.", "xyz").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "ts"}).AddRow(7, ts))
	mock.ExpectExec(`^RELEASE SAVEPOINT audit_append$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	entry := &models.AuditEntry{
		ID:              "e1",
		Target:          models.LeaveTarget("abc"),
		ChangeType:      models.ChangeReverted,
		ActorName:       models.SystemActor,
		HumanLine:       "System reverted change xyz.",
		RevertedAuditID: "xyz",
	}
	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.AppendAuditEntry(ctx, entry)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.Seq)
	assert.Equal(t, ts, entry.Timestamp)
	assert.Equal(t, []string{}, entry.ChangedFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_LedgerIsAppendOnly(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ref := models.AuditRef{Target: models.LeaveTarget("abc"), ID: "xyz"}

	assert.ErrorIs(t, repo.DeleteAuditEntry(context.Background(), ref), rules.ErrAppendOnly)
	assert.ErrorIs(t, repo.UpdateAuditEntry(context.Background(), &models.AuditEntry{Target: ref.Target, ID: ref.ID}), rules.ErrAppendOnly)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetAuditEntry(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ts := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)

	cols := []string{"id", "seq", "collection", "doc_id", "ts", "client_ts", "change_type", "actor_name",
		"changed_fields", "prev_snapshot", "human_line", "reverted_audit_id"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM audit_entries WHERE id = $1 AND collection = $2 AND doc_id = $3`)).
		WithArgs("xyz", "leaves", "abc").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"xyz", 4, "leaves", "abc", ts, nil, "update", "Ana",
			"{slots}", []byte(`{"slots":["A","","",""]}`), "Ana replaced slot 1 (A) of Week 35.", nil))

	entry, err := repo.GetAuditEntry(context.Background(), models.AuditRef{Target: models.LeaveTarget("abc"), ID: "xyz"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.ChangeUpdate, entry.ChangeType)
	assert.Equal(t, []string{"slots"}, entry.ChangedFields)
	assert.Equal(t, models.Fields{"slots": []any{"A", "", "", ""}}, entry.PrevSnapshot)
	assert.Nil(t, entry.ClientTimestamp)
	assert.Empty(t, entry.RevertedAuditID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_LockWeek(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(2025, 35).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM documents\s+WHERE collection = 'leaves'`).
		WithArgs("2025", "35", "summer").
		WillReturnRows(sqlmock.NewRows(documentColumns))
	mock.ExpectCommit()

	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.LockWeek(ctx, 2025, 35); err != nil {
			return err
		}
		other, err := tx.FindLeaveWeek(ctx, 2025, 35, models.LeaveSummer)
		assert.Nil(t, other)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
