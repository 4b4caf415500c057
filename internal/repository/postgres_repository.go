package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/rules"
)

const (
	pqUniqueViolation       = "23505"
	pqInsufficientPrivilege = "42501"

	adminSettingsID = "admin"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

type documentRow struct {
	Collection string    `db:"collection"`
	ID         string    `db:"id"`
	Data       []byte    `db:"data"`
	Version    int64     `db:"version"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row documentRow) toModel() (models.Document, error) {
	doc := models.Document{
		Ref:       models.Target{Kind: models.TargetKind(row.Collection), ID: row.ID},
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Data, &doc.Data); err != nil {
		return models.Document{}, fmt.Errorf("decode document %s: %w", doc.Ref, err)
	}
	return doc, nil
}

type auditRow struct {
	ID              string         `db:"id"`
	Seq             int64          `db:"seq"`
	Collection      string         `db:"collection"`
	DocID           string         `db:"doc_id"`
	Ts              time.Time      `db:"ts"`
	ClientTs        sql.NullTime   `db:"client_ts"`
	ChangeType      string         `db:"change_type"`
	ActorName       string         `db:"actor_name"`
	ChangedFields   pq.StringArray `db:"changed_fields"`
	PrevSnapshot    []byte         `db:"prev_snapshot"`
	HumanLine       string         `db:"human_line"`
	RevertedAuditID sql.NullString `db:"reverted_audit_id"`
}

func (row auditRow) toModel() (models.AuditEntry, error) {
	entry := models.AuditEntry{
		ID:              row.ID,
		Seq:             row.Seq,
		Target:          models.Target{Kind: models.TargetKind(row.Collection), ID: row.DocID},
		Timestamp:       row.Ts,
		ChangeType:      models.ChangeType(row.ChangeType),
		ActorName:       row.ActorName,
		ChangedFields:   []string(row.ChangedFields),
		HumanLine:       row.HumanLine,
		RevertedAuditID: row.RevertedAuditID.String,
	}
	if entry.ChangedFields == nil {
		entry.ChangedFields = []string{}
	}
	if row.ClientTs.Valid {
		ts := row.ClientTs.Time
		entry.ClientTimestamp = &ts
	}
	if row.PrevSnapshot != nil {
		if err := json.Unmarshal(row.PrevSnapshot, &entry.PrevSnapshot); err != nil {
			return models.AuditEntry{}, fmt.Errorf("decode snapshot of audit entry %s: %w", row.ID, err)
		}
	}
	return entry, nil
}

func documentsFromRows(rows []documentRow) ([]models.Document, error) {
	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func auditEntriesFromRows(rows []auditRow) ([]models.AuditEntry, error) {
	entries := make([]models.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// mapPQError translates constraint and trigger failures into repository errors
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrVersionConflict, pqErr.Message)
		case pqInsufficientPrivilege:
			return fmt.Errorf("%w: %s", rules.ErrRuleViolation, pqErr.Message)
		}
	}
	return err
}

func (r *PostgresRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		err = mapPQError(sqlTx.Commit())
	}()

	err = fn(ctx, &postgresTx{tx: sqlTx})
	return err
}

// Document repository methods
func (r *PostgresRepository) GetDocument(ctx context.Context, ref models.Target) (*models.Document, error) {
	return getDocument(ctx, r.db, ref)
}

func (r *PostgresRepository) ListDocuments(ctx context.Context, kind models.TargetKind, includeDeleted bool) ([]models.Document, error) {
	query := `SELECT * FROM documents WHERE collection = $1`
	if !includeDeleted {
		query += ` AND NOT (data @> '{"deleted": true}'::jsonb)`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, string(kind)); err != nil {
		return nil, err
	}
	return documentsFromRows(rows)
}

func (r *PostgresRepository) ListLeaveWeeks(
	ctx context.Context,
	year int,
	leaveType models.LeaveType,
	includeDeleted bool,
) ([]models.Document, error) {
	query := `
		SELECT * FROM documents
		WHERE collection = 'leaves' AND data->>'year' = $1 AND data->>'type' = $2
	`
	if !includeDeleted {
		query += ` AND NOT (data @> '{"deleted": true}'::jsonb)`
	}
	query += ` ORDER BY (data->>'weekNumber')::int ASC, updated_at ASC`

	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, strconv.Itoa(year), string(leaveType)); err != nil {
		return nil, err
	}
	return documentsFromRows(rows)
}

func (r *PostgresRepository) FindLeaveWeeks(ctx context.Context, year, weekNumber int) ([]models.Document, error) {
	query := `
		SELECT * FROM documents
		WHERE collection = 'leaves' AND data->>'year' = $1 AND data->>'weekNumber' = $2
			AND NOT (data @> '{"deleted": true}'::jsonb)
		ORDER BY data->>'type' ASC
	`

	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, strconv.Itoa(year), strconv.Itoa(weekNumber)); err != nil {
		return nil, err
	}
	return documentsFromRows(rows)
}

func (r *PostgresRepository) DeleteDocument(ctx context.Context, ref models.Target) error {
	if err := rules.CheckDelete(ref); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, string(ref.Kind), ref.ID)
	if err != nil {
		return mapPQError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Audit ledger repository methods
func (r *PostgresRepository) GetAuditEntry(ctx context.Context, ref models.AuditRef) (*models.AuditEntry, error) {
	query := `SELECT * FROM audit_entries WHERE id = $1 AND collection = $2 AND doc_id = $3`

	var row auditRow
	err := r.db.GetContext(ctx, &row, query, ref.ID, string(ref.Target.Kind), ref.Target.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Audit entry not found
		}
		return nil, err
	}

	entry, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *PostgresRepository) ListAuditEntries(ctx context.Context, target models.Target) ([]models.AuditEntry, error) {
	query := `SELECT * FROM audit_entries WHERE collection = $1 AND doc_id = $2 ORDER BY seq ASC`

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, string(target.Kind), target.ID); err != nil {
		return nil, err
	}
	return auditEntriesFromRows(rows)
}

func (r *PostgresRepository) RecentAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	query := `SELECT * FROM audit_entries ORDER BY seq DESC LIMIT $1`

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	return auditEntriesFromRows(rows)
}

// UpdateAuditEntry always fails: the ledger is append-only
func (r *PostgresRepository) UpdateAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	return rules.CheckAuditMutation(entry.Ref())
}

// DeleteAuditEntry always fails: the ledger is append-only
func (r *PostgresRepository) DeleteAuditEntry(ctx context.Context, ref models.AuditRef) error {
	return rules.CheckAuditMutation(ref)
}

// Settings repository methods
func (r *PostgresRepository) GetAdminSettings(ctx context.Context) (*models.AdminSettings, error) {
	query := `SELECT admin_key_hash, updated_at FROM admin_settings WHERE id = $1`

	var settings models.AdminSettings
	err := r.db.GetContext(ctx, &settings, query, adminSettingsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Settings not provisioned
		}
		return nil, err
	}

	return &settings, nil
}

func (r *PostgresRepository) PutAdminSettings(ctx context.Context, settings *models.AdminSettings) error {
	query := `
		INSERT INTO admin_settings (id, admin_key_hash, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET admin_key_hash = EXCLUDED.admin_key_hash, updated_at = EXCLUDED.updated_at
	`

	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query, adminSettingsID, settings.AdminKeyHash, settings.UpdatedAt)
	return err
}

// Moderation repository methods
func (r *PostgresRepository) HideAuditEntry(ctx context.Context, marker *models.HiddenMarker) error {
	query := `
		INSERT INTO audit_hidden (id, path, hidden_at, hidden_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`

	if marker.HiddenAt.IsZero() {
		marker.HiddenAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query, marker.ID, marker.Path, marker.HiddenAt, marker.By)
	return err
}

func (r *PostgresRepository) ListHiddenMarkers(ctx context.Context) ([]models.HiddenMarker, error) {
	query := `SELECT * FROM audit_hidden ORDER BY hidden_at ASC`

	var markers []models.HiddenMarker
	if err := r.db.SelectContext(ctx, &markers, query); err != nil {
		return nil, err
	}
	return markers, nil
}

// postgresTx implements Tx over a single sqlx transaction
type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) GetDocument(ctx context.Context, ref models.Target) (*models.Document, error) {
	return getDocument(ctx, t.tx, ref)
}

func (t *postgresTx) LockWeek(ctx context.Context, year, weekNumber int) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, year, weekNumber)
	return err
}

func (t *postgresTx) FindLeaveWeek(
	ctx context.Context,
	year, weekNumber int,
	leaveType models.LeaveType,
) (*models.Document, error) {
	query := `
		SELECT * FROM documents
		WHERE collection = 'leaves' AND data->>'year' = $1 AND data->>'weekNumber' = $2 AND data->>'type' = $3
			AND NOT (data @> '{"deleted": true}'::jsonb)
		LIMIT 1
	`
	return getOneDocument(ctx, t.tx, query, strconv.Itoa(year), strconv.Itoa(weekNumber), string(leaveType))
}

func (t *postgresTx) FindLatestLeaveWeek(
	ctx context.Context,
	year, weekNumber int,
	leaveType models.LeaveType,
) (*models.Document, error) {
	query := `
		SELECT * FROM documents
		WHERE collection = 'leaves' AND data->>'year' = $1 AND data->>'weekNumber' = $2 AND data->>'type' = $3
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return getOneDocument(ctx, t.tx, query, strconv.Itoa(year), strconv.Itoa(weekNumber), string(leaveType))
}

func (t *postgresTx) CreateDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (collection, id, data, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	// Generate a new UUID if not provided
	if doc.Ref.ID == "" {
		doc.Ref.ID = uuid.New().String()
	}

	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.Ref, err)
	}

	now := time.Now().UTC()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err = t.tx.ExecContext(ctx, query,
		string(doc.Ref.Kind), doc.Ref.ID, data, doc.Version, doc.CreatedAt, doc.UpdatedAt)

	return mapPQError(err)
}

func (t *postgresTx) UpdateDocument(ctx context.Context, doc *models.Document, expectedVersion int64) error {
	var current []byte
	err := t.tx.GetContext(ctx, &current,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 AND version = $3 FOR UPDATE`,
		string(doc.Ref.Kind), doc.Ref.ID, expectedVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVersionConflict
		}
		return err
	}

	var before models.Fields
	if err := json.Unmarshal(current, &before); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.Ref, err)
	}
	if err := rules.CheckUpdate(doc.Ref, before, doc.Data); err != nil {
		return err
	}

	return t.write(ctx, doc, expectedVersion)
}

func (t *postgresTx) ReplaceDocument(ctx context.Context, doc *models.Document, expectedVersion int64) error {
	if expectedVersion == 0 {
		return t.CreateDocument(ctx, doc)
	}
	return t.write(ctx, doc, expectedVersion)
}

func (t *postgresTx) write(ctx context.Context, doc *models.Document, expectedVersion int64) error {
	query := `
		UPDATE documents SET data = $1, version = version + 1, updated_at = $2
		WHERE collection = $3 AND id = $4 AND version = $5
		RETURNING version, created_at
	`

	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.Ref, err)
	}

	now := time.Now().UTC()
	err = t.tx.QueryRowxContext(ctx, query, data, now, string(doc.Ref.Kind), doc.Ref.ID, expectedVersion).
		Scan(&doc.Version, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVersionConflict
		}
		return mapPQError(err)
	}

	doc.UpdatedAt = now
	return nil
}

func (t *postgresTx) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) (err error) {
	// The savepoint keeps a failed append from aborting the outer transaction
	if _, err = t.tx.ExecContext(ctx, `SAVEPOINT audit_append`); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_, _ = t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT audit_append`)
			return
		}
		_, err = t.tx.ExecContext(ctx, `RELEASE SAVEPOINT audit_append`)
	}()

	query := `
		INSERT INTO audit_entries (id, collection, doc_id, ts, client_ts, change_type, actor_name,
			changed_fields, prev_snapshot, human_line, reverted_audit_id)
		VALUES ($1, $2, $3, clock_timestamp(), $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq, ts
	`

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ChangedFields == nil {
		entry.ChangedFields = []string{}
	}

	var snapshot []byte
	if entry.PrevSnapshot != nil {
		snapshot, err = json.Marshal(entry.PrevSnapshot)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
	}

	var clientTs sql.NullTime
	if entry.ClientTimestamp != nil {
		clientTs = sql.NullTime{Time: *entry.ClientTimestamp, Valid: true}
	}

	var revertedID sql.NullString
	if entry.RevertedAuditID != "" {
		revertedID = sql.NullString{String: entry.RevertedAuditID, Valid: true}
	}

	err = t.tx.QueryRowxContext(ctx, query,
		entry.ID, string(entry.Target.Kind), entry.Target.ID, clientTs, string(entry.ChangeType),
		entry.ActorName, pq.StringArray(entry.ChangedFields), snapshot, entry.HumanLine, revertedID,
	).Scan(&entry.Seq, &entry.Timestamp)

	return err
}

// Helper functions shared by the repository and its transactions
func getDocument(ctx context.Context, q sqlx.QueryerContext, ref models.Target) (*models.Document, error) {
	query := `SELECT * FROM documents WHERE collection = $1 AND id = $2`
	return getOneDocument(ctx, q, query, string(ref.Kind), ref.ID)
}

func getOneDocument(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*models.Document, error) {
	var row documentRow
	err := sqlx.GetContext(ctx, q, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Document not found
		}
		return nil, err
	}

	doc, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
