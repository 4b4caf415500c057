package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/rules"
)

// MemoryRepository is an in-process Repository. Transactions are serialized
// by a single lock and staged until commit, so it honours the same rules and
// conflict semantics as the PostgreSQL implementation.
type MemoryRepository struct {
	mu       sync.RWMutex
	docs     map[string]*models.Document
	audits   []models.AuditEntry
	seq      int64
	lastTs   time.Time
	settings *models.AdminSettings
	hidden   map[string]models.HiddenMarker

	// auditFailure, when set, makes every AppendAuditEntry fail with it
	auditFailure error
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:   make(map[string]*models.Document),
		hidden: make(map[string]models.HiddenMarker),
	}
}

// FailAuditAppends makes subsequent ledger appends fail with err; nil restores them
func (r *MemoryRepository) FailAuditAppends(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditFailure = err
}

func copyDocument(doc *models.Document) models.Document {
	out := *doc
	out.Data = doc.Data.Clone()
	return out
}

func copyAuditEntry(entry models.AuditEntry) models.AuditEntry {
	entry.PrevSnapshot = entry.PrevSnapshot.Clone()
	entry.ChangedFields = append([]string{}, entry.ChangedFields...)
	return entry
}

func leaveIdentity(doc *models.Document, year, weekNumber int, leaveType models.LeaveType) bool {
	if doc.Ref.Kind != models.KindLeave {
		return false
	}
	y, _ := doc.Data[models.FieldYear].(float64)
	w, _ := doc.Data[models.FieldWeekNumber].(float64)
	t, _ := doc.Data[models.FieldType].(string)
	return int(y) == year && int(w) == weekNumber && (leaveType == "" || models.LeaveType(t) == leaveType)
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{repo: r, docs: make(map[string]*models.Document)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for key, doc := range tx.docs {
		r.docs[key] = doc
	}
	r.audits = append(r.audits, tx.audits...)
	if len(tx.audits) > 0 {
		last := tx.audits[len(tx.audits)-1]
		r.seq = last.Seq
		r.lastTs = last.Timestamp
	}
	return nil
}

// Document repository methods
func (r *MemoryRepository) GetDocument(ctx context.Context, ref models.Target) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[ref.Path()]
	if !ok {
		return nil, nil
	}
	out := copyDocument(doc)
	return &out, nil
}

func (r *MemoryRepository) ListDocuments(ctx context.Context, kind models.TargetKind, includeDeleted bool) ([]models.Document, error) {
	return r.filterDocuments(func(doc *models.Document) bool {
		return doc.Ref.Kind == kind && (includeDeleted || !doc.Deleted())
	}), nil
}

func (r *MemoryRepository) ListLeaveWeeks(
	ctx context.Context,
	year int,
	leaveType models.LeaveType,
	includeDeleted bool,
) ([]models.Document, error) {
	docs := r.filterDocuments(func(doc *models.Document) bool {
		if doc.Ref.Kind != models.KindLeave || (!includeDeleted && doc.Deleted()) {
			return false
		}
		y, _ := doc.Data[models.FieldYear].(float64)
		t, _ := doc.Data[models.FieldType].(string)
		return int(y) == year && models.LeaveType(t) == leaveType
	})
	sort.SliceStable(docs, func(i, j int) bool {
		wi, _ := docs[i].Data[models.FieldWeekNumber].(float64)
		wj, _ := docs[j].Data[models.FieldWeekNumber].(float64)
		return wi < wj
	})
	return docs, nil
}

func (r *MemoryRepository) FindLeaveWeeks(ctx context.Context, year, weekNumber int) ([]models.Document, error) {
	docs := r.filterDocuments(func(doc *models.Document) bool {
		return !doc.Deleted() && leaveIdentity(doc, year, weekNumber, "")
	})
	sort.SliceStable(docs, func(i, j int) bool {
		ti, _ := docs[i].Data[models.FieldType].(string)
		tj, _ := docs[j].Data[models.FieldType].(string)
		return ti < tj
	})
	return docs, nil
}

func (r *MemoryRepository) filterDocuments(keep func(doc *models.Document) bool) []models.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Document{}
	for _, doc := range r.docs {
		if keep(doc) {
			out = append(out, copyDocument(doc))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Ref.ID < out[j].Ref.ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepository) DeleteDocument(ctx context.Context, ref models.Target) error {
	if err := rules.CheckDelete(ref); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[ref.Path()]; !ok {
		return ErrNotFound
	}
	delete(r.docs, ref.Path())
	return nil
}

// Audit ledger repository methods
func (r *MemoryRepository) GetAuditEntry(ctx context.Context, ref models.AuditRef) (*models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.audits {
		if entry.ID == ref.ID && entry.Target == ref.Target {
			out := copyAuditEntry(entry)
			return &out, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListAuditEntries(ctx context.Context, target models.Target) ([]models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.AuditEntry{}
	for _, entry := range r.audits {
		if entry.Target == target {
			out = append(out, copyAuditEntry(entry))
		}
	}
	return out, nil
}

func (r *MemoryRepository) RecentAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.AuditEntry{}
	for i := len(r.audits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyAuditEntry(r.audits[i]))
	}
	return out, nil
}

func (r *MemoryRepository) UpdateAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	return rules.CheckAuditMutation(entry.Ref())
}

func (r *MemoryRepository) DeleteAuditEntry(ctx context.Context, ref models.AuditRef) error {
	return rules.CheckAuditMutation(ref)
}

// Settings repository methods
func (r *MemoryRepository) GetAdminSettings(ctx context.Context) (*models.AdminSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.settings == nil {
		return nil, nil
	}
	out := *r.settings
	return &out, nil
}

func (r *MemoryRepository) PutAdminSettings(ctx context.Context, settings *models.AdminSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	stored := *settings
	r.settings = &stored
	return nil
}

// Moderation repository methods
func (r *MemoryRepository) HideAuditEntry(ctx context.Context, marker *models.HiddenMarker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hidden[marker.ID]; ok {
		return nil
	}
	if marker.HiddenAt.IsZero() {
		marker.HiddenAt = time.Now().UTC()
	}
	r.hidden[marker.ID] = *marker
	return nil
}

func (r *MemoryRepository) ListHiddenMarkers(ctx context.Context) ([]models.HiddenMarker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.HiddenMarker, 0, len(r.hidden))
	for _, marker := range r.hidden {
		out = append(out, marker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HiddenAt.Before(out[j].HiddenAt) })
	return out, nil
}

// memoryTx stages writes on top of the repository state; the caller holds the lock
type memoryTx struct {
	repo   *MemoryRepository
	docs   map[string]*models.Document
	audits []models.AuditEntry
}

func (t *memoryTx) lookup(key string) (*models.Document, bool) {
	if doc, ok := t.docs[key]; ok {
		return doc, true
	}
	doc, ok := t.repo.docs[key]
	return doc, ok
}

// visible returns the committed documents overlaid with the staged ones
func (t *memoryTx) visible() []*models.Document {
	out := make([]*models.Document, 0, len(t.repo.docs)+len(t.docs))
	for key, doc := range t.repo.docs {
		if _, staged := t.docs[key]; !staged {
			out = append(out, doc)
		}
	}
	for _, doc := range t.docs {
		out = append(out, doc)
	}
	return out
}

func (t *memoryTx) GetDocument(ctx context.Context, ref models.Target) (*models.Document, error) {
	doc, ok := t.lookup(ref.Path())
	if !ok {
		return nil, nil
	}
	out := copyDocument(doc)
	return &out, nil
}

// LockWeek is a no-op: the repository lock already serializes transactions
func (t *memoryTx) LockWeek(ctx context.Context, year, weekNumber int) error {
	return nil
}

func (t *memoryTx) FindLeaveWeek(
	ctx context.Context,
	year, weekNumber int,
	leaveType models.LeaveType,
) (*models.Document, error) {
	for _, doc := range t.visible() {
		if !doc.Deleted() && leaveIdentity(doc, year, weekNumber, leaveType) {
			out := copyDocument(doc)
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) FindLatestLeaveWeek(
	ctx context.Context,
	year, weekNumber int,
	leaveType models.LeaveType,
) (*models.Document, error) {
	var latest *models.Document
	for _, doc := range t.visible() {
		if !leaveIdentity(doc, year, weekNumber, leaveType) {
			continue
		}
		if latest == nil || doc.UpdatedAt.After(latest.UpdatedAt) {
			latest = doc
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := copyDocument(latest)
	return &out, nil
}

// identityTaken mirrors the unique index on live leave week identities
func (t *memoryTx) identityTaken(doc *models.Document) bool {
	if doc.Ref.Kind != models.KindLeave || doc.Deleted() {
		return false
	}
	y, okY := doc.Data[models.FieldYear].(float64)
	w, okW := doc.Data[models.FieldWeekNumber].(float64)
	lt, okT := doc.Data[models.FieldType].(string)
	if !okY || !okW || !okT {
		return false
	}
	for _, other := range t.visible() {
		if other.Ref == doc.Ref || other.Deleted() {
			continue
		}
		if leaveIdentity(other, int(y), int(w), models.LeaveType(lt)) {
			return true
		}
	}
	return false
}

func (t *memoryTx) stage(doc *models.Document) {
	stored := copyDocument(doc)
	t.docs[doc.Ref.Path()] = &stored
}

// normalize gives doc.Data the JSON shape a database round trip would
func normalize(doc *models.Document) error {
	data, err := models.ToFields(doc.Data)
	if err != nil {
		return err
	}
	doc.Data = data
	return nil
}

func (t *memoryTx) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := normalize(doc); err != nil {
		return err
	}
	if doc.Ref.ID == "" {
		doc.Ref.ID = uuid.New().String()
	}
	if _, exists := t.lookup(doc.Ref.Path()); exists {
		return ErrVersionConflict
	}
	if t.identityTaken(doc) {
		return ErrVersionConflict
	}

	now := time.Now().UTC()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	t.stage(doc)
	return nil
}

func (t *memoryTx) UpdateDocument(ctx context.Context, doc *models.Document, expectedVersion int64) error {
	if err := normalize(doc); err != nil {
		return err
	}
	current, ok := t.lookup(doc.Ref.Path())
	if !ok || current.Version != expectedVersion {
		return ErrVersionConflict
	}
	if err := rules.CheckUpdate(doc.Ref, current.Data, doc.Data); err != nil {
		return err
	}
	return t.write(doc, current)
}

func (t *memoryTx) ReplaceDocument(ctx context.Context, doc *models.Document, expectedVersion int64) error {
	if expectedVersion == 0 {
		return t.CreateDocument(ctx, doc)
	}
	if err := normalize(doc); err != nil {
		return err
	}
	current, ok := t.lookup(doc.Ref.Path())
	if !ok || current.Version != expectedVersion {
		return ErrVersionConflict
	}
	return t.write(doc, current)
}

func (t *memoryTx) write(doc, current *models.Document) error {
	if t.identityTaken(doc) {
		return ErrVersionConflict
	}
	doc.Version = current.Version + 1
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = time.Now().UTC()
	if !doc.UpdatedAt.After(current.UpdatedAt) {
		doc.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	t.stage(doc)
	return nil
}

func (t *memoryTx) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if t.repo.auditFailure != nil {
		return t.repo.auditFailure
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ChangedFields == nil {
		entry.ChangedFields = []string{}
	}

	seq, last := t.repo.seq, t.repo.lastTs
	if n := len(t.audits); n > 0 {
		seq, last = t.audits[n-1].Seq, t.audits[n-1].Timestamp
	}

	entry.Seq = seq + 1
	entry.Timestamp = time.Now().UTC()
	if !entry.Timestamp.After(last) {
		entry.Timestamp = last.Add(time.Microsecond)
	}

	t.audits = append(t.audits, copyAuditEntry(*entry))
	return nil
}
