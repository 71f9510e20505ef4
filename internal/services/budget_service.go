package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"presupuesto/internal/amqp"
	"presupuesto/internal/coalesce"
	"presupuesto/internal/core"
	"presupuesto/internal/storage"
)

// ErrValidation marks user-input errors; handlers map it to 422.
var ErrValidation = errors.New("validation failed")

// Store is the persistence surface the service needs. Both the SQLite
// and the in-memory repository satisfy it.
type Store interface {
	LoadState(ctx context.Context, scope storage.Scope) ([]byte, error)
	SaveState(ctx context.Context, rec storage.StateRecord) error
	InsertExpense(ctx context.Context, e storage.Expense) (int64, error)
	ListExpenses(ctx context.Context, userID, projectID string) ([]storage.Expense, error)
	DeleteExpense(ctx context.Context, userID, projectID string, id int64) error
	SumExpensesByAccount(ctx context.Context, userID, projectID string) (map[string]int64, error)
}

// Publisher announces persisted snapshots. May be nil; the budget
// still works without the export pipeline.
type Publisher interface {
	PublishSnapshotSaved(ctx context.Context, msg *amqp.SnapshotSavedMessage) error
}

// BudgetService orchestrates budget snapshots across storage and AMQP.
// Each scope gets one in-memory session; mutations go through the
// session lock, and persistence runs through a coalescing saver so a
// burst of edits produces at most one in-flight write plus one queued.
type BudgetService struct {
	store     Store
	publisher Publisher

	mu       sync.Mutex
	sessions map[storage.Scope]*session
}

type session struct {
	scope storage.Scope
	svc   *BudgetService

	mu     sync.Mutex
	booted bool
	state  core.State
	saver  *coalesce.Runner
}

func NewBudgetService(store Store, publisher Publisher) *BudgetService {
	return &BudgetService{
		store:     store,
		publisher: publisher,
		sessions:  make(map[storage.Scope]*session),
	}
}

func (s *BudgetService) session(scope storage.Scope) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[scope]
	if !ok {
		sess = &session{scope: scope, svc: s}
		sess.saver = coalesce.New(sess.persist, func(err error) {
			slog.Error("Snapshot save failed", "scope", scope.String(), "error", err)
		})
		s.sessions[scope] = sess
	}
	return sess
}

// boot loads and migrates the stored snapshot once per session.
// Concurrent callers serialize on the session lock, so only the first
// one hits storage. A failed boot is retried by the next caller.
func (sess *session) boot(ctx context.Context) error {
	if sess.booted {
		return nil
	}
	blob, err := sess.svc.store.LoadState(ctx, sess.scope)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	state, migrated, err := core.MigrateState(blob)
	if err != nil {
		return fmt.Errorf("migrate snapshot %s: %w", sess.scope, err)
	}
	sess.state = state
	sess.booted = true
	if migrated {
		slog.InfoContext(ctx, "Snapshot migrated to current schema",
			"scope", sess.scope.String(),
			"items", len(state.Items))
		sess.saver.Trigger()
	}
	return nil
}

// persist writes the session's latest state. It reads under the lock
// and writes outside it, so a slow database does not block edits.
func (sess *session) persist(ctx context.Context) error {
	sess.mu.Lock()
	state := sess.state
	sess.mu.Unlock()

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	total := core.Summarize(state.Items).GrandCents
	rec := storage.StateRecord{
		Scope:      sess.scope,
		Snapshot:   blob,
		Version:    state.Version,
		Seq:        state.Seq,
		TotalCents: total,
	}
	if err := sess.svc.store.SaveState(ctx, rec); err != nil {
		return err
	}

	if pub := sess.svc.publisher; pub != nil {
		msg := amqp.NewSnapshotSavedMessage(
			sess.scope.UserID, sess.scope.ProjectID, sess.scope.ModuleKey,
			state.Version, state.Seq, total)
		if err := pub.PublishSnapshotSaved(ctx, msg); err != nil {
			// The snapshot is safe locally; the worker reconciles later.
			slog.ErrorContext(ctx, "Failed to publish snapshot message",
				"scope", sess.scope.String(), "error", err)
		}
	}
	return nil
}

// withSession runs fn with the booted session state under the lock.
// When fn returns a changed state, it is stored and a save is queued.
func (s *BudgetService) withSession(ctx context.Context, scope storage.Scope, fn func(*session) (core.State, bool, error)) error {
	sess := s.session(scope)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.boot(ctx); err != nil {
		return err
	}
	next, changed, err := fn(sess)
	if err != nil {
		return err
	}
	if changed {
		sess.state = next
		sess.saver.Trigger()
	}
	return nil
}

// State returns the scope's current snapshot, booting it if needed.
func (s *BudgetService) State(ctx context.Context, scope storage.Scope) (core.State, error) {
	var out core.State
	err := s.withSession(ctx, scope, func(sess *session) (core.State, bool, error) {
		out = sess.state
		return core.State{}, false, nil
	})
	return out, err
}

// validateItemInput enforces the entry-point rules the normalizer
// deliberately leaves to callers: real account, real stage, a concept
// and a positive amount. The returned raw carries the canonical
// account spelling so by-account aggregation never splits on casing.
func validateItemInput(raw core.RawItem) (core.RawItem, error) {
	var problems []string
	if strings.TrimSpace(raw.Concept) == "" {
		problems = append(problems, "CONCEPTO es obligatorio")
	}
	account, err := core.ResolveAccount(raw.Account)
	if err != nil {
		problems = append(problems, fmt.Sprintf("CUENTA fuera de catálogo: %q", strings.TrimSpace(raw.Account)))
	} else {
		raw.Account = account
	}
	if _, err := core.ResolveStage(raw.Stage); err != nil {
		problems = append(problems, fmt.Sprintf("ETAPA inválida: %q", strings.TrimSpace(raw.Stage)))
	}
	if raw.UnitCents < core.MinUnitCents {
		problems = append(problems, "MONTO debe ser mayor a cero")
	}
	if raw.Quantity < 1 {
		problems = append(problems, "CANTIDAD debe ser al menos 1")
	}
	if len(problems) > 0 {
		return core.RawItem{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return raw, nil
}

// CreateItem validates and appends one budget line.
func (s *BudgetService) CreateItem(ctx context.Context, scope storage.Scope, raw core.RawItem) (core.Item, error) {
	raw, err := validateItemInput(raw)
	if err != nil {
		return core.Item{}, err
	}
	raw.UID = "" // the budget assigns identity, never the caller
	var created core.Item
	err = s.withSession(ctx, scope, func(sess *session) (core.State, bool, error) {
		next, item := sess.state.Create(raw)
		created = item
		return next, true, nil
	})
	if err != nil {
		return core.Item{}, err
	}
	slog.InfoContext(ctx, "Budget item created",
		"scope", scope.String(),
		"uid", created.UID,
		"account", created.Account,
		"total_cents", created.TotalCents)
	return created, nil
}

// GetItem returns one budget line by uid.
func (s *BudgetService) GetItem(ctx context.Context, scope storage.Scope, uid string) (core.Item, error) {
	state, err := s.State(ctx, scope)
	if err != nil {
		return core.Item{}, err
	}
	item, ok := state.Find(uid)
	if !ok {
		return core.Item{}, core.ErrItemNotFound
	}
	return item, nil
}

// UpdateItem validates and replaces the fields of an existing line.
func (s *BudgetService) UpdateItem(ctx context.Context, scope storage.Scope, uid string, raw core.RawItem) (core.Item, error) {
	raw, err := validateItemInput(raw)
	if err != nil {
		return core.Item{}, err
	}
	var updated core.Item
	err = s.withSession(ctx, scope, func(sess *session) (core.State, bool, error) {
		next, item, err := sess.state.Update(uid, raw)
		if err != nil {
			return core.State{}, false, err
		}
		updated = item
		return next, true, nil
	})
	if err != nil {
		return core.Item{}, err
	}
	return updated, nil
}

// DeleteItems removes lines by uid; unknown uids are ignored.
func (s *BudgetService) DeleteItems(ctx context.Context, scope storage.Scope, uids ...string) error {
	if len(uids) == 0 {
		return nil
	}
	return s.withSession(ctx, scope, func(sess *session) (core.State, bool, error) {
		return sess.state.Delete(uids...), true, nil
	})
}

// BulkPreview parses raw pasted text without touching the budget.
func (s *BudgetService) BulkPreview(text string) core.BulkResult {
	rows := core.ParseDelimited(text)
	return core.ParseBulk(rows, core.HasHeader(rows))
}

// BulkCommit parses text and appends every valid row. Row errors come
// back alongside the created items; they never abort the batch.
func (s *BudgetService) BulkCommit(ctx context.Context, scope storage.Scope, text string) ([]core.Item, []string, error) {
	res := s.BulkPreview(text)
	if len(res.Items) == 0 {
		return nil, res.Errors, nil
	}
	var added []core.Item
	err := s.withSession(ctx, scope, func(sess *session) (core.State, bool, error) {
		next, items := sess.state.CommitBulk(res.Items)
		added = items
		return next, true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	slog.InfoContext(ctx, "Bulk import committed",
		"scope", scope.String(),
		"item_count", len(added),
		"row_errors", len(res.Errors))
	return added, res.Errors, nil
}

// Summary aggregates the scope's budget.
func (s *BudgetService) Summary(ctx context.Context, scope storage.Scope) (core.Summary, error) {
	state, err := s.State(ctx, scope)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(state.Items), nil
}

// Report builds the printable budget for a scope.
func (s *BudgetService) Report(ctx context.Context, scope storage.Scope) (core.Report, error) {
	state, err := s.State(ctx, scope)
	if err != nil {
		return core.Report{}, err
	}
	return core.BuildReport(scope.ProjectID, state.Items, time.Now()), nil
}

// ExportCSV renders the scope's budget as a CSV document.
func (s *BudgetService) ExportCSV(ctx context.Context, scope storage.Scope) ([]byte, error) {
	state, err := s.State(ctx, scope)
	if err != nil {
		return nil, err
	}
	return core.ExportCSV(state.Items)
}

// Variance compares the approved budget against executed spend from
// the expense ledger.
func (s *BudgetService) Variance(ctx context.Context, scope storage.Scope) (core.VarianceReport, error) {
	state, err := s.State(ctx, scope)
	if err != nil {
		return core.VarianceReport{}, err
	}
	executed, err := s.store.SumExpensesByAccount(ctx, scope.UserID, scope.ProjectID)
	if err != nil {
		return core.VarianceReport{}, fmt.Errorf("executed spend: %w", err)
	}
	approved := core.Summarize(state.Items).ByAccount
	return core.ComputeVariance(approved, executed), nil
}

// AddExpense records executed spend against the project ledger.
func (s *BudgetService) AddExpense(ctx context.Context, scope storage.Scope, e storage.Expense) (storage.Expense, error) {
	var problems []string
	if strings.TrimSpace(e.Date) == "" {
		problems = append(problems, "FECHA es obligatoria")
	}
	if strings.TrimSpace(e.Concept) == "" {
		problems = append(problems, "CONCEPTO es obligatorio")
	}
	account, err := core.ResolveAccount(e.Account)
	if err != nil {
		problems = append(problems, fmt.Sprintf("CUENTA fuera de catálogo: %q", strings.TrimSpace(e.Account)))
	}
	if e.AmountCents <= 0 {
		problems = append(problems, "MONTO debe ser mayor a cero")
	}
	if len(problems) > 0 {
		return storage.Expense{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}

	e.UserID = scope.UserID
	e.ProjectID = scope.ProjectID
	e.Account = account
	id, err := s.store.InsertExpense(ctx, e)
	if err != nil {
		return storage.Expense{}, fmt.Errorf("record expense: %w", err)
	}
	e.ID = id
	return e, nil
}

// Expenses lists the project's executed spend.
func (s *BudgetService) Expenses(ctx context.Context, scope storage.Scope) ([]storage.Expense, error) {
	return s.store.ListExpenses(ctx, scope.UserID, scope.ProjectID)
}

// RemoveExpense deletes one ledger row.
func (s *BudgetService) RemoveExpense(ctx context.Context, scope storage.Scope, id int64) error {
	return s.store.DeleteExpense(ctx, scope.UserID, scope.ProjectID, id)
}

// Flush waits until the scope's pending saves are on disk.
func (s *BudgetService) Flush(ctx context.Context, scope storage.Scope) error {
	return s.session(scope).saver.Wait(ctx)
}

// Close flushes every session. Call it on shutdown so the last edits
// are not lost.
func (s *BudgetService) Close() error {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.saver.Wait(context.Background()); err != nil {
			return err
		}
		sess.saver.Close()
	}
	return nil
}
