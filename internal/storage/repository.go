package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Scope identifies one stored snapshot: one user, one project, one
// module of that project.
type Scope struct {
	UserID    string
	ProjectID string
	ModuleKey string
}

func (s Scope) String() string {
	return s.UserID + "/" + s.ProjectID + "/" + s.ModuleKey
}

// StateRecord is a stored snapshot plus the columns kept outside the
// blob for listing and reconciliation.
type StateRecord struct {
	Scope      Scope
	Snapshot   []byte
	Version    string
	Seq        int64
	TotalCents int64
	UpdatedAt  time.Time
}

// Expense is one executed-spend row, recorded against a project and
// optionally tied to the budget line it draws from.
type Expense struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"-"`
	ProjectID     string    `json:"-"`
	Date          string    `json:"fecha"`
	Account       string    `json:"cuenta"`
	Concept       string    `json:"concepto"`
	AmountCents   int64     `json:"monto_cents"`
	Vendor        string    `json:"proveedor,omitempty"`
	Responsible   string    `json:"responsable,omitempty"`
	BudgetItemUID string    `json:"partida_uid,omitempty"`
	ReceiptPath   string    `json:"comprobante,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

var ErrExpenseNotFound = errors.New("expense not found")

// Repository is the persistence surface shared by the sqlite and memory
// backends. Commands pick a backend at startup and hand this around.
type Repository interface {
	Close() error
	LoadState(ctx context.Context, scope Scope) ([]byte, error)
	SaveState(ctx context.Context, rec StateRecord) error
	ListStateScopes(ctx context.Context) ([]Scope, error)
	InsertExpense(ctx context.Context, e Expense) (int64, error)
	ListExpenses(ctx context.Context, userID, projectID string) ([]Expense, error)
	DeleteExpense(ctx context.Context, userID, projectID string, id int64) error
	SumExpensesByAccount(ctx context.Context, userID, projectID string) (map[string]int64, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadState returns the stored snapshot for a scope, or nil when the
// scope has never been saved.
func (r *SQLiteRepository) LoadState(ctx context.Context, scope Scope) ([]byte, error) {
	var snapshot []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT snapshot FROM module_state
		 WHERE user_id = ? AND project_id = ? AND module_key = ?`,
		scope.UserID, scope.ProjectID, scope.ModuleKey,
	).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", scope, err)
	}
	return snapshot, nil
}

// SaveState replaces the snapshot for a scope as a unit.
func (r *SQLiteRepository) SaveState(ctx context.Context, rec StateRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO module_state (user_id, project_id, module_key, snapshot, version, seq, total_cents, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id, project_id, module_key) DO UPDATE SET
		   snapshot = excluded.snapshot,
		   version = excluded.version,
		   seq = excluded.seq,
		   total_cents = excluded.total_cents,
		   updated_at = CURRENT_TIMESTAMP`,
		rec.Scope.UserID, rec.Scope.ProjectID, rec.Scope.ModuleKey,
		rec.Snapshot, rec.Version, rec.Seq, rec.TotalCents,
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", rec.Scope, err)
	}

	slog.InfoContext(ctx, "Snapshot saved",
		"scope", rec.Scope.String(),
		"version", rec.Version,
		"seq", rec.Seq,
		"total_cents", rec.TotalCents)
	return nil
}

// ListStateScopes returns every scope that has a stored snapshot,
// most recently updated first.
func (r *SQLiteRepository) ListStateScopes(ctx context.Context) ([]Scope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, project_id, module_key FROM module_state ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list state scopes: %w", err)
	}
	defer rows.Close()

	var scopes []Scope
	for rows.Next() {
		var s Scope
		if err := rows.Scan(&s.UserID, &s.ProjectID, &s.ModuleKey); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

// InsertExpense records an executed spend and returns its id.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, project_id, expense_date, account, concept, amount_cents,
		                       vendor, responsible, budget_item_uid, receipt_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		e.UserID, e.ProjectID, e.Date, e.Account, e.Concept, e.AmountCents,
		e.Vendor, e.Responsible, e.BudgetItemUID, e.ReceiptPath,
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "Expense recorded",
		"id", id,
		"project_id", e.ProjectID,
		"account", e.Account,
		"amount_cents", e.AmountCents)
	return id, nil
}

// ListExpenses returns a project's expenses, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID, projectID string) ([]Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, project_id, expense_date, account, concept, amount_cents,
		        vendor, responsible, budget_item_uid, receipt_path, created_at
		 FROM expenses
		 WHERE user_id = ? AND project_id = ?
		 ORDER BY expense_date DESC, id DESC`,
		userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.Date, &e.Account, &e.Concept,
			&e.AmountCents, &e.Vendor, &e.Responsible, &e.BudgetItemUID, &e.ReceiptPath,
			&e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExpense removes one expense owned by the given user/project.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, projectID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ? AND project_id = ?`,
		id, userID, projectID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// SumExpensesByAccount aggregates a project's executed spend in cents,
// keyed by account.
func (r *SQLiteRepository) SumExpensesByAccount(ctx context.Context, userID, projectID string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account, COALESCE(SUM(amount_cents), 0)
		 FROM expenses
		 WHERE user_id = ? AND project_id = ?
		 GROUP BY account`,
		userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var account string
		var cents int64
		if err := rows.Scan(&account, &cents); err != nil {
			return nil, fmt.Errorf("scan expense sum: %w", err)
		}
		sums[account] = cents
	}
	return sums, rows.Err()
}
