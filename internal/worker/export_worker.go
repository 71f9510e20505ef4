package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"presupuesto/internal/amqp"
	"presupuesto/internal/core"
	"presupuesto/internal/sheets"
	"presupuesto/internal/storage"
)

// SnapshotStore is the slice of the repository the export worker needs.
type SnapshotStore interface {
	LoadState(ctx context.Context, scope storage.Scope) ([]byte, error)
	ListStateScopes(ctx context.Context) ([]storage.Scope, error)
}

// ExportWorker mirrors saved budget snapshots to an external sheet so
// producers can share a read-only view with clients and accountants.
type ExportWorker struct {
	store  SnapshotStore
	writer sheets.SnapshotWriter
}

func NewExportWorker(store SnapshotStore, writer sheets.SnapshotWriter) *ExportWorker {
	return &ExportWorker{store: store, writer: writer}
}

// HandleSnapshotSaved exports the scope named by a saved-snapshot message.
func (w *ExportWorker) HandleSnapshotSaved(ctx context.Context, msg *amqp.SnapshotSavedMessage) error {
	scope := storage.Scope{
		UserID:    msg.UserID,
		ProjectID: msg.ProjectID,
		ModuleKey: msg.ModuleKey,
	}

	slog.InfoContext(ctx, "Processing snapshot saved message",
		"scope", scope.String(),
		"seq", msg.Seq)

	return w.exportScope(ctx, scope)
}

// ExportAll walks every stored scope and re-exports it. It is the backup
// mechanism for lost messages and worker downtime, and is also run once
// at startup.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	scopes, err := w.store.ListStateScopes(ctx)
	if err != nil {
		return fmt.Errorf("list state scopes: %w", err)
	}

	if len(scopes) == 0 {
		slog.InfoContext(ctx, "No stored budgets to export")
		return nil
	}

	exported := 0
	failed := 0
	for _, scope := range scopes {
		if err := w.exportScope(ctx, scope); err != nil {
			slog.ErrorContext(ctx, "Failed to export budget",
				"scope", scope.String(),
				"error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Export sweep completed",
		"total", len(scopes),
		"exported", exported,
		"errors", failed)

	if failed > 0 {
		return fmt.Errorf("export sweep: %d of %d scopes failed", failed, len(scopes))
	}
	return nil
}

// RunReconciliation re-exports all scopes on a fixed interval until the
// context is cancelled.
func (w *ExportWorker) RunReconciliation(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ExportAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportScope(ctx context.Context, scope storage.Scope) error {
	raw, err := w.store.LoadState(ctx, scope)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if raw == nil {
		slog.WarnContext(ctx, "No snapshot stored for scope, skipping",
			"scope", scope.String())
		return nil
	}

	state, _, err := core.MigrateState(raw)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	rows := core.FlattenRows(state.Items)
	if err := w.writer.WriteSnapshot(ctx, scope.ProjectID, scope.ModuleKey, rows); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Exported budget snapshot",
		"scope", scope.String(),
		"items", len(state.Items))
	return nil
}
