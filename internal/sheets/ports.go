package sheets

import "context"

// Ports for outbound adapters.
type (
	// SnapshotWriter replaces a project's exported budget sheet with
	// the given rows (header first). Writes are full replacements, so
	// replaying an old export is safe.
	SnapshotWriter interface {
		WriteSnapshot(ctx context.Context, projectID, moduleKey string, rows [][]string) error
	}
)
