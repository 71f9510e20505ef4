// Package memory holds snapshot exports in process memory, standing in
// for Google Sheets in tests and local development.
package memory

import (
	"context"
	"sync"

	ports "presupuesto/internal/sheets"
)

type Writer struct {
	mu        sync.RWMutex
	snapshots map[string][][]string
}

var _ ports.SnapshotWriter = (*Writer)(nil)

func NewWriter() *Writer {
	return &Writer{snapshots: make(map[string][][]string)}
}

func (w *Writer) WriteSnapshot(_ context.Context, projectID, moduleKey string, rows [][]string) error {
	copied := make([][]string, len(rows))
	for i, row := range rows {
		copied[i] = append([]string(nil), row...)
	}
	w.mu.Lock()
	w.snapshots[projectID+"/"+moduleKey] = copied
	w.mu.Unlock()
	return nil
}

// Snapshot returns the last rows written for a scope, or nil.
func (w *Writer) Snapshot(projectID, moduleKey string) [][]string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshots[projectID+"/"+moduleKey]
}
