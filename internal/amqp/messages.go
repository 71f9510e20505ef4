package amqp

import (
	"encoding/json"
	"time"
)

// SnapshotSavedMessage announces that a scope's budget snapshot was
// persisted. It carries only the scope and bookkeeping columns; the
// worker reloads the full snapshot from the database, so a stale
// message is harmless.
type SnapshotSavedMessage struct {
	UserID     string    `json:"user_id"`
	ProjectID  string    `json:"project_id"`
	ModuleKey  string    `json:"module_key"`
	Version    string    `json:"version"`
	Seq        int64     `json:"seq"`
	TotalCents int64     `json:"total_cents"`
	SavedAt    time.Time `json:"saved_at"`
}

func NewSnapshotSavedMessage(userID, projectID, moduleKey, version string, seq, totalCents int64) *SnapshotSavedMessage {
	return &SnapshotSavedMessage{
		UserID:     userID,
		ProjectID:  projectID,
		ModuleKey:  moduleKey,
		Version:    version,
		Seq:        seq,
		TotalCents: totalCents,
		SavedAt:    time.Now().UTC(),
	}
}

func (m *SnapshotSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotSavedMessageFromJSON(data []byte) (*SnapshotSavedMessage, error) {
	var msg SnapshotSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
