package amqp

import (
	"testing"
	"time"
)

func TestNewSnapshotSavedMessage(t *testing.T) {
	msg := NewSnapshotSavedMessage("u1", "p1", "presupuesto", "v3", 7, 250000)

	if msg.UserID != "u1" || msg.ProjectID != "p1" || msg.ModuleKey != "presupuesto" {
		t.Fatalf("scope fields wrong: %+v", msg)
	}
	if msg.Seq != 7 || msg.TotalCents != 250000 {
		t.Fatalf("bookkeeping fields wrong: %+v", msg)
	}
	if msg.SavedAt.IsZero() || time.Since(msg.SavedAt) > time.Second {
		t.Fatalf("SavedAt not set to now: %v", msg.SavedAt)
	}
}

func TestSnapshotSavedMessageJSON(t *testing.T) {
	msg := &SnapshotSavedMessage{
		UserID:     "u1",
		ProjectID:  "p1",
		ModuleKey:  "presupuesto",
		Version:    "v3",
		Seq:        3,
		TotalCents: 99900,
		SavedAt:    time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := SnapshotSavedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if *parsed != *msg {
		t.Fatalf("round trip mismatch:\n  in  %+v\n  out %+v", msg, parsed)
	}
}

func TestSnapshotSavedMessageInvalidJSON(t *testing.T) {
	if _, err := SnapshotSavedMessageFromJSON([]byte(`{"seq": "x"}`)); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}
