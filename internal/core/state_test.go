package core

import (
	"errors"
	"testing"
)

func testRaw(concept string) RawItem {
	return RawItem{
		Stage:     "PRODUCCIÓN",
		Concept:   concept,
		Account:   "LOCACIONES",
		UnitCents: 10000,
		Quantity:  1,
	}
}

func TestStateCreateBumpsSeq(t *testing.T) {
	s := NewState()
	var items []Item
	for i := 0; i < 3; i++ {
		var it Item
		s, it = s.Create(testRaw("loc"))
		items = append(items, it)
	}
	if s.Seq != 3 {
		t.Fatalf("seq = %d, expected 3", s.Seq)
	}
	if len(s.Items) != 3 {
		t.Fatalf("items = %d, expected 3", len(s.Items))
	}
	if items[0].UID == items[1].UID {
		t.Fatal("uids must be unique")
	}
	if s.Version != CurrentVersion {
		t.Fatalf("version = %q", s.Version)
	}
}

func TestStateReducersPure(t *testing.T) {
	s := NewState()
	s, it := s.Create(testRaw("original"))

	edited, _, err := s.Update(it.UID, testRaw("edited"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Items[0].Concept != "original" {
		t.Fatal("update mutated the receiver")
	}
	if edited.Items[0].Concept != "edited" {
		t.Fatal("update result missing the edit")
	}

	deleted := s.Delete(it.UID)
	if len(s.Items) != 1 {
		t.Fatal("delete mutated the receiver")
	}
	if len(deleted.Items) != 0 {
		t.Fatal("delete result still holds the item")
	}
}

func TestStateUpdatePreservesIdentity(t *testing.T) {
	s := NewState()
	s, it := s.Create(testRaw("loc"))
	next, updated, err := s.Update(it.UID, RawItem{
		UID:       "attacker-supplied",
		Stage:     "POSTPRODUCCIÓN",
		Concept:   "loc 2",
		Account:   "LOCACIONES",
		UnitCents: 20000,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UID != it.UID {
		t.Fatalf("uid changed: %q -> %q", it.UID, updated.UID)
	}
	if !updated.CreatedAt.Equal(it.CreatedAt) {
		t.Fatal("created_at must survive edits")
	}
	if next.Seq != s.Seq {
		t.Fatal("edits must not bump seq")
	}
}

func TestStateUpdateNotFound(t *testing.T) {
	s := NewState()
	if _, _, err := s.Update("missing", testRaw("x")); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestStateCommitBulk(t *testing.T) {
	s := NewState()
	s, _ = s.Create(testRaw("first"))
	raws := []RawItem{testRaw("a"), testRaw("b")}
	next, added := s.CommitBulk(raws)
	if len(added) != 2 || len(next.Items) != 3 {
		t.Fatalf("expected 3 items after bulk, got %d (+%d)", len(next.Items), len(added))
	}
	if next.Seq != s.Seq+2 {
		t.Fatalf("seq = %d, expected %d", next.Seq, s.Seq+2)
	}
}

func TestStateFind(t *testing.T) {
	s := NewState()
	s, it := s.Create(testRaw("loc"))
	if _, ok := s.Find(it.UID); !ok {
		t.Fatal("expected to find created item")
	}
	if _, ok := s.Find("nope"); ok {
		t.Fatal("found nonexistent item")
	}
}
