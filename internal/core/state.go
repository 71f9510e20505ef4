package core

import (
	"errors"
	"time"
)

// CurrentVersion tags the stored snapshot schema. Anything else is
// treated as legacy and migrated on load.
const CurrentVersion = "v3_productora_cents"

var ErrItemNotFound = errors.New("item not found")

// Meta carries snapshot bookkeeping persisted alongside the items.
type Meta struct {
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes,omitempty"`
}

// State is the whole-budget snapshot for one (user, project, module)
// scope. It is persisted and replaced as a unit; there are no partial
// updates. Seq is a monotonically increasing folio counter kept for
// compatibility with the legacy schema.
type State struct {
	Version string `json:"version"`
	Seq     int64  `json:"seq"`
	Items   []Item `json:"items"`
	Meta    Meta   `json:"meta"`
}

// NewState returns an empty current-version snapshot.
func NewState() State {
	return State{Version: CurrentVersion, Items: []Item{}}
}

// State transitions are pure: each reducer returns a fresh State and
// leaves the receiver untouched, so callers decide when to persist.

func (s State) clone() State {
	out := s
	out.Items = make([]Item, len(s.Items))
	copy(out.Items, s.Items)
	return out
}

func (s State) stamp() State {
	s.Version = CurrentVersion
	s.Meta.UpdatedAt = time.Now().UTC()
	return s
}

// Create appends a normalized item and bumps the folio counter.
func (s State) Create(raw RawItem) (State, Item) {
	next := s.clone()
	item := Normalize(raw)
	next.Items = append(next.Items, item)
	next.Seq++
	return next.stamp(), item
}

// Update replaces the item with the given uid by the normalized form
// of raw, preserving uid and creation time.
func (s State) Update(uid string, raw RawItem) (State, Item, error) {
	next := s.clone()
	for i, it := range next.Items {
		if it.UID != uid {
			continue
		}
		raw.UID = uid
		raw.CreatedAt = it.CreatedAt
		raw.UpdatedAt = time.Now().UTC()
		item := Normalize(raw)
		next.Items[i] = item
		return next.stamp(), item, nil
	}
	return s, Item{}, ErrItemNotFound
}

// Delete removes items by uid. Removal is immediate and permanent;
// there is no soft delete. Unknown uids are ignored.
func (s State) Delete(uids ...string) State {
	drop := make(map[string]bool, len(uids))
	for _, u := range uids {
		drop[u] = true
	}
	next := s.clone()
	kept := next.Items[:0]
	for _, it := range next.Items {
		if !drop[it.UID] {
			kept = append(kept, it)
		}
	}
	next.Items = kept
	return next.stamp()
}

// CommitBulk normalizes and appends a batch of imported rows, bumping
// the folio counter once per row. Preview and commit both go through
// Normalize, so committed totals always match the preview.
func (s State) CommitBulk(raws []RawItem) (State, []Item) {
	next := s.clone()
	added := make([]Item, 0, len(raws))
	for _, raw := range raws {
		item := Normalize(raw)
		next.Items = append(next.Items, item)
		added = append(added, item)
	}
	next.Seq += int64(len(raws))
	return next.stamp(), added
}

// Renormalize re-runs every item through the normalizer. Cheap and
// idempotent; applied on every load as a consistency pass.
func (s State) Renormalize() State {
	next := s.clone()
	for i, it := range next.Items {
		next.Items[i] = Normalize(it.Raw())
	}
	next.Version = CurrentVersion
	return next
}

// Find returns the item with the given uid.
func (s State) Find(uid string) (Item, bool) {
	for _, it := range s.Items {
		if it.UID == uid {
			return it, true
		}
	}
	return Item{}, false
}
