package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "backups.db"))
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return s
}

func TestStore(t *testing.T) {
	s := openTest(t)
	if _, err := s.Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() on an empty store error = %v want %v", err, ErrNotFound)
	}

	docs := []string{`{"version":1}`, `{"version":2}`, `{"version":3}`}
	for i, doc := range docs {
		snap, err := s.Save([]byte(doc), "add")
		if err != nil {
			t.Fatalf("Save() unexpected error: %v", err)
		}
		if snap.ID != uint64(i+1) || snap.Size != len(doc) {
			t.Errorf("Save() = %+v want id %d size %d", snap, i+1, len(doc))
		}
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	want := []Snapshot{
		{ID: 1, Time: time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC), Reason: "add", Size: 13},
		{ID: 2, Time: time.Date(2024, 3, 1, 10, 2, 0, 0, time.UTC), Reason: "add", Size: 13},
		{ID: 3, Time: time.Date(2024, 3, 1, 10, 3, 0, 0, time.UTC), Reason: "add", Size: 13},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest() unexpected error: %v", err)
	}
	if latest.ID != 3 {
		t.Errorf("Latest().ID = %d want 3", latest.ID)
	}
	doc, err := s.Load(2)
	if err != nil {
		t.Fatalf("Load(2) unexpected error: %v", err)
	}
	if string(doc) != docs[1] {
		t.Errorf("Load(2) = %s want %s", doc, docs[1])
	}
	if _, err := s.Load(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(42) error = %v want %v", err, ErrNotFound)
	}
}

func TestPrune(t *testing.T) {
	tests := []struct {
		keep        int
		wantDeleted int
		wantIDs     []uint64
	}{
		{keep: 0, wantDeleted: 0, wantIDs: []uint64{1, 2, 3, 4, 5}},
		{keep: 2, wantDeleted: 3, wantIDs: []uint64{4, 5}},
		{keep: 5, wantDeleted: 0, wantIDs: []uint64{1, 2, 3, 4, 5}},
		{keep: 10, wantDeleted: 0, wantIDs: []uint64{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		s := openTest(t)
		for range 5 {
			if _, err := s.Save([]byte("{}"), ""); err != nil {
				t.Fatalf("Save() unexpected error: %v", err)
			}
		}
		deleted, err := s.Prune(tt.keep)
		if err != nil {
			t.Fatalf("Prune(%d) unexpected error: %v", tt.keep, err)
		}
		if deleted != tt.wantDeleted {
			t.Errorf("Prune(%d) = %d want %d", tt.keep, deleted, tt.wantDeleted)
		}
		snaps, err := s.List()
		if err != nil {
			t.Fatalf("List() unexpected error: %v", err)
		}
		var ids []uint64
		for _, snap := range snaps {
			ids = append(ids, snap.ID)
			if _, err := s.Load(snap.ID); err != nil {
				t.Errorf("Load(%d) unexpected error: %v", snap.ID, err)
			}
		}
		if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
			t.Errorf("Prune(%d) left (-want +got):\n%s", tt.keep, diff)
		}
		if _, err := s.Load(1); tt.wantIDs[0] != 1 && !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(1) after Prune(%d) error = %v want %v", tt.keep, err, ErrNotFound)
		}
	}
}

func TestDelete(t *testing.T) {
	s := openTest(t)
	snap, err := s.Save([]byte("{}"), "")
	if err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
	if err := s.Delete(snap.ID); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	if err := s.Delete(snap.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v want %v", err, ErrNotFound)
	}
	// Sequences are never reused.
	next, err := s.Save([]byte("{}"), "")
	if err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
	if next.ID != 2 {
		t.Errorf("Save().ID = %d want 2", next.ID)
	}
}
