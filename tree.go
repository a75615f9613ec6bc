package kapytal

import (
	"slices"

	"github.com/google/uuid"
)

// forest holds ordered parent/child links between items identified by id.
//
// Roots are the children of uuid.Nil. Items are only referenced by id so a
// relink is a single update of two index entries.
type forest struct {
	parent   map[uuid.UUID]uuid.UUID
	children map[uuid.UUID][]uuid.UUID
}

func newForest() *forest {
	return &forest{
		parent:   make(map[uuid.UUID]uuid.UUID),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Has reports whether id is in the forest.
func (f *forest) Has(id uuid.UUID) bool {
	_, ok := f.parent[id]
	return ok
}

// Parent returns the parent of id, uuid.Nil for a root.
func (f *forest) Parent(id uuid.UUID) uuid.UUID { return f.parent[id] }

// Children returns a copy of the ordered children of id, or of the roots for uuid.Nil.
func (f *forest) Children(id uuid.UUID) []uuid.UUID { return slices.Clone(f.children[id]) }

// Index returns the position of id among its siblings.
func (f *forest) Index(id uuid.UUID) int { return slices.Index(f.children[f.parent[id]], id) }

// Insert adds id under parent at index. An index out of bounds appends.
func (f *forest) Insert(id, parent uuid.UUID, index int) {
	siblings := f.children[parent]
	if index < 0 || index > len(siblings) {
		index = len(siblings)
	}
	f.children[parent] = slices.Insert(siblings, index, id)
	f.parent[id] = parent
}

// Move relinks id under parent at index.
func (f *forest) Move(id, parent uuid.UUID, index int) {
	f.detach(id)
	f.Insert(id, parent, index)
}

// Remove drops a leaf from the forest.
func (f *forest) Remove(id uuid.UUID) {
	f.detach(id)
	delete(f.parent, id)
	delete(f.children, id)
}

func (f *forest) detach(id uuid.UUID) {
	p := f.parent[id]
	siblings := f.children[p]
	if i := slices.Index(siblings, id); i >= 0 {
		f.children[p] = slices.Delete(slices.Clone(siblings), i, i+1)
	}
}

// IsAncestor reports whether ancestor is id or one of its ancestors.
func (f *forest) IsAncestor(ancestor, id uuid.UUID) bool {
	for x := id; x != uuid.Nil; x = f.parent[x] {
		if x == ancestor {
			return true
		}
	}
	return false
}

// Lineage returns the ids from the root down to id included.
func (f *forest) Lineage(id uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for x := id; x != uuid.Nil; x = f.parent[x] {
		ids = append(ids, x)
	}
	slices.Reverse(ids)
	return ids
}

// Walk visits id's descendants depth first, parents before children. uuid.Nil walks the whole forest.
func (f *forest) Walk(id uuid.UUID, visit func(id uuid.UUID, depth int)) {
	var walk func(uuid.UUID, int)
	walk = func(p uuid.UUID, depth int) {
		for _, c := range f.children[p] {
			visit(c, depth)
			walk(c, depth+1)
		}
	}
	walk(id, 0)
}
