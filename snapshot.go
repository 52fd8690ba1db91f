package tickrtos

import (
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// TaskSnapshot is a point-in-time, allocating view of one task, returned
// only by Scheduler.Snapshot — never consulted by the scheduling path
// itself.
type TaskSnapshot struct {
	Name     string
	Priority Priority
	State    string
	WakeAt   TimePoint
}

// snapshotKey orders a Snapshot's entries by (priority, name) so the
// diagnostic view reads in the same priority-first order scheduling
// decisions are made in, with ties broken deterministically by name
// instead of by the live lastStarted value (which would make two
// consecutive snapshots of an idle system look unstable for no reason a
// diagnostic consumer cares about).
type snapshotKey struct {
	priority Priority
	name     string
}

func snapshotComparator(a, b interface{}) int {
	ka, kb := a.(snapshotKey), b.(snapshotKey)
	switch {
	case ka.priority < kb.priority:
		return -1
	case ka.priority > kb.priority:
		return 1
	case ka.name < kb.name:
		return -1
	case ka.name > kb.name:
		return 1
	default:
		return 0
	}
}

// Snapshot returns every known task's diagnostic state, ordered by
// priority then name. It is grounded on the teacher's use of
// gods/trees/redblacktree to keep its scheduling candidates ordered; here
// the same container is repurposed away from the live scheduling path
// (which internal/ilist serves, allocation-free) to this one allocating,
// introspection-only view, since gods' tree nodes are heap-allocated
// per-insert and unsuitable for a queue mutated on every switch (see
// DESIGN.md).
func (s *Scheduler) Snapshot() []TaskSnapshot {
	tasks := s.AllTasks()
	tree := redblacktree.NewWith(snapshotComparator)
	for _, t := range tasks {
		s.mu.Lock()
		key := snapshotKey{priority: t.priority, name: t.name}
		snap := TaskSnapshot{Name: t.name, Priority: t.priority, State: t.state.String(), WakeAt: t.wakeAt}
		s.mu.Unlock()
		if key.name == "" {
			key.name = fmt.Sprintf("task-%p", t)
			snap.Name = key.name
		}
		tree.Put(key, snap)
	}

	out := make([]TaskSnapshot, 0, tree.Size())
	it := tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(TaskSnapshot))
	}
	return out
}
