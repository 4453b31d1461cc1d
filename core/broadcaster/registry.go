package broadcaster

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// TargetSet is an immutable set of resources keyed by id. Every operation
// that changes membership returns a new set.
type TargetSet struct {
	m map[string]Resource
}

// NewTargetSet builds a set from rs, skipping nils. Later duplicates win.
func NewTargetSet(rs ...Resource) TargetSet {
	m := make(map[string]Resource, len(rs))
	for _, r := range rs {
		if r != nil {
			m[r.ID()] = r
		}
	}
	return TargetSet{m: m}
}

func (s TargetSet) Len() int { return len(s.m) }

func (s TargetSet) Contains(id string) bool {
	_, ok := s.m[id]
	return ok
}

func (s TargetSet) Get(id string) (Resource, bool) {
	r, ok := s.m[id]
	return r, ok
}

// Resources returns the members ordered by id.
func (s TargetSet) Resources() []Resource {
	out := make([]Resource, 0, len(s.m))
	for _, id := range s.IDs() {
		out = append(out, s.m[id])
	}
	return out
}

// IDs returns the member ids in ascending order.
func (s TargetSet) IDs() []string {
	return slices.Sorted(maps.Keys(s.m))
}

// Without returns the set minus rs.
func (s TargetSet) Without(rs ...Resource) TargetSet {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			ids = append(ids, r.ID())
		}
	}
	return s.WithoutIDs(ids...)
}

func (s TargetSet) WithoutIDs(ids ...string) TargetSet {
	if len(ids) == 0 {
		return s
	}
	m := maps.Clone(s.m)
	if m == nil {
		m = map[string]Resource{}
	}
	for _, id := range ids {
		delete(m, id)
	}
	return TargetSet{m: m}
}

// WithoutFunc drops every member for which drop returns true.
func (s TargetSet) WithoutFunc(drop func(Resource) bool) TargetSet {
	m := make(map[string]Resource, len(s.m))
	for id, r := range s.m {
		if !drop(r) {
			m[id] = r
		}
	}
	return TargetSet{m: m}
}

// Only returns the members that also appear in rs.
func (s TargetSet) Only(rs ...Resource) TargetSet {
	m := make(map[string]Resource, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		if member, ok := s.m[r.ID()]; ok {
			m[r.ID()] = member
		}
	}
	return TargetSet{m: m}
}

func (s TargetSet) each(fn func(Resource)) {
	for _, r := range s.m {
		fn(r)
	}
}

var emptyTargets = &TargetSet{m: map[string]Resource{}}

// Registry holds the resources attached to a broadcaster. Writers copy the
// current set and publish a new one; Snapshot is a single atomic load and
// never observes a half-applied change.
type Registry struct {
	mu  sync.Mutex
	cur atomic.Pointer[TargetSet]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.cur.Store(emptyTargets)
	return r
}

// Add registers res. It returns false when a resource with the same id is
// already present.
func (reg *Registry) Add(res Resource) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur := reg.cur.Load()
	if cur.Contains(res.ID()) {
		return false
	}
	m := maps.Clone(cur.m)
	m[res.ID()] = res
	reg.cur.Store(&TargetSet{m: m})
	return true
}

// Remove unregisters res by id.
func (reg *Registry) Remove(res Resource) bool {
	if res == nil {
		return false
	}
	return reg.RemoveID(res.ID())
}

func (reg *Registry) RemoveID(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur := reg.cur.Load()
	if !cur.Contains(id) {
		return false
	}
	next := cur.WithoutIDs(id)
	reg.cur.Store(&next)
	return true
}

// Clear removes every resource and returns the set that was registered.
func (reg *Registry) Clear() TargetSet {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return *reg.cur.Swap(emptyTargets)
}

func (reg *Registry) Get(id string) (Resource, bool) {
	return reg.cur.Load().Get(id)
}

func (reg *Registry) Len() int {
	return reg.cur.Load().Len()
}

// Snapshot returns the current membership.
func (reg *Registry) Snapshot() TargetSet {
	return *reg.cur.Load()
}
