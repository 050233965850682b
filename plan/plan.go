// Package plan implements the resolution plan (C5): a LIFO stack of
// pending sub-queries with parent/child links, a UID allocator and cycle
// detection. It is grounded on solvere's ad-hoc referral loop in
// resolver.go, generalized into an explicit stack so DS/DNSKEY sub-queries
// can be pushed above their dependent and resolved first.
package plan

import (
	"sync"

	"github.com/dnscore/kresolved"
)

// Key identifies a query for cycle detection: (sname, stype, sclass).
type Key struct {
	Name  string
	Type  uint16
	Class uint16
}

func keyOf(q *kresolved.Query) Key {
	return Key{Name: q.Question.Name, Type: q.Question.Type, Class: q.Question.Class}
}

// Plan is an ordered collection of Queries plus a monotonically increasing
// UID allocator. It is not safe for concurrent use by multiple goroutines
// at once — a single request drives its Plan cooperatively, one step at a
// time.
type Plan struct {
	mu      sync.Mutex // guards nextUID only; stack access is single-threaded per request
	nextUID uint64
	stack   []*kresolved.Query
	byUID   map[uint64]*kresolved.Query
	parent  map[uint64]uint64
}

// New returns an empty Plan.
func New() *Plan {
	return &Plan{
		byUID:  make(map[uint64]*kresolved.Query),
		parent: make(map[uint64]uint64),
	}
}

// allocUID hands out the next UID from this Plan's own counter, under p.mu.
func (p *Plan) allocUID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextUID++
	return p.nextUID
}

// Push adds a query to the top of the stack. If q has a non-zero
// ParentUID, Push rejects it with kresolved.Loop when an ancestor already
// shares q's (sname, stype, sclass) key — the only form of infinite
// recursion the retry budget doesn't already catch.
func (p *Plan) Push(q *kresolved.Query) error {
	if q.ParentUID != 0 {
		if _, ok := p.byUID[q.ParentUID]; !ok {
			return kresolved.Newf(kresolved.InvalidArgument, "push: parent UID %d not present in plan", q.ParentUID)
		}
		if p.ancestorHasKey(q.ParentUID, keyOf(q)) {
			return kresolved.Newf(kresolved.Loop, "cycle detected pushing %s/%d on top of parent chain", q.Question.Name, q.Question.Type)
		}
	}
	if q.UID == 0 {
		q.UID = p.allocUID()
	}
	p.stack = append(p.stack, q)
	p.byUID[q.UID] = q
	if q.ParentUID != 0 {
		p.parent[q.UID] = q.ParentUID
	}
	return nil
}

// ancestorHasKey walks from uid up through parent links, returning true if
// any ancestor (inclusive) has key k.
func (p *Plan) ancestorHasKey(uid uint64, k Key) bool {
	seen := map[uint64]bool{}
	for {
		q, ok := p.byUID[uid]
		if !ok {
			return false
		}
		if keyOf(q) == k {
			return true
		}
		if seen[uid] {
			return false // already-cyclic bookkeeping; don't spin forever
		}
		seen[uid] = true
		parentUID, ok := p.parent[uid]
		if !ok {
			return false
		}
		uid = parentUID
	}
}

// Pop removes and returns the top-of-stack query, or nil if the plan is
// empty.
func (p *Plan) Pop() *kresolved.Query {
	if len(p.stack) == 0 {
		return nil
	}
	q := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	delete(p.byUID, q.UID)
	delete(p.parent, q.UID)
	return q
}

// Retire removes the query identified by uid from the plan, wherever it
// currently sits in the stack, and drops its bookkeeping. It reports
// whether a matching query was found. Used when a query hands resolution
// off to a sub-query pushed above it (a CNAME chase) and must not be
// re-stepped once that hand-off is recorded — unlike Pop, it doesn't
// require uid to be on top, since the hand-off sub-query already is.
func (p *Plan) Retire(uid uint64) bool {
	for i, q := range p.stack {
		if q.UID == uid {
			p.stack = append(p.stack[:i], p.stack[i+1:]...)
			delete(p.byUID, uid)
			delete(p.parent, uid)
			return true
		}
	}
	return false
}

// Top returns the top-of-stack query without removing it, or nil if empty.
func (p *Plan) Top() *kresolved.Query {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// NextPending is an alias for Top: the next query the driver should hand to
// the iterator.
func (p *Plan) NextPending() *kresolved.Query { return p.Top() }

// Find locates a query on the stack by its (sname, stype, sclass) key.
func (p *Plan) Find(name string, qtype, qclass uint16) *kresolved.Query {
	k := Key{Name: name, Type: qtype, Class: qclass}
	for _, q := range p.stack {
		if keyOf(q) == k {
			return q
		}
	}
	return nil
}

// Clear empties the plan, e.g. when an expiring request causes the driver
// to unwind it.
func (p *Plan) Clear() {
	p.stack = nil
	p.byUID = make(map[uint64]*kresolved.Query)
	p.parent = make(map[uint64]uint64)
}

// Depth returns the current stack depth. The iterator refuses a CNAME chase
// once Depth reaches DefaultMaxCNAMEChain; DNSKEY prerequisite pushes are
// not checked against Depth.
func (p *Plan) Depth() int { return len(p.stack) }

// Parent returns the parent query of uid, if any.
func (p *Plan) Parent(uid uint64) (*kresolved.Query, bool) {
	parentUID, ok := p.parent[uid]
	if !ok {
		return nil, false
	}
	q, ok := p.byUID[parentUID]
	return q, ok
}
