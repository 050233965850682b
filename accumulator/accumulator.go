// Package accumulator implements the ranked RR accumulator (C8):
// deduplicated, ranked per-origin RR sets destined for final response
// assembly. It generalizes solvere's ad-hoc "overwrite the answer
// section on each hop" behavior into an explicit rank/merge/to-wire model.
package accumulator

import (
	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
)

// Entry is one accumulated RR set plus its bookkeeping flags.
type Entry struct {
	Set              *kresolved.RRSet
	Rank             kresolved.Rank
	QueryUID         uint64
	Cached           bool
	Yielded          bool
	ToWire           bool
	RevalidationCount int
}

// Accumulator holds all entries gathered over the course of one request.
// It is not safe for concurrent use — like the Plan, it's single-request,
// single-threaded-between-suspensions state.
type Accumulator struct {
	entries []*Entry
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

func sameIdentity(a, b kresolved.RRSetKey) bool {
	return a == b
}

// Add inserts rr (already grouped into an RRSet) at rank for the query
// identified by qryUID. If an entry for (qryUID, rrset-key) already exists,
// its rdata is merged and its rank is raised monotonically (never
// lowered); otherwise a new entry is appended.
//
// After insertion, Add walks every existing entry belonging to a
// *different* query UID and clears its ToWire flag when the rrset-key
// matches, preserving the to-wire uniqueness invariant: at most one entry
// with ToWire=true per RR-set identity.
func (a *Accumulator) Add(set *kresolved.RRSet, rank kresolved.Rank, toWire bool, qryUID uint64) *Entry {
	for _, e := range a.entries {
		if e.QueryUID == qryUID && sameIdentity(e.Set.Key, set.Key) {
			e.Set = mergeRRSet(e.Set, set)
			if rank > e.Rank {
				e.Rank = rank
			}
			if toWire {
				a.clearOtherToWire(set.Key, qryUID)
				e.ToWire = true
			}
			return e
		}
	}
	entry := &Entry{Set: set, Rank: rank, QueryUID: qryUID, ToWire: toWire}
	if toWire {
		a.clearOtherToWire(set.Key, qryUID)
	}
	a.entries = append(a.entries, entry)
	return entry
}

func (a *Accumulator) clearOtherToWire(key kresolved.RRSetKey, qryUID uint64) {
	for _, e := range a.entries {
		if e.QueryUID != qryUID && e.ToWire && sameIdentity(e.Set.Key, key) {
			e.ToWire = false
		}
	}
}

func mergeRRSet(existing, incoming *kresolved.RRSet) *kresolved.RRSet {
	seen := make(map[string]bool, len(existing.Records))
	out := &kresolved.RRSet{Key: existing.Key, TTL: existing.TTL}
	for _, r := range existing.Records {
		seen[r.String()] = true
		out.Records = append(out.Records, r)
	}
	for _, r := range incoming.Records {
		if !seen[r.String()] {
			out.Records = append(out.Records, r)
			seen[r.String()] = true
		}
	}
	if incoming.TTL < out.TTL {
		out.TTL = incoming.TTL
	}
	return out
}

// SetWire bulk-toggles ToWire for every entry belonging to qryUID matching
// extra (nil means all entries for that query). When checkDups is true, an
// entry is skipped (left at its current ToWire value) if setting it would
// violate the to-wire uniqueness invariant against an entry from another
// query that's already marked to-wire and wasn't itself just toggled in
// this same call.
func (a *Accumulator) SetWire(qryUID uint64, value bool, checkDups bool, extra func(*Entry) bool) {
	touched := map[*Entry]bool{}
	for _, e := range a.entries {
		if e.QueryUID != qryUID {
			continue
		}
		if extra != nil && !extra(e) {
			continue
		}
		if value && checkDups {
			conflict := false
			for _, other := range a.entries {
				if other == e || touched[other] {
					continue
				}
				if other.ToWire && sameIdentity(other.Set.Key, e.Set.Key) {
					conflict = true
					break
				}
			}
			if conflict {
				continue
			}
		}
		e.ToWire = value
		touched[e] = true
	}
}

// ToWire returns every entry currently marked for final placement, as one
// list in insertion order. The accumulator does not track which response
// section an entry belongs to; placing entries is left to the caller.
func (a *Accumulator) ToWire() []*Entry {
	var out []*Entry
	for _, e := range a.entries {
		if e.ToWire {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns every accumulated entry, to-wire or not (e.g. for
// diagnostics or cache population).
func (a *Accumulator) Entries() []*Entry {
	return a.entries
}

// AssertUniqueToWire validates the to-wire uniqueness invariant holds;
// intended for tests and assertions, not the hot path.
func AssertUniqueToWire(entries []*Entry) bool {
	seen := map[kresolved.RRSetKey]bool{}
	for _, e := range entries {
		if !e.ToWire {
			continue
		}
		if seen[e.Set.Key] {
			return false
		}
		seen[e.Set.Key] = true
	}
	return true
}

// RRs flattens a list of entries back into plain dns.RR slices, e.g. for
// final packet assembly.
func RRs(entries []*Entry) []dns.RR {
	var out []dns.RR
	for _, e := range entries {
		out = append(out, e.Set.Records...)
	}
	return out
}
