// Package delegation implements the delegation map (C3): a cache of
// zone-cut -> name-server set with address hints and per-NS quality
// stats, shared across concurrent requests. It is backed by
// github.com/orcaman/concurrent-map/v2, matching the per-bucket mutation
// with copy-on-read semantics the map needs — each shard has its own lock
// instead of one map-wide mutex.
package delegation

import (
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/time/rate"

	"github.com/dnscore/kresolved"
)

// nsStat tracks one nameserver's recent behavior: a smoothed RTT, a
// consecutive-failure counter, and a rate limiter that throttles how often
// a known-bad server is retried so a down NS doesn't get hammered every
// referral hop while still allowing periodic re-probes.
type nsStat struct {
	mu                 sync.Mutex
	ewmaRTT            time.Duration
	consecutiveFailure int
	limiter            *rate.Limiter
}

const ewmaWeight = 0.3

func newNSStat() *nsStat {
	return &nsStat{limiter: rate.NewLimiter(rate.Every(time.Second), 3)}
}

func (s *nsStat) recordSuccess(rtt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ewmaRTT == 0 {
		s.ewmaRTT = rtt
	} else {
		s.ewmaRTT = time.Duration(float64(s.ewmaRTT)*(1-ewmaWeight) + float64(rtt)*ewmaWeight)
	}
	s.consecutiveFailure = 0
}

func (s *nsStat) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailure++
}

// score is lower-is-better: RTT in milliseconds plus a penalty per
// consecutive failure.
func (s *nsStat) score() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	rttMs := float64(s.ewmaRTT) / float64(time.Millisecond)
	return rttMs + float64(s.consecutiveFailure)*250
}

func (s *nsStat) retryAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consecutiveFailure == 0 {
		return true
	}
	return s.limiter.Allow()
}

// Delegation describes a zone cut: the NS name set, address hints per NS,
// and an optional validated DS set (or a recorded proof of its
// non-existence) establishing whether the cut is provably insecure.
type Delegation struct {
	Cut          string
	NSNames      []string
	Addrs        map[string][]string // NS name -> address hints
	DSSet        []byte               // opaque wire-encoded DS RRset, nil if unknown
	Secure       kresolved.SecurityState
	ProvenInsecure bool

	stats map[string]*nsStat
	mu    sync.Mutex
}

func newDelegation(cut string) *Delegation {
	return &Delegation{
		Cut:   cut,
		Addrs: make(map[string][]string),
		stats: make(map[string]*nsStat),
	}
}

func (d *Delegation) statFor(ns string) *nsStat {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.stats[ns]
	if !ok {
		s = newNSStat()
		d.stats[ns] = s
	}
	return s
}

// Map is the concurrent zone-cut -> Delegation store.
type Map struct {
	shards cmap.ConcurrentMap[string, *Delegation]
}

// New returns an empty Map.
func New() *Map {
	return &Map{shards: cmap.New[*Delegation]()}
}

// Insert adds or replaces the delegation for its zone cut.
func (m *Map) Insert(d *Delegation) {
	m.shards.Set(kresolved.MustParseName(d.Cut).Canonical(), d)
}

// GetOrCreate returns the delegation for an exact zone-cut name, creating
// an empty one if absent.
func (m *Map) GetOrCreate(cut string) *Delegation {
	key := kresolved.MustParseName(cut).Canonical()
	if d, ok := m.shards.Get(key); ok {
		return d
	}
	d := newDelegation(cut)
	m.shards.SetIfAbsent(key, d)
	existing, _ := m.shards.Get(key)
	return existing
}

// Lookup returns the longest matching zone-cut delegation for name by
// walking up from the full name to the root, one label at a time.
func (m *Map) Lookup(name string) (*Delegation, bool) {
	n, err := kresolved.ParseName(name)
	if err != nil {
		return nil, false
	}
	labels := n.Labels()
	for i := 0; i <= len(labels); i++ {
		candidate := labelsToName(labels[i:])
		if d, ok := m.shards.Get(candidate); ok {
			return d, true
		}
	}
	return nil, false
}

func labelsToName(labels []string) string {
	if len(labels) == 0 {
		return "."
	}
	out := ""
	for _, l := range labels {
		out += l + "."
	}
	return kresolved.MustParseName(out).Canonical()
}

// SelectNS picks the best NS for a delegation, excluding any name in
// exclude, combining smoothed RTT and consecutive-failure penalties with
// randomized tie-breaking among near-equal scores.
func (m *Map) SelectNS(d *Delegation, exclude map[string]bool, rnd *kresolved.RandPool) (name string, addr string, ok bool) {
	type candidate struct {
		name  string
		addr  string
		score float64
	}
	var candidates []candidate
	for _, nsName := range d.NSNames {
		if exclude[nsName] {
			continue
		}
		addrs := d.Addrs[nsName]
		if len(addrs) == 0 {
			continue
		}
		stat := d.statFor(nsName)
		if !stat.retryAllowed() {
			continue
		}
		addr := addrs[0]
		if len(addrs) > 1 && rnd != nil {
			addr = addrs[rnd.Intn(len(addrs))]
		}
		candidates = append(candidates, candidate{nsName, addr, stat.score()})
	}
	if len(candidates) == 0 {
		return "", "", false
	}
	best := candidates[0].score
	var tied []candidate
	for _, c := range candidates {
		if c.score < best {
			best = c.score
			tied = []candidate{c}
		} else if c.score == best {
			tied = append(tied, c)
		}
	}
	choice := tied[0]
	if len(tied) > 1 && rnd != nil {
		choice = tied[rnd.Intn(len(tied))]
	}
	return choice.name, choice.addr, true
}

// PenalizeNS records a failure (timeout/refusal) for ns under cut.
func (m *Map) PenalizeNS(cut, ns string) {
	if d, ok := m.Lookup(cut); ok {
		d.statFor(ns).recordFailure()
	}
}

// RewardNS records a successful exchange and its RTT for ns under cut.
func (m *Map) RewardNS(cut, ns string, rtt time.Duration) {
	if d, ok := m.Lookup(cut); ok {
		d.statFor(ns).recordSuccess(rtt)
	}
}
