// Package cache implements the cache adapter (C4): transactional reads and
// writes of validated RR sets and denial proofs keyed by
// (owner, type, class[, covered type]). It is grounded in solvere's
// BasicCache (sha1-keyed map with clock.Clock-driven TTL expiry), extended
// with request-scoped transaction semantics and wire-format key encoding,
// and backed by github.com/hashicorp/golang-lru/v2 so the in-process cache
// has a bounded memory footprint. Store is a concrete LRU-backed type, not
// an interface; no other backend can be plugged in behind it.
package cache

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmhodges/clock"

	"github.com/dnscore/kresolved"
)

// Key is the wire-format cache key: {class(2B)}{owner-wire-lowercase}{type(2B)}{discriminator(2B)}.
type Key string

// BuildKey constructs a Key from its components. discriminator is the RRSIG
// covered-type when rrtype is dns.TypeRRSIG, and 0 otherwise.
func BuildKey(class uint16, owner string, rrtype uint16, discriminator uint16) (Key, error) {
	n, err := kresolved.ParseName(owner)
	if err != nil {
		return "", err
	}
	wire, err := n.Wire()
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, 2+len(wire)+2+2)
	buf = appendUint16(buf, class)
	buf = append(buf, strings.ToLower(string(wire))...)
	buf = appendUint16(buf, rrtype)
	buf = appendUint16(buf, discriminator)
	return Key(buf), nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

// Entry is a cached, validated RR set or denial proof.
type Entry struct {
	Set      *kresolved.RRSet
	Rank     kresolved.Rank
	Security kresolved.SecurityState
	Expires  time.Time
}

// Store is the underlying bounded cache. Callers reach it through Begin,
// whose Txn adds request-scoped transaction semantics (Get/Put/Commit/Abort)
// for all-or-nothing visibility of several writes: the transaction opens at
// request start and commits exactly once on success.
type Store struct {
	mu    sync.RWMutex
	lru   *lru.Cache[Key, *Entry]
	clock clock.Clock
}

// NewStore returns a Store holding at most size entries.
func NewStore(size int, clk clock.Clock) (*Store, error) {
	c, err := lru.New[Key, *Entry](size)
	if err != nil {
		return nil, kresolved.Wrap(kresolved.InvalidArgument, err, "create lru store")
	}
	if clk == nil {
		clk = clock.Default()
	}
	return &Store{lru: c, clock: clk}, nil
}

// get returns the entry for key if present and not expired.
func (s *Store) get(key Key) (*Entry, bool) {
	s.mu.RLock()
	e, ok := s.lru.Get(key)
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.Expires.IsZero() && s.clock.Now().After(e.Expires) {
		s.mu.Lock()
		s.lru.Remove(key)
		s.mu.Unlock()
		return nil, false
	}
	return e, true
}

// put inserts or upgrades the entry for key. An existing entry is only
// overwritten if the new rank is >= the stored rank: entries ranked SECURE
// are preferred over an INSECURE entry for the same record.
func (s *Store) put(key Key, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.lru.Get(key); ok && existing.Rank > e.Rank {
		return
	}
	s.lru.Add(key, e)
}

// Txn is a request-scoped cache transaction. Reads see the store's
// committed state directly — updates become observable to concurrent
// requests only after the writer yields; writes are buffered until Commit.
type Txn struct {
	store   *Store
	pending map[Key]*Entry
	done    bool
}

// Begin opens a new transaction against store.
func (s *Store) Begin() *Txn {
	return &Txn{store: s, pending: make(map[Key]*Entry)}
}

// Get returns the entry for key, preferring an uncommitted write from this
// transaction over the store's committed value.
func (t *Txn) Get(key Key) (*Entry, bool) {
	if e, ok := t.pending[key]; ok {
		return e, true
	}
	return t.store.get(key)
}

// Put buffers a write; it is not visible to other transactions until
// Commit.
func (t *Txn) Put(key Key, set *kresolved.RRSet, ttl time.Duration, rank kresolved.Rank, security kresolved.SecurityState) {
	expires := t.store.clock.Now().Add(ttl)
	t.pending[key] = &Entry{Set: set, Rank: rank, Security: security, Expires: expires}
}

// Commit flushes all buffered writes to the store. It is safe to call
// Commit on a transaction with no writes (a pure-read transaction), which
// is a no-op — read-only transactions may simply be discarded.
func (t *Txn) Commit() {
	if t.done {
		return
	}
	t.done = true
	for k, e := range t.pending {
		t.store.put(k, e)
	}
}

// Abort discards all buffered writes without touching the store.
func (t *Txn) Abort() {
	t.done = true
	t.pending = nil
}

// KeyForRRSet derives a cache Key for an RRSet, including the RRSIG
// covered-type discriminator when applicable.
func KeyForRRSet(set *kresolved.RRSet) (Key, error) {
	return BuildKey(set.Key.Class, set.Key.Owner, set.Key.Type, set.Key.CoveredType)
}

// KeyForQuestion derives a cache Key directly from a question. The
// discriminator is always 0: a plain Question carries no RRSIG covered type
// to disambiguate.
func KeyForQuestion(q kresolved.Question) (Key, error) {
	return BuildKey(q.Class, q.Name, q.Type, 0)
}
