package cache

import (
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
)

func TestCacheRoundTrip(t *testing.T) {
	fc := clock.NewFake()
	store, err := NewStore(16, fc)
	if err != nil {
		t.Fatal(err)
	}

	key, err := BuildKey(dns.ClassINET, "example.com.", dns.TypeA, 0)
	if err != nil {
		t.Fatal(err)
	}
	set := kresolved.NewRRSet([]dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}}})

	txn := store.Begin()
	if _, ok := txn.Get(key); ok {
		t.Fatal("expected no entry before put")
	}
	txn.Put(key, set, 300*time.Second, kresolved.RankSecure, kresolved.Secure)
	txn.Commit()

	txn2 := store.Begin()
	e, ok := txn2.Get(key)
	if !ok {
		t.Fatal("expected entry after commit")
	}
	if e.Rank != kresolved.RankSecure {
		t.Fatalf("expected rank unchanged after round trip, got %s", e.Rank)
	}
	txn2.Commit()
}

func TestCacheExpiration(t *testing.T) {
	fc := clock.NewFake()
	store, _ := NewStore(16, fc)
	key, _ := BuildKey(dns.ClassINET, "example.com.", dns.TypeA, 0)
	set := kresolved.NewRRSet([]dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 5}}})

	txn := store.Begin()
	txn.Put(key, set, 5*time.Second, kresolved.RankTry, kresolved.Indeterminate)
	txn.Commit()

	fc.Add(10 * time.Second)

	txn2 := store.Begin()
	if _, ok := txn2.Get(key); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestAbortDiscardsWrites(t *testing.T) {
	fc := clock.NewFake()
	store, _ := NewStore(16, fc)
	key, _ := BuildKey(dns.ClassINET, "example.com.", dns.TypeA, 0)
	set := kresolved.NewRRSet([]dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}}})

	txn := store.Begin()
	txn.Put(key, set, 300*time.Second, kresolved.RankTry, kresolved.Indeterminate)
	txn.Abort()

	txn2 := store.Begin()
	if _, ok := txn2.Get(key); ok {
		t.Fatal("expected aborted write to never be visible")
	}
}

func TestRankPreferenceSecureOverInsecure(t *testing.T) {
	fc := clock.NewFake()
	store, _ := NewStore(16, fc)
	key, _ := BuildKey(dns.ClassINET, "example.com.", dns.TypeA, 0)
	set := kresolved.NewRRSet([]dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}}})

	txn := store.Begin()
	txn.Put(key, set, 300*time.Second, kresolved.RankSecure, kresolved.Secure)
	txn.Commit()

	// A later, lower-ranked write for the same key must not downgrade it.
	txn2 := store.Begin()
	txn2.Put(key, set, 300*time.Second, kresolved.RankInsecure, kresolved.Insecure)
	txn2.Commit()

	txn3 := store.Begin()
	e, ok := txn3.Get(key)
	if !ok || e.Rank != kresolved.RankSecure {
		t.Fatalf("expected SECURE rank preserved, got %+v ok=%v", e, ok)
	}
}

func TestBuildKeyRejectsInvalidOwner(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	_, err := BuildKey(dns.ClassINET, string(long)+".com.", dns.TypeA, 0)
	if err == nil {
		t.Fatal("expected error for invalid owner name")
	}
}
