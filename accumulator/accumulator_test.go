package accumulator

import (
	"testing"

	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
)

func aRecord(name string, ip string) dns.RR {
	return &dns.A{Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}}
}

func TestAddMergesAndRaisesRank(t *testing.T) {
	acc := New()
	set1 := kresolved.NewRRSet([]dns.RR{aRecord("example.com.", "1.2.3.4")})
	e := acc.Add(set1, kresolved.RankTry, true, 1)
	if e.Rank != kresolved.RankTry {
		t.Fatalf("expected RankTry, got %s", e.Rank)
	}

	set2 := kresolved.NewRRSet([]dns.RR{aRecord("example.com.", "1.2.3.4")})
	e2 := acc.Add(set2, kresolved.RankSecure, true, 1)
	if e2 != e {
		t.Fatal("expected merge into same entry for same query UID")
	}
	if e2.Rank != kresolved.RankSecure {
		t.Fatalf("expected rank raised to SECURE, got %s", e2.Rank)
	}

	// A lower rank must never pull it back down.
	acc.Add(set1, kresolved.RankTry, true, 1)
	if e.Rank != kresolved.RankSecure {
		t.Fatal("rank must be monotonic, never lowered")
	}
}

func TestToWireUniquenessAcrossQueries(t *testing.T) {
	acc := New()
	set := kresolved.NewRRSet([]dns.RR{aRecord("example.com.", "1.2.3.4")})

	e1 := acc.Add(set, kresolved.RankTry, true, 1)
	if !e1.ToWire {
		t.Fatal("expected first entry to be to-wire")
	}

	// A second query resolving the same rrset-identity should claim
	// to-wire and evict the first.
	e2 := acc.Add(set, kresolved.RankSecure, true, 2)
	if e1.ToWire {
		t.Fatal("expected first entry's ToWire to be cleared")
	}
	if !e2.ToWire {
		t.Fatal("expected second entry to be to-wire")
	}

	if !AssertUniqueToWire(acc.Entries()) {
		t.Fatal("to-wire uniqueness invariant violated")
	}
}

func TestSetWireBulkToggle(t *testing.T) {
	acc := New()
	setA := kresolved.NewRRSet([]dns.RR{aRecord("a.example.com.", "1.1.1.1")})
	setB := kresolved.NewRRSet([]dns.RR{aRecord("b.example.com.", "2.2.2.2")})
	acc.Add(setA, kresolved.RankTry, false, 7)
	acc.Add(setB, kresolved.RankTry, false, 7)

	acc.SetWire(7, true, false, nil)
	wire := acc.ToWire()
	if len(wire) != 2 {
		t.Fatalf("expected both entries to-wire, got %d", len(wire))
	}

	acc.SetWire(7, false, false, func(e *Entry) bool {
		return kresolved.Equal(kresolved.MustParseName("a.example.com."), kresolved.MustParseName(e.Set.Key.Owner))
	})
	wire = acc.ToWire()
	if len(wire) != 1 {
		t.Fatalf("expected only b.example.com. left to-wire, got %d", len(wire))
	}
}
