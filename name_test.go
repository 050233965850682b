package kresolved

import (
	"testing"

	"github.com/miekg/dns"
)

func TestParseNameRejectsOversizedLabel(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	_, err := ParseName(string(long) + ".com.")
	if err == nil {
		t.Fatal("expected error for oversized label")
	}
	if kind, _ := KindOf(err); kind != InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %s", kind)
	}
}

func TestNameLabelCountWildcard(t *testing.T) {
	n := MustParseName("*.example.com.")
	if got := n.LabelCount(); got != 2 {
		t.Fatalf("expected wildcard label not counted: got %d", got)
	}
	n2 := MustParseName("example.com.")
	if got := n2.LabelCount(); got != 2 {
		t.Fatalf("expected 2 labels, got %d", got)
	}
}

func TestNameEqualCaseInsensitive(t *testing.T) {
	a := MustParseName("Example.COM.")
	b := MustParseName("example.com.")
	if !Equal(a, b) {
		t.Fatal("expected case-insensitive equality")
	}
}

func TestCompareCanonicalOrdering(t *testing.T) {
	// RFC 4034 6.1 example ordering (subset): a.example < yljkjljk.a.example < Z.a.example
	names := []string{"example.", "a.example.", "yljkjljk.a.example.", "Z.a.example.", "zABC.a.EXAMPLE.", "z.example.", "\\001.z.example.", "*.z.example."}
	for i := 0; i < len(names)-1; i++ {
		a := MustParseName(names[i])
		b := MustParseName(names[i+1])
		if Compare(a, b) > 0 {
			t.Fatalf("expected %s <= %s in canonical order", names[i], names[i+1])
		}
	}
}

func TestLFRoundTrip(t *testing.T) {
	for _, s := range []string{"example.com.", "www.example.com.", "a.b.c.example."} {
		n := MustParseName(s)
		lf := n.LF()
		wire, err := LF2Wire(lf)
		if err != nil {
			t.Fatalf("LF2Wire(%s) failed: %s", s, err)
		}
		// re-decode wire into labels and compare against original, ignoring case
		off := 0
		var got []string
		for off < len(wire) {
			l := int(wire[off])
			if l == 0 {
				break
			}
			off++
			got = append(got, string(wire[off:off+l]))
			off += l
		}
		want := n.Labels()
		if len(got) != len(want) {
			t.Fatalf("round trip label count mismatch for %s: got %v want %v", s, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("round trip label mismatch for %s at %d: got %v want %v", s, i, got, want)
			}
		}
	}
}

func TestLF2WireRejectsBadLabelLength(t *testing.T) {
	bad := make([]byte, 64)
	for i := range bad {
		bad[i] = 'a'
	}
	_, err := LF2Wire(bad)
	if err == nil {
		t.Fatal("expected error for oversized LF label")
	}
}

func TestMinTTL(t *testing.T) {
	records := []dns.RR{
		&dns.A{Hdr: dns.RR_Header{Ttl: 300}},
		&dns.A{Hdr: dns.RR_Header{Ttl: 60}},
		&dns.A{Hdr: dns.RR_Header{Ttl: 120}},
	}
	if got := MinTTL(records, 1000); got != 60 {
		t.Fatalf("expected min ttl 60, got %d", got)
	}
	if got := MinTTL(nil, 1000); got != 0 {
		t.Fatalf("expected 0 for empty set, got %d", got)
	}
}
