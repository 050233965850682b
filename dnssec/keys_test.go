package dnssec

import (
	"testing"

	"github.com/miekg/dns"
)

func TestIsZoneKeySEPRevoked(t *testing.T) {
	zsk := &dns.DNSKEY{Flags: dns.ZONE}
	ksk := &dns.DNSKEY{Flags: dns.ZONE | dns.SEP}
	revoked := &dns.DNSKEY{Flags: dns.ZONE | dns.REVOKE}

	if !IsZoneKey(zsk) || IsSEP(zsk) || IsRevoked(zsk) {
		t.Fatal("plain ZSK flags misclassified")
	}
	if !IsZoneKey(ksk) || !IsSEP(ksk) {
		t.Fatal("KSK flags misclassified")
	}
	if !IsRevoked(revoked) {
		t.Fatal("revoked flag not detected")
	}
}

func TestMatchesTrustAnchorDS(t *testing.T) {
	key := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: "example.", Rrtype: dns.TypeDNSKEY, Class: dns.ClassINET},
		Flags:     dns.ZONE | dns.SEP,
		Protocol:  3,
		Algorithm: dns.RSASHA256,
	}
	if _, err := key.Generate(512); err != nil {
		t.Fatalf("key generation failed: %s", err)
	}
	ds := key.ToDS(dns.SHA256)
	if !MatchesTrustAnchor(key, []dns.RR{ds}) {
		t.Fatal("expected key to match its own derived DS")
	}

	other := &dns.DS{KeyTag: ds.KeyTag + 1, DigestType: ds.DigestType, Digest: ds.Digest}
	if MatchesTrustAnchor(key, []dns.RR{other}) {
		t.Fatal("expected mismatched key tag to fail")
	}
}

func TestMatchesTrustAnchorDirectDNSKEY(t *testing.T) {
	key := &dns.DNSKEY{Flags: dns.ZONE, Protocol: 3, Algorithm: dns.RSASHA256, PublicKey: "abc"}
	same := &dns.DNSKEY{Flags: dns.ZONE, Protocol: 3, Algorithm: dns.RSASHA256, PublicKey: "abc"}
	different := &dns.DNSKEY{Flags: dns.ZONE, Protocol: 3, Algorithm: dns.RSASHA256, PublicKey: "xyz"}

	if !MatchesTrustAnchor(key, []dns.RR{same}) {
		t.Fatal("expected identical DNSKEY trust anchor to match")
	}
	if MatchesTrustAnchor(key, []dns.RR{different}) {
		t.Fatal("expected different key material to fail")
	}
}
