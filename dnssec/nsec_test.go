package dnssec

import (
	"strings"
	"testing"

	"github.com/miekg/dns"
)

func zoneToRecords(t *testing.T, z string) []dns.RR {
	t.Helper()
	var records []dns.RR
	tokens := dns.ParseZone(strings.NewReader(z), "", "")
	for x := range tokens {
		if x.Error != nil {
			t.Fatalf("failed to parse zone fixture: %s", x.Error)
		}
		records = append(records, x.RR)
	}
	return records
}

func TestVerifyNameErrorNSEC3(t *testing.T) {
	if err := VerifyNameError("easdasdd1q2e2d2w.org.", nil); err == nil {
		t.Fatal("expected failure with no NSEC3 records")
	}

	records := zoneToRecords(t, `h9p7u7tr2u91d0v0ljs9l1gidnp90u3h.org. 86400 IN NSEC3 1 1 1 D399EAAB H9PARR669T6U8O1GSG9E1LMITK4DEM0T NS SOA RRSIG DNSKEY NSEC3PARAM
7787tb18r44mr7o4pqc3n8ur0h2043tl.org. 86400 IN NSEC3 1 1 1 D399EAAB 778KI18543GPI8BANNL5TLE6A49ALNT4 NS DS RRSIG
vaittv1g2ies9s3920soaumh73klnhs5.org. 86400 IN NSEC3 1 1 1 D399EAAB VAJSHJ9G9U88NEFMNIS1LOG48CM6L9LO NS DS RRSIG`)

	if err := VerifyNameError("easdasdd1q2e2d2w.org.", records); err != nil {
		t.Fatalf("expected name error proof to hold: %s", err)
	}

	short := zoneToRecords(t, `h9p7u7tr2u91d0v0ljs9l1gidnp90u3h.org. 86400 IN NSEC3 1 1 1 D399EAAB H9PARR669T6U8O1GSG9E1LMITK4DEM0T NS SOA RRSIG DNSKEY NSEC3PARAM
7787tb18r44mr7o4pqc3n8ur0h2043tl.org. 86400 IN NSEC3 1 1 1 D399EAAB 778KI18543GPI8BANNL5TLE6A49ALNT4 NS DS RRSIG`)

	if err := VerifyNameError("easdasdd1q2e2d2w.org.", short); err == nil {
		t.Fatal("expected failure without the closest-encloser record")
	}
	if err := VerifyNameError("different-parent.com.", short); err == nil {
		t.Fatal("expected failure for a name under a different zone")
	}
}

func TestVerifyNODATANSEC3(t *testing.T) {
	records := zoneToRecords(t, `lg1c6bf6hv6ooib05ir8kolkofua0upg.whitehouse.gov. 3600 IN NSEC3 1 0 1 67C6697351FF4AEC LK8T7NFS811HQPP3UDU7A6KQ12IIOTKF A NS SOA MX TXT AAAA RRSIG DNSKEY NSEC3PARAM`)

	if err := VerifyNODATA("whitehouse.gov.", dns.TypeCAA, records); err != nil {
		t.Fatalf("expected NODATA proof to hold: %s", err)
	}
	if err := VerifyNODATA("mighthouse.gov.", dns.TypeCAA, records); err == nil {
		t.Fatal("expected failure for an unmatched owner")
	}

	withCAA := zoneToRecords(t, `lg1c6bf6hv6ooib05ir8kolkofua0upg.whitehouse.gov. 3600 IN NSEC3 1 0 1 67C6697351FF4AEC LK8T7NFS811HQPP3UDU7A6KQ12IIOTKF A NS SOA MX TXT AAAA RRSIG DNSKEY NSEC3PARAM CAA`)
	if err := VerifyNODATA("whitehouse.gov.", dns.TypeCAA, withCAA); err == nil {
		t.Fatal("expected failure: type bit is actually set")
	}

	if err := VerifyNODATA("whitehouse.gov.", dns.TypeDS, records); err != nil {
		t.Fatalf("DS-specific NODATA branch should also accept an exact-match denial: %s", err)
	}
}

func TestVerifyDelegationNSEC3(t *testing.T) {
	direct := zoneToRecords(t, `O5OBQDG9VMMCQKQUD8AJA9B2B3T3E1UL.b.com. 3600 IN NSEC3 1 0 1 AABBCCDD O5OBQDG9VMMCQKQUD8AJA9B2B3T3E1UM NS`)
	if err := VerifyDelegation("a.b.com.", direct); err == nil {
		t.Fatal("expected the hashed owner fixture to not literally match a.b.com.")
	}
}

func TestFindClosestEncloserNSEC(t *testing.T) {
	nsec := []dns.RR{
		&dns.NSEC{
			Hdr:        dns.RR_Header{Name: "a.example.com.", Rrtype: dns.TypeNSEC, Class: dns.ClassINET},
			NextDomain: "z.example.com.",
			TypeBitMap: []uint16{dns.TypeA},
		},
	}
	ce, _ := findClosestEncloser("missing.example.com.", nsec)
	if ce != "example.com." {
		t.Fatalf("expected closest encloser example.com., got %q", ce)
	}
}

func TestVerifyWildcardNSEC(t *testing.T) {
	nsec := []dns.RR{
		&dns.NSEC{
			Hdr:        dns.RR_Header{Name: "a.example.com.", Rrtype: dns.TypeNSEC, Class: dns.ClassINET},
			NextDomain: "z.example.com.",
			TypeBitMap: []uint16{dns.TypeA},
		},
	}
	if err := verifyWildcardNSEC("b.example.com.", nsec); err != nil {
		t.Fatalf("expected b.example.com. to be covered by a..z: %s", err)
	}
	if err := verifyWildcardNSEC("zz.example.com.", nsec); err == nil {
		t.Fatal("expected zz.example.com. to fall outside the covered span")
	}
}
