package dnssec

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
)

var (
	ErrNSECTypeExists      = kresolved.New(kresolved.CryptoBogus, "NSEC/NSEC3 record shows question type exists")
	ErrNSECMultipleCover   = kresolved.New(kresolved.CryptoBogus, "multiple NSEC/NSEC3 records cover the same name")
	ErrNSECMissingCoverage = kresolved.New(kresolved.CryptoBogus, "no NSEC/NSEC3 record covers the expected encloser")
	ErrNSECBadDelegation   = kresolved.New(kresolved.CryptoBogus, "DS or SOA bit set in delegation NSEC/NSEC3 type map")
	ErrNSECNSMissing       = kresolved.New(kresolved.CryptoBogus, "NS bit not set in delegation NSEC/NSEC3 type map")
)

func asDenialer(rr dns.RR) (dns.Denialer, bool) {
	switch r := rr.(type) {
	case *dns.NSEC:
		return r, true
	case *dns.NSEC3:
		return r, true
	default:
		return nil, false
	}
}

func typeBitmap(rr dns.RR) []uint16 {
	switch r := rr.(type) {
	case *dns.NSEC:
		return r.TypeBitMap
	case *dns.NSEC3:
		return r.TypeBitMap
	default:
		return nil
	}
}

func typesSet(set []uint16, types ...uint16) bool {
	want := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	for _, t := range set {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}

// findClosestEncloser implements RFC 5155 §8.3: walk name's label chain
// from the full name up to the root, returning the closest enclosing name
// covered/matched by nsec and the "next closer" name one label below it.
func findClosestEncloser(name string, nsec []dns.RR) (closest, nextCloser string) {
	n, err := kresolved.ParseName(name)
	if err != nil {
		return "", ""
	}
	labels := n.Labels()
	for i := 0; i < len(labels); i++ {
		candidate := suffixName(labels[i:])
		for _, rr := range nsec {
			d, ok := asDenialer(rr)
			if !ok {
				continue
			}
			if d.Match(candidate) {
				if i == 0 {
					return candidate, name
				}
				return candidate, suffixName(labels[i-1:])
			}
		}
	}
	return "", ""
}

func suffixName(labels []string) string {
	if len(labels) == 0 {
		return "."
	}
	return strings.Join(labels, ".") + "."
}

func findMatching(name string, nsec []dns.RR) ([]uint16, error) {
	var found []uint16
	matched := false
	for _, rr := range nsec {
		d, ok := asDenialer(rr)
		if !ok {
			continue
		}
		if d.Match(name) {
			if matched {
				return nil, ErrNSECMultipleCover
			}
			matched = true
			found = typeBitmap(rr)
		}
	}
	if !matched {
		return nil, ErrNSECMissingCoverage
	}
	return found, nil
}

func findCoverer(name string, nsec []dns.RR) ([]uint16, error) {
	var found []uint16
	matched := false
	for _, rr := range nsec {
		d, ok := asDenialer(rr)
		if !ok {
			continue
		}
		if d.Cover(name) {
			if matched {
				return nil, ErrNSECMultipleCover
			}
			matched = true
			found = typeBitmap(rr)
		}
	}
	if !matched {
		return nil, ErrNSECMissingCoverage
	}
	return found, nil
}

// VerifyNameError implements RFC 5155 §8.4: an NXDOMAIN response must prove
// the closest encloser exists, that the name itself doesn't match any
// NSEC/NSEC3 owner, and that the wildcard immediately below the closest
// encloser is covered (denying a wildcard match too).
func VerifyNameError(qname string, nsec []dns.RR) error {
	ce, _ := findClosestEncloser(qname, nsec)
	if ce == "" {
		return ErrNSECMissingCoverage
	}
	if _, err := findCoverer(qname, nsec); err != nil {
		return err
	}
	if _, err := findCoverer(fmt.Sprintf("*.%s", ce), nsec); err != nil {
		return err
	}
	return nil
}

// VerifyNODATA implements RFC 5155 §8.5-8.7: a NOERROR/empty-answer
// response must either show the exact owner exists but lacks the queried
// type (and CNAME), or — for a DS query specifically — prove the name
// doesn't exist as a delegation point at all (§8.6), or — for a wildcard
// query — that the synthesizing wildcard itself lacks the type (§8.7).
func VerifyNODATA(qname string, qtype uint16, nsec []dns.RR) error {
	types, err := findMatching(qname, nsec)
	if err == nil {
		if typesSet(types, qtype, dns.TypeCNAME) {
			return ErrNSECTypeExists
		}
		if strings.HasPrefix(qname, "*.") {
			ce, _ := findClosestEncloser(qname, nsec)
			if ce == "" {
				return ErrNSECMissingCoverage
			}
			wTypes, err := findMatching(fmt.Sprintf("*.%s", ce), nsec)
			if err != nil {
				return err
			}
			if typesSet(wTypes, qtype, dns.TypeCNAME) {
				return ErrNSECTypeExists
			}
		}
		return nil
	}

	if qtype != dns.TypeDS {
		return err
	}

	ce, nextCloser := findClosestEncloser(qname, nsec)
	if ce == "" {
		return ErrNSECMissingCoverage
	}
	if _, err := findCoverer(nextCloser, nsec); err != nil {
		return err
	}
	return nil
}

// VerifyDelegation implements RFC 5155 §8.9: a referral's NSEC/NSEC3
// coverage must either match the delegation owner exactly (showing NS set
// but not DS/SOA — i.e. a genuinely insecure delegation), or cover the
// name's next-closer encloser (an opt-out span).
func VerifyDelegation(delegation string, nsec []dns.RR) error {
	types, err := findMatching(delegation, nsec)
	if err != nil {
		ce, nextCloser := findClosestEncloser(delegation, nsec)
		if ce == "" {
			return ErrNSECMissingCoverage
		}
		if _, err := findCoverer(nextCloser, nsec); err != nil {
			return err
		}
		return nil
	}
	if !typesSet(types, dns.TypeNS) {
		return ErrNSECNSMissing
	}
	if typesSet(types, dns.TypeDS, dns.TypeSOA) {
		return ErrNSECBadDelegation
	}
	return nil
}

// verifyWildcardNSEC implements RFC 5155 §8.8 (NSEC variant): the
// authority section must cover owner to prove no exact, non-wildcard match
// exists below the closest encloser.
func verifyWildcardNSEC(owner string, authority []dns.RR) error {
	nsec := kresolved.ExtractRRSet(authority, "", dns.TypeNSEC)
	if len(nsec) == 0 {
		return ErrNSECMissingCoverage
	}
	if _, err := findCoverer(owner, nsec); err != nil {
		return err
	}
	return nil
}

// verifyWildcardNSEC3 implements RFC 5155 §8.8 (NSEC3 variant): the
// authority section must contain an NSEC3 that covers the name formed by
// stripping trim labels from owner (the next closer name, one label below
// the closest encloser), proving no closer match exists. Callers pass the
// RRSIG label difference minus one as trim.
func verifyWildcardNSEC3(owner string, trim int, authority []dns.RR) error {
	nsec3 := kresolved.ExtractRRSet(authority, "", dns.TypeNSEC3)
	if len(nsec3) == 0 {
		return ErrNSECMissingCoverage
	}
	n, err := kresolved.ParseName(owner)
	if err != nil {
		return kresolved.Wrap(kresolved.InvalidArgument, err, "bad wildcard owner")
	}
	labels := n.Labels()
	if trim < 0 {
		trim = 0
	}
	if trim > len(labels) {
		trim = len(labels)
	}
	closest := suffixName(labels[trim:])
	if _, err := findCoverer(closest, nsec3); err != nil {
		return err
	}
	return nil
}

// ProvenInsecureDelegation reports whether authority proves the parent has
// no DS record for cut (RFC 4035 §5.2): an NSEC/NSEC3 denial of the DS
// type at the delegation point. The caller is responsible for only trusting
// this when the parent zone itself is SECURE, per the usual trust-chain
// break rule.
func ProvenInsecureDelegation(cut string, authority []dns.RR) bool {
	nsec := kresolved.ExtractRRSet(authority, "", dns.TypeNSEC, dns.TypeNSEC3)
	if len(nsec) == 0 {
		return false
	}
	return VerifyDelegation(cut, nsec) == nil
}
