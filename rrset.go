package kresolved

import (
	"strings"

	"github.com/miekg/dns"
)

// ExtractRRSet filters in for records of any of the given types, optionally
// restricted to a single owner name (name == "" matches any owner). This is
// the generalized form of solvere's extractRRSet/extractAndMapRRSet
// helpers, used throughout the iterator and validator.
func ExtractRRSet(in []dns.RR, name string, types ...uint16) []dns.RR {
	tset := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		tset[t] = struct{}{}
	}
	out := make([]dns.RR, 0, len(in))
	for _, r := range in {
		if _, ok := tset[r.Header().Rrtype]; !ok {
			continue
		}
		if name != "" && !strings.EqualFold(dns.Fqdn(name), dns.Fqdn(r.Header().Name)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ExtractByType buckets in by Rrtype for each of types, always returning a
// (possibly empty) slice per requested type so callers can range without
// nil checks.
func ExtractByType(in []dns.RR, name string, types ...uint16) map[uint16][]dns.RR {
	out := make(map[uint16][]dns.RR, len(types))
	for _, t := range types {
		out[t] = ExtractRRSet(in, name, t)
	}
	return out
}

// ContainsType reports whether set has any record of type t.
func ContainsType(set []dns.RR, t uint16) bool {
	for _, r := range set {
		if r.Header().Rrtype == t {
			return true
		}
	}
	return false
}

// AllOfType reports whether every record in set is of type t (vacuously
// true for an empty set, matching solvere's allOfType helper).
func AllOfType(set []dns.RR, t uint16) bool {
	for _, r := range set {
		if r.Header().Rrtype != t {
			return false
		}
	}
	return true
}

// MinTTL returns the minimum TTL across records, additionally clamping
// against any RRSIG expiration so a cached answer never outlives its
// signature. now (Unix seconds) is supplied explicitly rather than
// calling time.Now so callers stay testable with clock.Fake.
func MinTTL(records []dns.RR, now int64) uint32 {
	var min *uint32
	for _, r := range records {
		ttl := r.Header().Ttl
		if min == nil || ttl < *min {
			t := ttl
			min = &t
		}
		if sig, ok := r.(*dns.RRSIG); ok {
			if exp := sigExpirySeconds(sig, now); exp >= 0 && uint32(exp) < *min {
				e := uint32(exp)
				min = &e
			}
		}
	}
	if min == nil {
		return 0
	}
	return *min
}

// year68 is the RRSIG 1-bit-rollover constant from RFC 2065 / miekg/dns.
const year68 = int64(1) << 31

// sigExpirySeconds returns how many seconds from now until sig's expiration,
// accounting for the 32-bit serial rollover the same way RRSIG.ValidityPeriod
// does, or -1 if already expired.
func sigExpirySeconds(sig *dns.RRSIG, now int64) int64 {
	mod := (int64(sig.Expiration) - now) / year68
	t := int64(sig.Expiration) + mod*year68
	expiresIn := t - now
	if expiresIn < 0 {
		return -1
	}
	return expiresIn
}
