// Package dnssec implements the validator (C7): per-signature RFC 4035
// §5.3.1 checks, DNSKEY trust-chaining from DS/TA, NSEC/NSEC3 denial
// proofs and wildcard-expansion checks. The per-signature bullet checks
// and the DNSKEY trust-chain walk are ported from
// original_source/lib/dnssec.c (kr_rrset_validate_with_key,
// kr_dnskeys_trusted); NSEC/NSEC3 denial is grounded in solvere's
// nsec.go, extended to the full RFC 5155 §8 set (see nsec.go).
package dnssec

import (
	"time"

	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
)

var (
	ErrNoRRSIG          = kresolved.New(kresolved.NotFound, "no RRSIG covers the given RR set")
	ErrNoUsableKey      = kresolved.New(kresolved.CryptoBogus, "no DNSKEY validated any candidate signature")
	ErrMissingWildcardProof = kresolved.New(kresolved.CryptoBogus, "wildcard-expanded answer missing NSEC/NSEC3 proof")
)

// Section identifies which part of the response a candidate RRSIG/NSEC
// search should consider; it exists so callers can be explicit about
// "answer" vs "authority" the way validate_rrset's signature is.
type Section int

const (
	SectionAnswer Section = iota
	SectionAuthority
)

// ValidationResult carries the bullet-4 bookkeeping callers need to run the
// wildcard proof check.
type ValidationResult struct {
	Verified           bool
	WildcardExpansion  bool
	Trim               int // n - RRSIG.Labels, only meaningful if WildcardExpansion
	SignerName         string
}

// ValidateRRSet implements the validate_rrset entry point: it
// tries every RRSIG covering `covered` against every key in `keys`, RFC
// 4035 §5.3.1 bullets 1-7, a canonical-form signature check (bullet 8), and
// — when bullet 4 detects wildcard expansion — the NSEC/NSEC3 proof in
// authority that no closer match exists.
func ValidateRRSet(covered *kresolved.RRSet, sigCandidates []dns.RR, keys map[uint16]*dns.DNSKEY, authority []dns.RR, cut string, now time.Time, hasNSEC3 bool) (*ValidationResult, error) {
	ownerName, err := kresolved.ParseName(covered.Key.Owner)
	if err != nil {
		return nil, kresolved.Wrap(kresolved.InvalidArgument, err, "validate rrset: bad owner")
	}
	cutName, err := kresolved.ParseName(cut)
	if err != nil {
		return nil, kresolved.Wrap(kresolved.InvalidArgument, err, "validate rrset: bad zone cut")
	}

	sigs := kresolved.ExtractRRSet(sigCandidates, covered.Key.Owner, dns.TypeRRSIG)
	if len(sigs) == 0 {
		return nil, ErrNoRRSIG
	}

	n := ownerName.LabelCount()
	var lastErr error = ErrNoUsableKey
	for _, sigRR := range sigs {
		sig, ok := sigRR.(*dns.RRSIG)
		if !ok || sig.TypeCovered != covered.Key.Type {
			continue
		}
		// bullet 1: class + owner
		if sig.Header().Class != covered.Key.Class {
			continue
		}
		// bullet 2: signer name equals zone cut
		signerName, err := kresolved.ParseName(sig.SignerName)
		if err != nil || !kresolved.Equal(signerName, cutName) {
			continue
		}
		// bullet 4: label count / wildcard expansion
		trim := n - int(sig.Labels)
		if trim < 0 {
			continue // RRSIG labels > n: reject
		}
		wildcard := trim > 0

		// bullets 5/6: validity period (handles the 32-bit serial rollover
		// the same way the original dns.RRSIG.ValidityPeriod does).
		if !sig.ValidityPeriod(now) {
			lastErr = kresolved.New(kresolved.CryptoBogus, "RRSIG outside its validity period")
			continue
		}

		// bullet 7: key owner == signer, algorithm match, key tag match.
		key, present := keys[sig.KeyTag]
		if !present || key.Algorithm != sig.Algorithm {
			continue
		}
		keyOwner, err := kresolved.ParseName(key.Header().Name)
		if err != nil || !kresolved.Equal(keyOwner, signerName) {
			continue
		}
		if key.KeyTag() != sig.KeyTag {
			continue
		}

		verifySet := covered.Records
		if wildcard {
			synthOwner := wildcardAncestor(ownerName, trim)
			verifySet = reOwn(covered.Records, synthOwner)
			sig = reOwnSig(sig, synthOwner)
		}
		if err := sig.Verify(key, verifySet); err != nil {
			lastErr = kresolved.Wrap(kresolved.CryptoBogus, err, "signature verification failed")
			continue
		}

		if wildcard {
			var proofErr error
			if !hasNSEC3 {
				proofErr = verifyWildcardNSEC(ownerName.String(), authority)
			} else {
				proofErr = verifyWildcardNSEC3(ownerName.String(), trim-1, authority)
			}
			if proofErr != nil {
				lastErr = ErrMissingWildcardProof
				continue
			}
		}

		return &ValidationResult{Verified: true, WildcardExpansion: wildcard, Trim: trim, SignerName: sig.SignerName}, nil
	}
	return &ValidationResult{Verified: false}, lastErr
}

// wildcardAncestor returns "*." followed by the last (len(labels)-trim)
// labels of owner — the closest-encloser wildcard name RFC 4035 §5.3.2
// requires reconstructing before verifying a wildcard-expanded signature.
func wildcardAncestor(owner kresolved.Name, trim int) string {
	labels := owner.Labels()
	if trim > len(labels) {
		trim = len(labels)
	}
	kept := labels[trim:]
	out := "*."
	for _, l := range kept {
		out += l + "."
	}
	return out
}

func reOwn(records []dns.RR, owner string) []dns.RR {
	out := make([]dns.RR, len(records))
	for i, r := range records {
		c := dns.Copy(r)
		c.Header().Name = owner
		out[i] = c
	}
	return out
}

func reOwnSig(sig *dns.RRSIG, owner string) *dns.RRSIG {
	c := dns.Copy(sig).(*dns.RRSIG)
	c.Hdr.Name = owner
	return c
}

// DNSKeysTrusted implements the dnskeys_trusted entry point: a
// DNSKEY set is trusted when some key in it is a zone key, not revoked,
// matches a validated DS (or configured TA), and self-signs the DNSKEY RR
// set. Ported from kr_dnskeys_trusted.
func DNSKeysTrusted(keySet *kresolved.RRSet, sigCandidates []dns.RR, ta []dns.RR, authority []dns.RR, cut string, now time.Time, hasNSEC3 bool) kresolved.SecurityState {
	keyMap := make(map[uint16]*dns.DNSKEY)
	for _, r := range keySet.Records {
		if k, ok := r.(*dns.DNSKEY); ok {
			keyMap[k.KeyTag()] = k
		}
	}
	for _, k := range keyMap {
		if !IsZoneKey(k) || IsRevoked(k) {
			continue
		}
		if !MatchesTrustAnchor(k, ta) {
			continue
		}
		res, err := ValidateRRSet(keySet, sigCandidates, map[uint16]*dns.DNSKEY{k.KeyTag(): k}, authority, cut, now, hasNSEC3)
		if err == nil && res.Verified {
			return kresolved.Secure
		}
	}
	return kresolved.Bogus
}
