package dnssec

import "github.com/miekg/dns"

// IsZoneKey reports whether the DNSKEY's ZONE flag is set (RFC 4034 §2.1.1).
// Every usable DNSKEY — ZSK or KSK — carries this bit; ported from
// original_source/lib/dnssec.c:kr_dnssec_key_zsk, which tests the same
// 0x0100 bit exposed here as dns.ZONE.
func IsZoneKey(k *dns.DNSKEY) bool { return k.Flags&dns.ZONE != 0 }

// IsSEP reports whether the Secure Entry Point (KSK) bit is set, mirroring
// kr_dnssec_key_ksk's 0x0001 test (dns.SEP).
func IsSEP(k *dns.DNSKEY) bool { return k.Flags&dns.SEP != 0 }

// IsRevoked reports whether the REVOKE bit (RFC 5011 §2.1) is set,
// mirroring kr_dnssec_key_revoked's 0x0080 test (dns.REVOKE).
func IsRevoked(k *dns.DNSKEY) bool { return k.Flags&dns.REVOKE != 0 }

// MatchesTrustAnchor reports whether key is authenticated by any record in
// ta: a DS record (compared by digest via key.ToDS) or a directly
// configured DNSKEY trust anchor (compared by exact key material).
func MatchesTrustAnchor(key *dns.DNSKEY, ta []dns.RR) bool {
	for _, r := range ta {
		switch anchor := r.(type) {
		case *dns.DS:
			ds := key.ToDS(anchor.DigestType)
			if ds != nil && ds.KeyTag == anchor.KeyTag && ds.Digest == anchor.Digest {
				return true
			}
		case *dns.DNSKEY:
			if key.Flags == anchor.Flags && key.Algorithm == anchor.Algorithm &&
				key.PublicKey == anchor.PublicKey {
				return true
			}
		}
	}
	return false
}

// KeyTag computes a DNSKEY's key tag, matching dnssec_key_get_keytag /
// kr_dnssec_key_tag for KNOT_RRTYPE_DNSKEY. It takes a parsed *dns.DNSKEY
// and returns dns.DNSKEY.KeyTag(), which computes the tag over the key's
// wire rdata.
func KeyTag(k *dns.DNSKEY) uint16 { return k.KeyTag() }
