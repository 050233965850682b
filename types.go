package kresolved

import (
	"time"

	"github.com/miekg/dns"
)

// SecurityState is the per-query DNSSEC state machine from RFC 4035 §4.3.
// Transitions are monotonic: INDETERMINATE may move to any state, but once
// SECURE/INSECURE/BOGUS is reached it is terminal for that query.
type SecurityState int

const (
	Indeterminate SecurityState = iota
	Insecure
	Secure
	Bogus
)

func (s SecurityState) String() string {
	switch s {
	case Insecure:
		return "INSECURE"
	case Secure:
		return "SECURE"
	case Bogus:
		return "BOGUS"
	default:
		return "INDETERMINATE"
	}
}

// CanTransition reports whether moving from s to next is legal under the
// monotonic security-state machine: INDETERMINATE may move anywhere, BOGUS
// is terminal, and any other state may only repeat itself.
func (s SecurityState) CanTransition(next SecurityState) bool {
	if s == Indeterminate {
		return true
	}
	if s == Bogus {
		return false // terminal
	}
	return s == next
}

// Rank totally orders accumulator entries; a higher rank always replaces a
// lower one for the same RR-set identity.
type Rank int

const (
	RankInitial Rank = iota
	RankOmit
	RankTry
	RankInsecure
	RankSecure
	RankBogus
	RankMismatch
)

func (r Rank) String() string {
	switch r {
	case RankOmit:
		return "OMIT"
	case RankTry:
		return "TRY"
	case RankInsecure:
		return "INSECURE"
	case RankSecure:
		return "SECURE"
	case RankBogus:
		return "BOGUS"
	case RankMismatch:
		return "MISMATCH"
	default:
		return "INITIAL"
	}
}

// Question identifies a query by owner/type/class, mirroring dns.Question
// but decoupled from the wire library so the plan and accumulator packages
// don't need to import miekg/dns just for this triple.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

func (q Question) dnsQuestion() dns.Question {
	return dns.Question{Name: dns.Fqdn(q.Name), Qtype: q.Type, Qclass: q.Class}
}

// QuestionFromDNS builds a Question from a dns.Question.
func QuestionFromDNS(q dns.Question) Question {
	return Question{Name: q.Name, Type: q.Qtype, Class: q.Qclass}
}

// RRSetKey identifies an RR set by (owner, class, type[, covered type]).
// The covered-type discriminator only matters for RRSIG sets.
type RRSetKey struct {
	Owner       string
	Class       uint16
	Type        uint16
	CoveredType uint16 // only meaningful when Type == dns.TypeRRSIG
}

// RRSet groups RRs sharing (owner, class, type); TTL is the minimum across
// members per RFC 2181 §5.2.
type RRSet struct {
	Key     RRSetKey
	Records []dns.RR
	TTL     uint32
}

// NewRRSet builds an RRSet from records sharing an owner/class/type,
// deep-copying the rdata so the accumulator and cache never alias the
// packet's buffer after the I/O loop reuses it.
func NewRRSet(records []dns.RR) *RRSet {
	if len(records) == 0 {
		return nil
	}
	hdr := records[0].Header()
	key := RRSetKey{Owner: canonicalOwner(hdr.Name), Class: hdr.Class, Type: hdr.Rrtype}
	if hdr.Rrtype == dns.TypeRRSIG {
		if sig, ok := records[0].(*dns.RRSIG); ok {
			key.CoveredType = sig.TypeCovered
		}
	}
	set := &RRSet{Key: key, TTL: hdr.Ttl}
	for _, r := range records {
		set.Records = append(set.Records, dns.Copy(r))
		if r.Header().Ttl < set.TTL {
			set.TTL = r.Header().Ttl
		}
	}
	return set
}

func canonicalOwner(owner string) string {
	n, err := ParseName(owner)
	if err != nil {
		return owner
	}
	return n.Canonical()
}

// Nameserver describes an upstream authoritative server reachable for a
// delegation.
type Nameserver struct {
	Name string
	Addr string
	Zone string
}

// Query is a single pending resolution step in the Plan (C5). UID/ParentUID
// link it into the plan's child->parent DAG; Generation counts CNAME-chase
// hops from the original query (each chased sub-query gets its parent's
// Generation plus one).
type Query struct {
	UID        uint64
	ParentUID  uint64
	Question   Question
	Flags      QueryFlags
	ZoneCut    string
	TrustPoint string
	Created    time.Time
	RetryLeft  int
	Generation uint32
}

// QueryFlags carries boolean state that would otherwise be a pile of bool
// parameters threaded through the iterator.
type QueryFlags struct {
	WantDNSSEC bool
	CheckingDisabled bool
	TCPOnly    bool
}

// Answer is the assembled result of a single iterative lookup (one Query),
// before it's folded into the accumulator.
type Answer struct {
	Answer, Authority, Additional []dns.RR
	Rcode                         int
	Security                      SecurityState
}

// Result is the final, user-visible outcome of a client request.
type Result struct {
	Msg      *dns.Msg
	Rcode    int
	Security SecurityState
	// ExtendedError holds an EDNS extended-error code/text when non-empty,
	// e.g. "DNSSEC bogus" on a CRYPTO_BOGUS SERVFAIL.
	ExtendedError string
}
