package resolver

import (
	"context"
	"time"

	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
	"github.com/dnscore/kresolved/accumulator"
	"github.com/dnscore/kresolved/cache"
	"github.com/dnscore/kresolved/delegation"
	"github.com/dnscore/kresolved/plan"
)

// SignalKind is the step function's outcome under a cooperative
// control-flow model: the core never blocks, it returns a signal and lets
// the driver decide what to do next.
type SignalKind int

const (
	SignalNext SignalKind = iota
	SignalMoreWork
	SignalDone
	SignalFail
)

// Signal is what Iterator.Step returns for one query.
type Signal struct {
	Kind   SignalKind
	Answer *kresolved.Answer
}

// DefaultMaxReferrals is the default for Iterator.MaxReferrals, matching
// solvere's MaxReferrals. Step does not count referral hops against it; a
// request that keeps being referred ends when the driver's DefaultMaxSteps
// budget runs out.
const DefaultMaxReferrals = 10

// DefaultMaxCNAMEChain bounds CNAME chase depth, measured as plan depth.
// DNAME records are not chased.
const DefaultMaxCNAMEChain = 12

// Iterator implements C6: given the topmost pending query, find its zone
// cut, select a nameserver, issue the query, and derive follow-up
// sub-queries (DS/DNSKEY prerequisites, CNAME chases, referrals).
type Iterator struct {
	Transport    Transport
	Delegations  *delegation.Map
	RootHints    []kresolved.Nameserver
	MaxReferrals int
	MaxRetries   int
}

// NewIterator returns an Iterator with the default referral/retry bounds.
func NewIterator(t Transport, delegations *delegation.Map, rootHints []kresolved.Nameserver) *Iterator {
	return &Iterator{
		Transport:    t,
		Delegations:  delegations,
		RootHints:    rootHints,
		MaxReferrals: DefaultMaxReferrals,
		MaxRetries:   3,
	}
}

func (it *Iterator) installRootHints() *delegation.Delegation {
	d := it.Delegations.GetOrCreate(".")
	if len(d.NSNames) > 0 {
		return d
	}
	for _, ns := range it.RootHints {
		d.NSNames = append(d.NSNames, ns.Name)
		d.Addrs[ns.Name] = append(d.Addrs[ns.Name], ns.Addr)
	}
	it.Delegations.Insert(d)
	return d
}

// Step advances q by one suspension point: one outbound query or one
// referral/sub-query decision. The plan/accumulator/cache-transaction are
// the request's coherent snapshot the driver threads through.
func (it *Iterator) Step(ctx context.Context, rc *kresolved.ResolutionContext, pl *plan.Plan, acc *accumulator.Accumulator, txn *cache.Txn, q *kresolved.Query) (Signal, error) {
	// Step 1: zone cut. Longest match in the delegation map, falling back
	// to root hints when nothing narrower is known yet.
	d, ok := it.Delegations.Lookup(q.Question.Name)
	if !ok {
		d = it.installRootHints()
	}
	q.ZoneCut = d.Cut

	// Step 2: DNSSEC prerequisite. If the caller wants DNSSEC and this cut's
	// key material hasn't been validated or proven insecure yet, push a
	// DNSKEY fetch above the current query and let the driver re-enter with
	// that on top first.
	if q.Flags.WantDNSSEC && d.Secure == kresolved.Indeterminate && !d.ProvenInsecure && q.Question.Type != dns.TypeDNSKEY {
		sub := &kresolved.Query{
			ParentUID: q.UID,
			Question:  kresolved.Question{Name: d.Cut, Type: dns.TypeDNSKEY, Class: q.Question.Class},
			Flags:     q.Flags,
			ZoneCut:   d.Cut,
			Created:   rc.Clock.Now(),
			RetryLeft: it.MaxRetries,
		}
		if err := pl.Push(sub); err != nil {
			return Signal{Kind: SignalFail}, err
		}
		return Signal{Kind: SignalMoreWork}, nil
	}

	// Step 3: select an NS and issue the query.
	excluded := map[string]bool{}
	nsName, addr, ok := it.Delegations.SelectNS(d, excluded, rc.Rand)
	if !ok {
		return Signal{Kind: SignalFail}, kresolved.New(kresolved.NoResources, "no usable nameserver for zone cut")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(q.Question.Name), q.Question.Type)
	msg.Question[0].Qclass = q.Question.Class
	msg.SetEdns0(4096, q.Flags.WantDNSSEC)
	msg.CheckingDisabled = q.Flags.CheckingDisabled

	start := rc.Clock.Now()
	r, rtt, err := it.Transport.Exchange(ctx, msg, addr, q.Flags.TCPOnly)
	rc.Metrics.ObserveLookupLatency(time.Since(start).Seconds())
	if err != nil {
		it.Delegations.PenalizeNS(d.Cut, nsName)
		rc.Metrics.IncNSFailure(nsName)
		if q.RetryLeft > 0 {
			q.RetryLeft--
			return Signal{Kind: SignalNext}, nil
		}
		return Signal{Kind: SignalFail}, kresolved.Wrap(kresolved.Timeout, err, "exchange failed after retry budget exhausted")
	}
	it.Delegations.RewardNS(d.Cut, nsName, rtt)
	rc.Metrics.ObserveRTT(nsName, rtt.Seconds())

	if r.Truncated {
		q.Flags.TCPOnly = true
		if q.RetryLeft > 0 {
			q.RetryLeft--
			return Signal{Kind: SignalNext}, nil
		}
		return Signal{Kind: SignalFail}, kresolved.New(kresolved.Network, "truncated response and no retry budget for TCP fallback")
	}

	// Referral: authority carries NS records for a cut below q's current
	// cut, with no direct answer yet.
	if len(r.Answer) == 0 && referralNS(r.Ns, d.Cut) != nil {
		rc.Metrics.IncReferral()
		nextCut, nsRecords := referralCut(r.Ns)
		if nextCut == "" || nextCut == d.Cut {
			return Signal{Kind: SignalFail}, kresolved.New(kresolved.Mismatch, "referral did not narrow the zone cut")
		}
		nd := it.Delegations.GetOrCreate(nextCut)
		nd.NSNames = nil
		for _, ns := range nsRecords {
			nd.NSNames = append(nd.NSNames, ns.Ns)
		}
		for _, extra := range r.Extra {
			switch a := extra.(type) {
			case *dns.A:
				nd.Addrs[a.Hdr.Name] = append(nd.Addrs[a.Hdr.Name], a.A.String())
			case *dns.AAAA:
				nd.Addrs[a.Hdr.Name] = append(nd.Addrs[a.Hdr.Name], a.AAAA.String())
			}
		}
		it.Delegations.Insert(nd)
		q.ZoneCut = nextCut
		return Signal{Kind: SignalNext}, nil
	}

	if r.Rcode != dns.RcodeSuccess {
		return Signal{Kind: SignalDone, Answer: &kresolved.Answer{
			Authority: r.Ns, Additional: r.Extra, Rcode: r.Rcode, Security: kresolved.Indeterminate,
		}}, nil
	}

	if len(r.Answer) == 0 {
		return Signal{Kind: SignalDone, Answer: &kresolved.Answer{
			Authority: r.Ns, Additional: r.Extra, Rcode: r.Rcode, Security: kresolved.Indeterminate,
		}}, nil
	}

	// CNAME chase: if the answer is (only) a CNAME and the question wasn't
	// for CNAME itself, push a sub-query for the target, bounded by plan
	// depth acting as the chain-length budget.
	if q.Question.Type != dns.TypeCNAME && kresolved.AllOfType(r.Answer, dns.TypeCNAME) {
		if pl.Depth() >= DefaultMaxCNAMEChain {
			return Signal{Kind: SignalFail}, kresolved.New(kresolved.LimitExceeded, "CNAME chain exceeded maximum length")
		}
		target := r.Answer[len(r.Answer)-1].(*dns.CNAME).Target
		sub := &kresolved.Query{
			ParentUID:  q.UID,
			Question:   kresolved.Question{Name: target, Type: q.Question.Type, Class: q.Question.Class},
			Flags:      q.Flags,
			Created:    rc.Clock.Now(),
			RetryLeft:  it.MaxRetries,
			Generation: q.Generation + 1,
		}
		if err := pl.Push(sub); err != nil {
			return Signal{Kind: SignalFail}, err
		}
		return Signal{Kind: SignalMoreWork, Answer: &kresolved.Answer{
			Answer: r.Answer, Authority: r.Ns, Additional: r.Extra, Rcode: r.Rcode,
		}}, nil
	}

	return Signal{Kind: SignalDone, Answer: &kresolved.Answer{
		Answer: r.Answer, Authority: r.Ns, Additional: r.Extra, Rcode: r.Rcode, Security: kresolved.Indeterminate,
	}}, nil
}

// referralNS reports the NS RRset in authority that sits below cut, or nil
// if none (distinguishing a referral from a bare denial response).
func referralNS(authority []dns.RR, cut string) []dns.RR {
	var below []dns.RR
	for _, r := range kresolved.ExtractRRSet(authority, "", dns.TypeNS) {
		owner := r.Header().Name
		if dns.IsSubDomain(cut, owner) && dns.CountLabel(owner) > dns.CountLabel(cut) {
			below = append(below, r)
		}
	}
	if len(below) == 0 {
		return nil
	}
	return below
}

// referralCut picks the NS owner name shared by the referral's NS records
// (they should all share one owner — the new, narrower zone cut) along
// with those records.
func referralCut(authority []dns.RR) (string, []*dns.NS) {
	var out []*dns.NS
	owner := ""
	for _, r := range authority {
		ns, ok := r.(*dns.NS)
		if !ok {
			continue
		}
		if owner == "" {
			owner = ns.Hdr.Name
		}
		out = append(out, ns)
	}
	return owner, out
}
