package resolver

import (
	"context"
	"sync/atomic"

	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
	"github.com/dnscore/kresolved/accumulator"
	"github.com/dnscore/kresolved/cache"
	"github.com/dnscore/kresolved/dnssec"
	"github.com/dnscore/kresolved/plan"
)

// DefaultMaxSteps bounds the number of iterator steps a single request may
// take in total, independent of the per-query retry budget — a backstop
// against any bug that would otherwise spin the driver forever.
const DefaultMaxSteps = 256

// Driver implements C9: it drives a Plan to a fixed point, invoking the
// iterator and validator per query, and assembles the final response from
// the accumulator's to-wire entries.
type Driver struct {
	Iterator    *Iterator
	trustAnchor atomic.Pointer[[]dns.RR]
}

// NewDriver returns a Driver over it.
func NewDriver(it *Iterator, trustAnchor []dns.RR) *Driver {
	drv := &Driver{Iterator: it}
	drv.trustAnchor.Store(&trustAnchor)
	return drv
}

// TrustAnchor returns the currently configured trust anchor. Safe to call
// concurrently with SetTrustAnchor.
func (drv *Driver) TrustAnchor() []dns.RR {
	return *drv.trustAnchor.Load()
}

// SetTrustAnchor atomically replaces the configured trust anchor, for
// SIGHUP-triggered reload while requests are resolving concurrently.
func (drv *Driver) SetTrustAnchor(ta []dns.RR) {
	drv.trustAnchor.Store(&ta)
}

// Resolve runs question to completion: pushes the root query, drives the
// plan via the iterator, validates completed queries, and assembles the
// final dns.Msg from accumulator entries marked to-wire.
func (drv *Driver) Resolve(ctx context.Context, rc *kresolved.ResolutionContext, question kresolved.Question, flags kresolved.QueryFlags, txn *cache.Txn) (*kresolved.Result, error) {
	if rc.Metrics == nil {
		rc.Metrics = kresolved.NopMetrics
	}
	pl := plan.New()
	acc := accumulator.New()

	root := &kresolved.Query{
		Question:  question,
		Flags:     flags,
		Created:   rc.Clock.Now(),
		RetryLeft: drv.Iterator.MaxRetries,
	}
	if err := pl.Push(root); err != nil {
		return nil, err
	}

	security := kresolved.Indeterminate
	steps := 0
	for {
		q := pl.Top()
		if q == nil {
			break
		}
		steps++
		if steps > DefaultMaxSteps {
			txn.Abort()
			return nil, kresolved.New(kresolved.LimitExceeded, "resolution exceeded maximum step budget")
		}

		sig, err := drv.Iterator.Step(ctx, rc, pl, acc, txn, q)
		if err != nil {
			if kresolved.Recoverable(err) {
				continue
			}
			txn.Abort()
			rc.Metrics.IncQuery(dns.RcodeToString[dns.RcodeServerFailure], false)
			return &kresolved.Result{Rcode: dns.RcodeServerFailure, Security: kresolved.Bogus}, err
		}

		switch sig.Kind {
		case SignalNext:
			continue
		case SignalMoreWork:
			if sig.Answer != nil {
				// A CNAME chase hands back the CNAME it just followed; fold
				// it into the accumulator now so it survives into the final
				// response even though this query isn't done yet. The
				// per-query security state isn't final here, so it's
				// discarded rather than fed into the outer `security`. q
				// itself is spent — it handed resolution off to the pushed
				// sub-query above it — so pop it; unlike the DNSSEC
				// prerequisite push (no Answer), q must not be re-stepped or
				// it would re-issue the same query and chase the same CNAME
				// again. q is not necessarily on top any more (Step just
				// pushed the chase sub-query above it), so Retire rather
				// than Pop.
				drv.ingest(rc, acc, q, sig.Answer)
				pl.Retire(q.UID)
			}
			continue
		case SignalDone:
			pl.Pop()
			qSecurity := drv.ingest(rc, acc, q, sig.Answer)
			if q.UID == root.UID {
				security = qSecurity
			} else if security == kresolved.Indeterminate {
				security = qSecurity
			}
		case SignalFail:
			pl.Pop()
			if q.UID == root.UID {
				txn.Abort()
				rc.Metrics.IncQuery(dns.RcodeToString[dns.RcodeServerFailure], false)
				return &kresolved.Result{Rcode: dns.RcodeServerFailure, Security: kresolved.Bogus}, err
			}
			security = kresolved.Bogus
		}
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(question.Name), question.Type)
	msg.Question[0].Qclass = question.Class
	msg.Response = true
	msg.RecursionAvailable = true

	entries := acc.ToWire()
	for _, e := range entries {
		msg.Answer = append(msg.Answer, e.Set.Records...)
	}
	msg.Rcode = dns.RcodeSuccess
	if len(entries) == 0 {
		msg.Rcode = dns.RcodeNameError
	}
	if security == kresolved.Secure && !flags.CheckingDisabled {
		msg.AuthenticatedData = true
	}

	txn.Commit()
	rc.Metrics.IncQuery(dns.RcodeToString[msg.Rcode], false)
	rc.Metrics.IncValidation(security.String())

	return &kresolved.Result{Msg: msg, Rcode: msg.Rcode, Security: security}, nil
}

// keysForCut returns the DNSKEY set already accumulated for cut (populated
// by an earlier DNSKEY sub-query completing before its dependent, per the
// plan's push-above-dependent ordering), keyed by key tag.
func keysForCut(acc *accumulator.Accumulator, cut string) map[uint16]*dns.DNSKEY {
	keys := map[uint16]*dns.DNSKEY{}
	for _, e := range acc.Entries() {
		if e.Set.Key.Type != dns.TypeDNSKEY || !kresolved.Equal(kresolved.MustParseName(e.Set.Key.Owner), kresolved.MustParseName(cut)) {
			continue
		}
		for _, r := range e.Set.Records {
			if k, ok := r.(*dns.DNSKEY); ok {
				keys[k.KeyTag()] = k
			}
		}
	}
	return keys
}

// ingest folds a completed query's answer into the accumulator and, when
// DNSSEC was requested, into the validator, returning the resulting
// per-query security state.
func (drv *Driver) ingest(rc *kresolved.ResolutionContext, acc *accumulator.Accumulator, q *kresolved.Query, ans *kresolved.Answer) kresolved.SecurityState {
	if ans == nil || len(ans.Answer) == 0 {
		return kresolved.Indeterminate
	}

	hasNSEC3 := kresolved.ContainsType(ans.Authority, dns.TypeNSEC3)
	sigs := kresolved.ExtractRRSet(ans.Answer, "", dns.TypeRRSIG)

	byOwnerType := map[kresolved.RRSetKey][]dns.RR{}
	var order []kresolved.RRSetKey
	for _, r := range ans.Answer {
		if r.Header().Rrtype == dns.TypeRRSIG {
			continue
		}
		key := kresolved.RRSetKey{Owner: r.Header().Name, Class: r.Header().Class, Type: r.Header().Rrtype}
		if _, seen := byOwnerType[key]; !seen {
			order = append(order, key)
		}
		byOwnerType[key] = append(byOwnerType[key], r)
	}

	state := kresolved.Insecure
	if !q.Flags.WantDNSSEC {
		for _, key := range order {
			set := kresolved.NewRRSet(byOwnerType[key])
			acc.Add(set, kresolved.RankTry, key.Type == q.Question.Type || key.Type == dns.TypeCNAME, q.UID)
		}
		return kresolved.Indeterminate
	}

	keys := keysForCut(acc, q.ZoneCut)
	state = kresolved.Secure
	for _, key := range order {
		set := kresolved.NewRRSet(byOwnerType[key])
		rank := kresolved.RankInsecure
		entryState := kresolved.Insecure
		if len(keys) > 0 {
			if _, err := dnssec.ValidateRRSet(set, sigs, keys, ans.Authority, q.ZoneCut, rc.Clock.Now(), hasNSEC3); err == nil {
				rank = kresolved.RankSecure
				entryState = kresolved.Secure
			} else {
				rank = kresolved.RankBogus
				entryState = kresolved.Bogus
			}
			rc.Metrics.IncValidation(entryState.String())
		}
		if entryState == kresolved.Bogus {
			state = kresolved.Bogus
		} else if entryState == kresolved.Insecure && state == kresolved.Secure {
			state = kresolved.Insecure
		}
		acc.Add(set, rank, key.Type == q.Question.Type || key.Type == dns.TypeCNAME, q.UID)
	}

	if q.Question.Type == dns.TypeDNSKEY {
		if d, ok := drv.Iterator.Delegations.Lookup(q.ZoneCut); ok {
			keySet := kresolved.NewRRSet(kresolved.ExtractRRSet(ans.Answer, q.ZoneCut, dns.TypeDNSKEY))
			if keySet != nil {
				d.Secure = dnssec.DNSKeysTrusted(keySet, sigs, drv.TrustAnchor(), ans.Authority, q.ZoneCut, rc.Clock.Now(), hasNSEC3)
				if d.Secure == kresolved.Bogus && dnssec.ProvenInsecureDelegation(q.ZoneCut, ans.Authority) {
					d.Secure = kresolved.Insecure
					d.ProvenInsecure = true
				}
				state = d.Secure
			}
		}
	}

	return state
}
