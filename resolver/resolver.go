package resolver

import (
	"context"
	"time"

	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
	"github.com/dnscore/kresolved/cache"
	"github.com/dnscore/kresolved/delegation"
)

// RecursiveResolver is the resolver façade to the transport:
// submit(request) -> future<result>. It owns the long-lived, shared state
// (delegation map, cache store, root hints, trust anchor) that survives
// across requests, while each Submit call gets its own Plan/Accumulator.
type RecursiveResolver struct {
	Delegations *delegation.Map
	CacheStore  *cache.Store
	Iterator    *Iterator
	Driver      *Driver
}

// NewRecursiveResolver wires the delegation map, cache store and iterator
// together. rootHints seeds the "." delegation; trustAnchor seeds the
// validator's configured trust points (DS or DNSKEY records in
// presentation format).
func NewRecursiveResolver(transport Transport, cacheSize int, rootHints []kresolved.Nameserver, trustAnchor []dns.RR) (*RecursiveResolver, error) {
	store, err := cache.NewStore(cacheSize, nil)
	if err != nil {
		return nil, err
	}
	delegations := delegation.New()
	it := NewIterator(transport, delegations, rootHints)
	drv := NewDriver(it, trustAnchor)
	return &RecursiveResolver{
		Delegations: delegations,
		CacheStore:  store,
		Iterator:    it,
		Driver:      drv,
	}, nil
}

// SetTrustAnchor atomically replaces the configured trust anchor, for
// SIGHUP-triggered reload while requests are resolving concurrently.
func (rr *RecursiveResolver) SetTrustAnchor(ta []dns.RR) {
	rr.Driver.SetTrustAnchor(ta)
}

// Submit resolves one client request to a Result, opening and committing
// its own cache transaction. want DNSSEC validation is requested via
// flags.WantDNSSEC; flags.CheckingDisabled is set on outbound queries and
// keeps the AD bit off in the result, while records are still validated
// and ranked as usual.
func (rr *RecursiveResolver) Submit(ctx context.Context, rc *kresolved.ResolutionContext, question kresolved.Question, flags kresolved.QueryFlags) (*kresolved.Result, error) {
	txn := rr.CacheStore.Begin()
	res, err := rr.Driver.Resolve(ctx, rc, question, flags, txn)
	if err != nil {
		return res, err
	}
	return res, nil
}

// DefaultTransportTimeout is the per-exchange timeout used when a caller
// doesn't supply its own Transport.
const DefaultTransportTimeout = 2 * time.Second
