// Package resolver implements the iterator (C6) and resolver driver (C9):
// the step-function-driven engine that walks the resolution plan, issues
// outbound queries, folds answers into the accumulator, and assembles the
// final response. Grounded in solvere's RecursiveResolver.query/Lookup
// (resolver.go), generalized from its single-shot referral loop into
// explicit plan/delegation/cache/accumulator/dnssec components.
package resolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

// Transport sends msg to addr and returns the response plus the round-trip
// time. Implementations decide UDP vs TCP based on msg/flags; solvere's
// query() used a single *dns.Client per resolver, this generalizes that into
// a swappable capability so the iterator itself never touches the network
// directly.
type Transport interface {
	Exchange(ctx context.Context, msg *dns.Msg, addr string, useTCP bool) (*dns.Msg, time.Duration, error)
}

// DNSTransport is a Transport backed by github.com/miekg/dns's client, with
// in-flight outbound de-duplication via golang.org/x/sync/singleflight —
// the same (question, addr) pair won't be sent twice concurrently, matching
// the pack's use of singleflight for upstream request coalescing.
type DNSTransport struct {
	udp    *dns.Client
	tcp    *dns.Client
	group  singleflight.Group
	Port   string
}

// NewDNSTransport returns a DNSTransport with the given per-exchange
// timeout. Port defaults to "53".
func NewDNSTransport(timeout time.Duration) *DNSTransport {
	return &DNSTransport{
		udp:  &dns.Client{Net: "udp", Timeout: timeout},
		tcp:  &dns.Client{Net: "tcp", Timeout: timeout},
		Port: "53",
	}
}

func (t *DNSTransport) Exchange(ctx context.Context, msg *dns.Msg, addr string, useTCP bool) (*dns.Msg, time.Duration, error) {
	client := t.udp
	if useTCP {
		client = t.tcp
	}
	port := t.Port
	if port == "" {
		port = "53"
	}
	target := net.JoinHostPort(addr, port)

	key := fmt.Sprintf("%s|%s|%s|%t", target, msg.Question[0].Name, dns.TypeToString[msg.Question[0].Qtype], useTCP)
	type result struct {
		r   *dns.Msg
		rtt time.Duration
		err error
	}
	v, _, _ := t.group.Do(key, func() (interface{}, error) {
		r, rtt, err := client.ExchangeContext(ctx, msg, target)
		return result{r, rtt, err}, err
	})
	res := v.(result)
	return res.r, res.rtt, res.err
}
