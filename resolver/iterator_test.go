package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
	"github.com/dnscore/kresolved/accumulator"
	"github.com/dnscore/kresolved/cache"
	"github.com/dnscore/kresolved/delegation"
	"github.com/dnscore/kresolved/plan"
)

type singleAnswerTransport struct {
	msg *dns.Msg
}

func (s *singleAnswerTransport) Exchange(ctx context.Context, msg *dns.Msg, addr string, useTCP bool) (*dns.Msg, time.Duration, error) {
	r := s.msg.Copy()
	r.Id = msg.Id
	return r, time.Millisecond, nil
}

type alwaysFailTransport struct{}

func (alwaysFailTransport) Exchange(ctx context.Context, msg *dns.Msg, addr string, useTCP bool) (*dns.Msg, time.Duration, error) {
	return nil, 0, kresolved.New(kresolved.Network, "simulated network failure")
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.NewStore(64, clock.NewFake())
	if err != nil {
		t.Fatalf("failed to build cache store: %s", err)
	}
	return s
}

func TestIteratorChasesCNAME(t *testing.T) {
	cnameAnswer := new(dns.Msg)
	cnameAnswer.Rcode = dns.RcodeSuccess
	cnameAnswer.Answer = []dns.RR{&dns.CNAME{Hdr: dns.RR_Header{Name: "a.example.com.", Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 300}, Target: "b.example.com."}}

	delegations := delegation.New()
	it := NewIterator(&singleAnswerTransport{msg: cnameAnswer}, delegations, []kresolved.Nameserver{
		{Name: "a.root-servers.net.", Addr: "198.51.100.1", Zone: "."},
	})

	rc := kresolved.NewResolutionContext("test")
	rc.Clock = clock.NewFake()
	pl := plan.New()
	acc := accumulator.New()
	txn := newStore(t).Begin()

	q := &kresolved.Query{Question: kresolved.Question{Name: "a.example.com.", Type: dns.TypeA, Class: dns.ClassINET}, RetryLeft: 3}
	if err := pl.Push(q); err != nil {
		t.Fatalf("failed to push root query: %s", err)
	}

	sig, err := it.Step(context.Background(), rc, pl, acc, txn, q)
	if err != nil {
		t.Fatalf("Step failed: %s", err)
	}
	if sig.Kind != SignalMoreWork {
		t.Fatalf("expected MORE_WORK after a CNAME answer, got %v", sig.Kind)
	}
	if pl.Depth() != 2 {
		t.Fatalf("expected a chased sub-query pushed onto the plan, depth=%d", pl.Depth())
	}
	top := pl.Top()
	if top.Question.Name != "b.example.com." {
		t.Fatalf("expected chased sub-query for b.example.com., got %s", top.Question.Name)
	}
}

func TestIteratorRetriesOnTransportFailure(t *testing.T) {
	delegations := delegation.New()
	it := NewIterator(alwaysFailTransport{}, delegations, []kresolved.Nameserver{
		{Name: "a.root-servers.net.", Addr: "198.51.100.1", Zone: "."},
	})

	rc := kresolved.NewResolutionContext("test")
	rc.Clock = clock.NewFake()
	pl := plan.New()
	acc := accumulator.New()
	txn := newStore(t).Begin()

	q := &kresolved.Query{Question: kresolved.Question{Name: "www.example.com.", Type: dns.TypeA, Class: dns.ClassINET}, RetryLeft: 1}
	if err := pl.Push(q); err != nil {
		t.Fatalf("failed to push root query: %s", err)
	}

	sig, err := it.Step(context.Background(), rc, pl, acc, txn, q)
	if err != nil || sig.Kind != SignalNext {
		t.Fatalf("expected a recoverable NEXT on the first failure, got %v / %v", sig.Kind, err)
	}
	if q.RetryLeft != 0 {
		t.Fatalf("expected retry budget decremented to 0, got %d", q.RetryLeft)
	}

	sig, err = it.Step(context.Background(), rc, pl, acc, txn, q)
	if err == nil || sig.Kind != SignalFail {
		t.Fatalf("expected FAIL once the retry budget is exhausted, got %v / %v", sig.Kind, err)
	}
	if !kresolved.Recoverable(err) {
		t.Fatal("expected a TIMEOUT-kind error to be recoverable at the parent level")
	}
}
