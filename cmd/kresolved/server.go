package main

import (
	"context"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/trace"

	"github.com/dnscore/kresolved"
	"github.com/dnscore/kresolved/resolver"
)

// Server adapts dns.Server's ResponseWriter/Msg handler callback to
// RecursiveResolver.Submit, tracing each request the way solvere's
// server.go does with golang.org/x/net/trace.
type Server struct {
	Resolver   *resolver.RecursiveResolver
	Log        logrus.FieldLogger
	Metrics    kresolved.MetricsRecorder
	WantDNSSEC bool
}

func genRequestID() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, mrand.Uint32())
	return fmt.Sprintf("%x", b)
}

// ListenAndServe starts UDP and TCP listeners on addr and blocks until one
// of them returns an error.
func (s *Server) ListenAndServe(addr string) error {
	dns.HandleFunc(".", s.handle)

	errc := make(chan error, 2)
	udp := &dns.Server{Addr: addr, Net: "udp"}
	tcp := &dns.Server{Addr: addr, Net: "tcp"}
	go func() { errc <- udp.ListenAndServe() }()
	go func() { errc <- tcp.ListenAndServe() }()
	return <-errc
}

func (s *Server) handle(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = true

	if len(r.Question) != 1 {
		m.Rcode = dns.RcodeFormatError
		w.WriteMsg(m)
		return
	}

	requestID := genRequestID()
	tr := trace.New("kresolved.request", r.Question[0].String())
	defer tr.Finish()

	ctx, cancel := context.WithTimeout(trace.NewContext(context.Background(), tr), resolver.DefaultTransportTimeout*4)
	defer cancel()

	rc := kresolved.NewResolutionContext(requestID)
	rc.Metrics = s.Metrics

	dnssecOK := false
	if opt := r.IsEdns0(); opt != nil {
		dnssecOK = opt.Do()
	}

	start := time.Now()
	flags := kresolved.QueryFlags{
		WantDNSSEC:       s.WantDNSSEC && dnssecOK,
		CheckingDisabled: r.CheckingDisabled,
	}

	res, err := s.Resolver.Submit(ctx, rc, kresolved.QuestionFromDNS(r.Question[0]), flags)
	s.Metrics.ObserveLookupLatency(time.Since(start).Seconds())

	if err != nil {
		s.Log.WithFields(logrus.Fields{
			"request_id": requestID,
			"qname":      r.Question[0].Name,
			"qtype":      dns.TypeToString[r.Question[0].Qtype],
		}).WithError(err).Warn("resolution failed")
		m.Rcode = dns.RcodeServerFailure
		if res != nil {
			m.Rcode = res.Rcode
		}
		tr.SetError()
		w.WriteMsg(m)
		return
	}

	m.Rcode = res.Rcode
	m.AuthenticatedData = res.Security == kresolved.Secure
	m.Answer = res.Msg.Answer
	m.Ns = res.Msg.Ns
	m.Extra = res.Msg.Extra
	w.WriteMsg(m)
}
