package kresolved

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"

	"github.com/jmhodges/clock"
	"github.com/sirupsen/logrus"
)

// RandPool is the process-wide random source used for nameserver
// tie-breaking and address choice. The source seeds a single *mrand.Rand from
// crypto/rand once (solvere's package-level init() did this against the
// global math/rand source); here it's an explicit, named resource taken by
// reference instead of a global.
type RandPool struct {
	mu  sync.Mutex
	src *mrand.Rand
}

// NewRandPool creates a RandPool seeded from crypto/rand.
func NewRandPool() *RandPool {
	var b [8]byte
	seed := int64(1)
	if _, err := rand.Read(b[:]); err == nil {
		if v, n := binary.Varint(b[:]); n > 0 {
			seed = v
		}
	}
	return &RandPool{src: mrand.New(mrand.NewSource(seed))}
}

// Intn is a concurrency-safe wrapper around (*math/rand.Rand).Intn.
func (p *RandPool) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src.Intn(n)
}

// ResolutionContext bundles the named, explicitly-owned resources a
// request-scoped resolution needs: a clock (for testable TTL/expiration
// math), a random pool, a logger, a metrics recorder and the hook
// registry. It is passed by reference everywhere instead of resolving any
// of these through package-level globals.
type ResolutionContext struct {
	Clock    clock.Clock
	Rand     *RandPool
	Log      *logrus.Entry
	Metrics  MetricsRecorder
	Hooks    *HookRegistry
	RequestID string
}

// MetricsRecorder is the capability interface the core uses to report
// counters/histograms; kresolved/metrics provides a Prometheus-backed
// implementation. A nil MetricsRecorder is valid — Driver.Resolve
// substitutes NopMetrics when Metrics is nil.
type MetricsRecorder interface {
	IncQuery(rcode string, cacheHit bool)
	IncReferral()
	IncNSFailure(ns string)
	ObserveRTT(ns string, seconds float64)
	IncValidation(state string)
	ObserveLookupLatency(seconds float64)
}

type nopMetrics struct{}

func (nopMetrics) IncQuery(string, bool)          {}
func (nopMetrics) IncReferral()                   {}
func (nopMetrics) IncNSFailure(string)             {}
func (nopMetrics) ObserveRTT(string, float64)      {}
func (nopMetrics) IncValidation(string)            {}
func (nopMetrics) ObserveLookupLatency(float64)    {}

// NopMetrics is a MetricsRecorder that discards everything.
var NopMetrics MetricsRecorder = nopMetrics{}

// NewResolutionContext builds a ResolutionContext with sane defaults: the
// real clock, a fresh RandPool, a logrus entry carrying the request id,
// NopMetrics and an empty HookRegistry.
func NewResolutionContext(requestID string) *ResolutionContext {
	return &ResolutionContext{
		Clock:     clock.Default(),
		Rand:      NewRandPool(),
		Log:       logrus.WithField("request_id", requestID),
		Metrics:   NopMetrics,
		Hooks:     NewHookRegistry(),
		RequestID: requestID,
	}
}
