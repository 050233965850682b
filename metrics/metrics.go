// Package metrics implements the Prometheus-backed MetricsRecorder, the
// ambient observability layer named but not defined by the engine core
// (kresolved.MetricsRecorder). Grounded in blocky's dnssec.Validator
// metrics block (counter/histogram vectors registered once at
// construction) and sdns's resolver/handler.go gauge usage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements kresolved.MetricsRecorder with Prometheus collectors.
// All methods are safe for concurrent use, matching the collectors'
// own thread-safety.
type Recorder struct {
	queries      *prometheus.CounterVec
	referrals    prometheus.Counter
	nsFailures   *prometheus.CounterVec
	rtt          *prometheus.HistogramVec
	validations  *prometheus.CounterVec
	lookupLatency prometheus.Histogram
}

// New builds a Recorder and registers its collectors against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// tests free of cross-test collector collisions.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kresolved_queries_total",
			Help: "Number of client queries served, by final rcode and cache-hit state.",
		}, []string{"rcode", "cache_hit"}),
		referrals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kresolved_referrals_total",
			Help: "Number of referral responses followed during iteration.",
		}),
		nsFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kresolved_ns_failures_total",
			Help: "Number of outbound query failures per nameserver.",
		}, []string{"ns"}),
		rtt: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kresolved_ns_rtt_seconds",
			Help:    "Observed round-trip time per nameserver.",
			Buckets: prometheus.DefBuckets,
		}, []string{"ns"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kresolved_dnssec_validations_total",
			Help: "Number of DNSSEC validations by resulting security state.",
		}, []string{"state"}),
		lookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kresolved_lookup_latency_seconds",
			Help:    "Latency of individual outbound lookups.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.queries, r.referrals, r.nsFailures, r.rtt, r.validations, r.lookupLatency)
	return r
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (r *Recorder) IncQuery(rcode string, cacheHit bool) {
	r.queries.WithLabelValues(rcode, boolLabel(cacheHit)).Inc()
}

func (r *Recorder) IncReferral() { r.referrals.Inc() }

func (r *Recorder) IncNSFailure(ns string) { r.nsFailures.WithLabelValues(ns).Inc() }

func (r *Recorder) ObserveRTT(ns string, seconds float64) { r.rtt.WithLabelValues(ns).Observe(seconds) }

func (r *Recorder) IncValidation(state string) { r.validations.WithLabelValues(state).Inc() }

func (r *Recorder) ObserveLookupLatency(seconds float64) { r.lookupLatency.Observe(seconds) }
