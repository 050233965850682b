package main

import (
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dnscore/kresolved/config"
	"github.com/dnscore/kresolved/metrics"
	"github.com/dnscore/kresolved/resolver"
)

func main() {
	configPath := flag.String("config", "", "path to a kresolved configuration file")
	flag.Parse()

	log := logrus.StandardLogger()

	opts, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	rootHints, err := config.LoadRootHints(opts.RootHintsPath)
	if err != nil {
		log.WithError(err).Fatal("loading root hints")
	}

	taLoader := &config.TrustAnchorLoader{Path: opts.TrustAnchorPath, Log: log}
	trustAnchor, err := taLoader.Load()
	if err != nil {
		log.WithError(err).Fatal("loading trust anchor")
	}

	transport := resolver.NewDNSTransport(opts.QueryTimeout)
	rr, err := resolver.NewRecursiveResolver(transport, opts.CacheSize, rootHints, trustAnchor)
	if err != nil {
		log.WithError(err).Fatal("constructing resolver")
	}

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	srv := &Server{
		Resolver:   rr,
		Log:        log,
		Metrics:    rec,
		WantDNSSEC: opts.WantDNSSEC,
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.WithField("addr", opts.MetricsAddr).Info("serving metrics")
		if err := http.ListenAndServe(opts.MetricsAddr, mux); err != nil {
			log.WithError(err).Error("metrics server exited")
		}
	}()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			if err := taLoader.Reload(rr.SetTrustAnchor); err != nil {
				log.WithError(err).Error("reloading trust anchor")
			}
		}
	}()

	if err := srv.ListenAndServe(opts.ListenAddr); err != nil {
		log.WithError(err).Fatal("dns server exited")
	}
}
