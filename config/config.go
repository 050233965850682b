// Package config loads kresolved's runtime options through viper, the way
// tdns's dnslookup command pulls resolver lists out of "dns.resolvers",
// and exposes hot-reloadable trust anchor loading for cmd/kresolved's
// SIGHUP handler.
package config

import (
	"os"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dnscore/kresolved"
)

// Options holds the settings a kresolved process needs at startup. Field
// names mirror the viper keys below with underscores replaced by case
// changes.
type Options struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	CacheSize       int           `mapstructure:"cache_size"`
	RootHintsPath   string        `mapstructure:"root_hints_path"`
	TrustAnchorPath string        `mapstructure:"trust_anchor_path"`
	WantDNSSEC      bool          `mapstructure:"want_dnssec"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:5353")
	v.SetDefault("cache_size", 65536)
	v.SetDefault("root_hints_path", "/etc/kresolved/root.hints")
	v.SetDefault("trust_anchor_path", "/etc/kresolved/root.keys")
	v.SetDefault("want_dnssec", true)
	v.SetDefault("query_timeout", 2*time.Second)
	v.SetDefault("metrics_addr", "127.0.0.1:9153")
}

// Load reads options from path (any format viper's codecs understand: yaml,
// toml, json) layered under environment variable overrides prefixed
// KRESOLVED_, e.g. KRESOLVED_LISTEN_ADDR.
func Load(path string) (*Options, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("kresolved")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, kresolved.Wrap(kresolved.InvalidArgument, err, "reading configuration file")
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, kresolved.Wrap(kresolved.InvalidArgument, err, "decoding configuration")
	}
	return &opts, nil
}

// TrustAnchorLoader re-reads a trust anchor file (DS or DNSKEY records in
// zone presentation format) on demand, so cmd/kresolved can wire a SIGHUP
// handler without re-parsing the whole configuration file.
type TrustAnchorLoader struct {
	Path string
	Log  logrus.FieldLogger
}

// Load parses the trust anchor file into RR records. Only DS and DNSKEY
// records are accepted; anything else is rejected rather than silently
// ignored, since a malformed anchor file should fail loudly at startup or
// reload rather than leave the resolver running with a stale or empty
// anchor set.
func (l *TrustAnchorLoader) Load() ([]dns.RR, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, kresolved.Wrap(kresolved.NotFound, err, "opening trust anchor file")
	}
	defer f.Close()

	var anchors []dns.RR
	tok := dns.ParseZone(f, ".", l.Path)
	for rr := range tok {
		if rr.Error != nil {
			return nil, kresolved.Wrap(kresolved.Parse, rr.Error, "parsing trust anchor file")
		}
		switch rr.RR.Header().Rrtype {
		case dns.TypeDS, dns.TypeDNSKEY:
			anchors = append(anchors, rr.RR)
		default:
			return nil, kresolved.Newf(kresolved.InvalidArgument, "trust anchor file contains unexpected record type %s", dns.TypeToString[rr.RR.Header().Rrtype])
		}
	}
	if len(anchors) == 0 {
		return nil, kresolved.New(kresolved.InvalidArgument, "trust anchor file contains no DS or DNSKEY records")
	}
	return anchors, nil
}

// Reload parses the trust anchor file and pushes the result into the
// resolver's active anchor set, logging the record count on success so an
// operator can confirm a SIGHUP actually picked up new keys.
func (l *TrustAnchorLoader) Reload(set func([]dns.RR)) error {
	anchors, err := l.Load()
	if err != nil {
		return err
	}
	set(anchors)
	if l.Log != nil {
		l.Log.WithField("count", len(anchors)).Info("trust anchor reloaded")
	}
	return nil
}
