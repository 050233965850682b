package config

import (
	"os"
	"strings"

	"github.com/miekg/dns"

	"github.com/dnscore/kresolved"
)

// LoadRootHints parses a named.root-style hints file (NS records for "."
// plus A/AAAA glue for each server name) into the Nameserver slice
// resolver.NewIterator expects.
func LoadRootHints(path string) ([]kresolved.Nameserver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kresolved.Wrap(kresolved.NotFound, err, "opening root hints file")
	}
	defer f.Close()

	var names []string
	addrs := map[string][]string{}
	tok := dns.ParseZone(f, ".", path)
	for rr := range tok {
		if rr.Error != nil {
			return nil, kresolved.Wrap(kresolved.Parse, rr.Error, "parsing root hints file")
		}
		switch v := rr.RR.(type) {
		case *dns.NS:
			names = append(names, strings.ToLower(v.Ns))
		case *dns.A:
			name := strings.ToLower(v.Hdr.Name)
			addrs[name] = append(addrs[name], v.A.String())
		case *dns.AAAA:
			name := strings.ToLower(v.Hdr.Name)
			addrs[name] = append(addrs[name], v.AAAA.String())
		}
	}

	var hints []kresolved.Nameserver
	for _, name := range names {
		for _, addr := range addrs[name] {
			hints = append(hints, kresolved.Nameserver{Name: name, Addr: addr, Zone: "."})
		}
	}
	if len(hints) == 0 {
		return nil, kresolved.New(kresolved.InvalidArgument, "root hints file yielded no usable nameserver addresses")
	}
	return hints, nil
}
