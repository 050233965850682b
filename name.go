package kresolved

import (
	"strings"

	"github.com/miekg/dns"
)

// Name is a canonical-lowercase DNS name. Wire parsing/serialization of full
// messages is left to github.com/miekg/dns (see wire.go); Name only deals
// with label arithmetic, comparison and the LF (length-first) encoding used
// by the cache and NSEC/NSEC3 denial-proof ordering.
type Name struct {
	// presentation is the fully-qualified, escaped presentation form, e.g.
	// "Example.COM."
	presentation string
}

// ParseName validates and wraps a presentation-form domain name. Each label
// must be 1..63 bytes and the whole name must be <=255 bytes in wire form,
// per RFC 1035 §3.1.
func ParseName(s string) (Name, error) {
	fq := dns.Fqdn(s)
	if len(fq) > 255 {
		return Name{}, Newf(InvalidArgument, "name %q exceeds 255 bytes", s)
	}
	if !dns.IsDomainName(fq) {
		return Name{}, Newf(InvalidArgument, "name %q is not a valid domain name", s)
	}
	for _, lbl := range dns.SplitDomainName(fq) {
		if len(lbl) == 0 || len(lbl) > 63 {
			return Name{}, Newf(InvalidArgument, "label %q in %q has invalid length", lbl, s)
		}
	}
	return Name{presentation: fq}, nil
}

// MustParseName panics on invalid input; only meant for compile-time
// constants (root hints, trust anchors) never for request-path data.
func MustParseName(s string) Name {
	n, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return n
}

// RootName is the zone cut "." (the implicit root).
var RootName = Name{presentation: "."}

// String returns the presentation form, e.g. "example.com.".
func (n Name) String() string { return n.presentation }

// Canonical returns the lowercase presentation form used for DNSSEC
// signing and as a cache-key component.
func (n Name) Canonical() string { return strings.ToLower(n.presentation) }

// Labels returns the name split into labels, leftmost (leaf) label first
// and the label next to the root last, i.e.
// "www.example.com." -> ["www","example","com"].
func (n Name) Labels() []string {
	if n.presentation == "." {
		return nil
	}
	return dns.SplitDomainName(n.presentation)
}

// IsWildcard reports whether the leftmost label is "*".
func (n Name) IsWildcard() bool {
	labels := n.Labels()
	return len(labels) > 0 && labels[0] == "*"
}

// LabelCount returns the label count used for RFC 4034 §3.1.3 RRSIG
// validation: the asterisk of a wildcard owner does not count.
func (n Name) LabelCount() int {
	c := dns.CountLabel(n.presentation)
	if n.IsWildcard() {
		c--
	}
	return c
}

// Equal is case-insensitive label-wise equality.
func Equal(a, b Name) bool {
	return strings.EqualFold(a.presentation, b.presentation)
}

// IsSubdomain reports whether child is equal to or a subdomain of parent.
func IsSubdomain(parent, child Name) bool {
	return dns.IsSubDomain(parent.presentation, child.presentation)
}

// Compare implements RFC 4034 §6.1 canonical DNS name ordering: labels are
// compared starting from the rightmost (most significant), case-insensitive
// byte-wise, with a name that is a proper prefix of another (from the
// right) sorting first.
func Compare(a, b Name) int {
	// Reverse both so index 0 is the most significant (rightmost) label.
	// Labels come from the wire form, so an escape such as "\001" compares
	// as the byte it stands for.
	rev := func(n Name) []string {
		buf := make([]byte, 256)
		end, err := dns.PackDomainName(n.presentation, buf, 0, nil, false)
		if err != nil {
			return nil
		}
		var out []string
		for off := 0; off < end && buf[off] != 0; off += int(buf[off]) + 1 {
			out = append([]string{strings.ToLower(string(buf[off+1 : off+1+int(buf[off])]))}, out...)
		}
		return out
	}
	ra, rb := rev(a), rev(b)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if c := strings.Compare(ra[i], rb[i]); c != 0 {
			return c
		}
	}
	return len(ra) - len(rb)
}

// Wire encodes the name into DNS wire format: length-prefixed labels
// terminated by a zero byte.
func (n Name) Wire() ([]byte, error) {
	labels := n.Labels()
	buf := make([]byte, 0, len(n.presentation)+1)
	for _, lbl := range labels {
		if len(lbl) == 0 || len(lbl) > 63 {
			return nil, Newf(Parse, "invalid label length %d", len(lbl))
		}
		buf = append(buf, byte(len(lbl)))
		buf = append(buf, strings.ToLower(lbl)...)
	}
	buf = append(buf, 0)
	return buf, nil
}

// LF returns the length-first canonical encoding used for cache/NSEC
// ordering: labels in reverse (leaf-to-root becomes root-to-leaf reversed,
// i.e. most significant label first), separated by single zero bytes, with
// no terminating byte.
func (n Name) LF() []byte {
	labels := n.Labels()
	out := make([]byte, 0, len(n.presentation))
	for i := len(labels) - 1; i >= 0; i-- {
		if i != len(labels)-1 {
			out = append(out, 0)
		}
		out = append(out, strings.ToLower(labels[i])...)
	}
	return out
}

// LF2Wire converts a length-first encoded name back to wire format,
// rejecting any label whose length is 0 or >63. This mirrors
// knot_dname_lf2wire from the original resolver: labels arrive most
// significant (rightmost) first and must be reassembled leaf-first (root
// last) in wire form, i.e. reversed again relative to LF order.
func LF2Wire(lf []byte) ([]byte, error) {
	if len(lf) == 0 {
		return []byte{0}, nil
	}
	parts := splitZero(lf)
	wire := make([]byte, 0, len(lf)+2)
	for i := len(parts) - 1; i >= 0; i-- {
		lbl := parts[i]
		if len(lbl) == 0 || len(lbl) > 63 {
			return nil, Newf(Parse, "invalid LF label length %d", len(lbl))
		}
		wire = append(wire, byte(len(lbl)))
		wire = append(wire, lbl...)
	}
	wire = append(wire, 0)
	return wire, nil
}

// splitZero splits on single zero-byte separators.
func splitZero(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	out = append(out, b[start:])
	return out
}
