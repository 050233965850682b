package config

import (
	"net"
	"strconv"
	"strings"

	"github.com/dnscore/kresolved"
)

// SplitAddr parses "host#port" or "host@port" into its address and port
// parts, grounded in original_source/lib/utils.c:kr_straddr_split. A bare
// host with no port marker returns the whole input as host, port 0 and
// hasPort false.
func SplitAddr(instr string) (host string, port uint16, hasPort bool, err error) {
	sep := -1
	for i, c := range instr {
		if c == '@' || c == '#' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return instr, 0, false, nil
	}
	if sep == len(instr)-1 {
		return "", 0, false, kresolved.New(kresolved.InvalidArgument, "empty port after separator")
	}
	p, err := strconv.ParseUint(instr[sep+1:], 10, 16)
	if err != nil || p == 0 {
		return "", 0, false, kresolved.Newf(kresolved.InvalidArgument, "invalid port in address literal %q", instr)
	}
	return instr[:sep], uint16(p), true, nil
}

// ParseSubnet splits "addr/bits" into the address and a prefix length,
// defaulting to the address family's full width when no "/bits" suffix is
// present, grounded in kr_straddr_subnet.
func ParseSubnet(addr string) (ip net.IP, bits int, err error) {
	host := addr
	prefix := -1
	hasPrefix := false
	if idx := strings.IndexByte(addr, '/'); idx >= 0 {
		host = addr[:idx]
		hasPrefix = true
		prefix, err = strconv.Atoi(addr[idx+1:])
		if err != nil {
			return nil, 0, kresolved.Wrap(kresolved.InvalidArgument, err, "bad subnet length")
		}
	}
	parsed := net.ParseIP(host)
	if parsed == nil {
		return nil, 0, kresolved.Newf(kresolved.InvalidArgument, "invalid IP address %q", host)
	}
	maxBits := 32
	if parsed.To4() == nil {
		maxBits = 128
	}
	if !hasPrefix {
		prefix = maxBits
	}
	if prefix < 0 || prefix > maxBits {
		return nil, 0, kresolved.Newf(kresolved.InvalidArgument, "subnet length %d out of range for %q", prefix, host)
	}
	return parsed, prefix, nil
}

// SetPort writes port into addr's matching address-family field. Unlike
// original_source/lib/utils.c:kr_inaddr_set_port, whose switch statement
// falls through from the IPv4 case into the IPv6 case (missing `break`,
// clobbering adjacent memory past the struct sockaddr_in's shorter
// layout), this only ever touches the field matching the net.Addr's own
// concrete type.
func SetPort(addr net.Addr, port uint16) net.Addr {
	switch a := addr.(type) {
	case *net.UDPAddr:
		cp := *a
		cp.Port = int(port)
		return &cp
	case *net.TCPAddr:
		cp := *a
		cp.Port = int(port)
		return &cp
	default:
		return addr
	}
}
