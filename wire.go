package kresolved

import "github.com/miekg/dns"

// Packet wraps a dns.Msg with the buffer-reuse operations the iterator
// needs between hops (C1). Compression pointer validation (loop/range
// rejection) is handled by dns.Msg.Unpack itself; ParsePacket only
// reclassifies its error as a Kind.
type Packet struct {
	Msg *dns.Msg
}

// ParsePacket decodes wire bytes into a Packet.
func ParsePacket(buf []byte) (*Packet, error) {
	m := new(dns.Msg)
	if err := m.Unpack(buf); err != nil {
		return nil, Wrap(Parse, err, "unpack dns message")
	}
	return &Packet{Msg: m}, nil
}

// Serialize packs the packet, truncating to limit bytes per EDNS/UDP
// payload-size negotiation (0 means "no limit", i.e. TCP).
func (p *Packet) Serialize(limit int) ([]byte, error) {
	if limit <= 0 {
		buf, err := p.Msg.Pack()
		if err != nil {
			return nil, Wrap(Parse, err, "pack dns message")
		}
		return buf, nil
	}
	buf, err := p.Msg.PackBuffer(make([]byte, 0, limit))
	if err != nil {
		return nil, Wrap(Parse, err, "pack dns message")
	}
	if len(buf) > limit {
		p.Msg.Truncate(limit)
		buf, err = p.Msg.Pack()
		if err != nil {
			return nil, Wrap(Parse, err, "pack truncated dns message")
		}
	}
	return buf, nil
}

// AppendRR appends rr to the named section ("answer", "authority"/"ns",
// "additional"/"extra").
func (p *Packet) AppendRR(section string, rr dns.RR) {
	switch section {
	case "answer":
		p.Msg.Answer = append(p.Msg.Answer, rr)
	case "authority", "ns":
		p.Msg.Ns = append(p.Msg.Ns, rr)
	case "additional", "extra":
		p.Msg.Extra = append(p.Msg.Extra, rr)
	}
}

// SetRcode sets the response code.
func (p *Packet) SetRcode(rcode int) { p.Msg.Rcode = rcode }

// SetFlags sets the AD (authenticated data) and CD (checking disabled)
// bits; these are the two flags the validator/driver need to round-trip
// explicitly.
func (p *Packet) SetFlags(ad, cd bool) {
	p.Msg.AuthenticatedData = ad
	p.Msg.CheckingDisabled = cd
}

// ClearPayload empties the answer/authority/additional sections while
// keeping the header and question, used when an iterator discards a
// partial response (e.g. a malformed referral) before retrying.
func (p *Packet) ClearPayload() {
	p.Msg.Answer = nil
	p.Msg.Ns = nil
	p.Msg.Extra = nil
}

// Recycle reuses p for a new question: it preserves the 12-byte header
// (ID, opcode, flag bits, rcode) and, if keepQuestion is true, the
// question section, zeroes
// section counts (by clearing the RR slices) and otherwise resets state so
// the same *Packet can be issued against a different nameserver without
// reallocating, for reuse between referral hops.
func (p *Packet) Recycle(keepQuestion bool) {
	hdr := p.Msg.MsgHdr
	q := p.Msg.Question
	*p.Msg = dns.Msg{}
	p.Msg.MsgHdr = hdr
	if keepQuestion {
		p.Msg.Question = q
	}
}

// NewQuery builds a fresh outbound query packet with EDNS0 set: DO bit
// required for DNSSEC, advertised payload size 4096.
func NewQuery(q Question, wantDNSSEC bool) *Packet {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(q.Name), q.Type)
	m.Question[0].Qclass = q.Class
	m.SetEdns0(4096, wantDNSSEC)
	m.RecursionDesired = false
	return &Packet{Msg: m}
}
