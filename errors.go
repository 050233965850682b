package kresolved

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a resolver error without tying it to a concrete Go type,
// so callers can switch on behavior (retry locally vs. surface to parent)
// instead of comparing sentinel values.
type Kind int

const (
	// InvalidArgument means a caller passed a malformed name, type or
	// configuration value.
	InvalidArgument Kind = iota
	// Parse means wire decoding failed (bad compression pointer, truncated
	// rdata, oversized name).
	Parse
	// Timeout means an outbound query did not receive a response in time.
	Timeout
	// Network means the transport reported a non-timeout I/O failure.
	Network
	// NoResources means a required resource (nameserver address, DNSKEY,
	// plan slot) could not be allocated.
	NoResources
	// NotFound means a lookup came back empty where data was required.
	NotFound
	// Loop means a plan cycle or CNAME/referral loop was detected.
	Loop
	// Mismatch means a referral or delegation didn't match the expected
	// zone, or an out-of-bailiwick record was seen.
	Mismatch
	// CryptoBogus means DNSSEC validation ran and failed: the data is
	// provably invalid.
	CryptoBogus
	// CryptoInsecure means DNSSEC validation determined the zone is
	// legitimately unsigned.
	CryptoInsecure
	// LimitExceeded means a bounded resource (the driver's step budget, the
	// CNAME chain length) was exhausted.
	LimitExceeded
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case Parse:
		return "PARSE"
	case Timeout:
		return "TIMEOUT"
	case Network:
		return "NETWORK"
	case NoResources:
		return "NO_RESOURCES"
	case NotFound:
		return "NOT_FOUND"
	case Loop:
		return "LOOP"
	case Mismatch:
		return "MISMATCH"
	case CryptoBogus:
		return "CRYPTO_BOGUS"
	case CryptoInsecure:
		return "CRYPTO_INSECURE"
	case LimitExceeded:
		return "LIMIT_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// Error is a kinded, stack-carrying error. The stack comes from
// github.com/pkg/errors so a SERVFAIL surfaced several plan levels up can
// still be traced back to the query and nameserver that produced it.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap annotates err with a Kind and a stack trace. A nil err returns nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrap(err, msg)}
}

// New creates a new Kind-tagged error with a stack trace attached at the
// call site.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// KindOf extracts the Kind from err. The boolean is false (and the Kind is
// the zero value) if err was never tagged.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Recoverable reports whether the local iterator should retry with another
// nameserver rather than propagate the failure to the parent query.
func Recoverable(err error) bool {
	kind, tagged := KindOf(err)
	if !tagged {
		return false
	}
	switch kind {
	case Timeout, Network, NotFound, Parse, Mismatch:
		return true
	default:
		return false
	}
}
