package icapclient

import (
	"errors"
	"fmt"
)

// sentinel errors for invalid caller input and for malformed or missing
// wire/transport state; these never wrap a deeper cause, so callers can
// compare with errors.Is directly.
var (
	// ErrInvalidScheme is used when a service URL's scheme is not icap:// or icaps://
	ErrInvalidScheme = errors.New("the url scheme must be icap:// or icaps://")

	// ErrInvalidHost is used when a service URL has no host
	ErrInvalidHost = errors.New("the requested host is invalid")

	// ErrEmptyResourceName is used when a Resource has an empty logical name
	ErrEmptyResourceName = errors.New("resource name must not be empty")

	// ErrInvalidResourceLength is used when a Resource's length is not positive
	ErrInvalidResourceLength = errors.New("resource length must be greater than zero")

	// ErrNilResourceBody is used when a Resource has no readable body
	ErrNilResourceBody = errors.New("resource body must not be nil")

	// ErrUnsupportedMode is used when an OPTIONS Methods header names a method this client does not recognize
	ErrUnsupportedMode = errors.New("unsupported icap mode")

	// ErrReservedHeader is used when a caller supplies a custom header using a reserved name
	ErrReservedHeader = errors.New("header name is reserved and cannot be overridden")

	// ErrInvalidTCPMsg is used when a wire message can't be parsed as an ICAP or HTTP message
	ErrInvalidTCPMsg = errors.New("invalid icap message")

	// ErrNoTransport is used when a transport manager returns a nil transport without an error
	ErrNoTransport = errors.New("connection manager returned a nil transport")

	// errNotFound backs the IOError raised when the remote service answers
	// a validate call with a 404, per §7's NotFound row. A non-200 OPTIONS
	// answer, 404 included, is wrapped as an UnknownResponseError instead.
	errNotFound = errors.New("ICAP Service not found")
)

// IOError wraps a transport-level failure: dial errors, timeouts, short
// reads/writes, and non-200 OPTIONS responses. It is always the result of
// something going wrong on the wire rather than a caller mistake.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("icap: io error: %v", e.Err)
	}
	return fmt.Sprintf("icap: io error during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func newIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}

// UnknownResponseError is returned when the remote service answers with an
// ICAP status this client does not know how to interpret (anything outside
// 100, 200, 204 and 404).
type UnknownResponseError struct {
	Status  int
	Reason  string
	Headers *HeaderInformation
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("icap: unexpected response status %d %s", e.Status, e.Reason)
}

// ContentBlockedError is returned when the verdict interpreter decides the
// remote service flagged the resource as infected, policy-violating, or
// otherwise non-identical to what was submitted.
type ContentBlockedError struct {
	Message     string
	Explanation string
	Headers     *HeaderInformation
	Verdict     Verdict
}

func (e *ContentBlockedError) Error() string {
	if e.Explanation != "" && e.Explanation != "n/a" {
		return fmt.Sprintf("icap: %s: %s", e.Message, e.Explanation)
	}
	return fmt.Sprintf("icap: %s", e.Message)
}
