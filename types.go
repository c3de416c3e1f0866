package icapclient

import (
	"io"
	"net/url"
	"strings"
	"time"
)

// Mode is the ICAP adaptation method requested of the remote service.
type Mode int

const (
	// REQMOD adapts an HTTP request.
	REQMOD Mode = iota
	// RESPMOD adapts an HTTP response.
	RESPMOD
	// FILEMOD adapts an opaque file object; wire-compatible with RESPMOD
	// but framed under its own Encapsulated section names.
	FILEMOD
)

// String renders the mode the way it appears on the wire (the ICAP request
// line's method token).
func (m Mode) String() string {
	switch m {
	case REQMOD:
		return "REQMOD"
	case RESPMOD:
		return "RESPMOD"
	case FILEMOD:
		return "FILEMOD"
	default:
		return "UNKNOWN"
	}
}

// tag is the Encapsulated section prefix used for this mode, e.g. "req" in
// "req-body=123".
func (m Mode) tag() string {
	switch m {
	case REQMOD:
		return "req"
	case RESPMOD:
		return "res"
	case FILEMOD:
		return "file"
	default:
		return "req"
	}
}

func parseMode(s string) (Mode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "REQMOD":
		return REQMOD, true
	case "RESPMOD":
		return RESPMOD, true
	case "FILEMOD":
		return FILEMOD, true
	default:
		return Mode(-1), false
	}
}

// ServiceInformation identifies a remote ICAP service. It is immutable for
// the lifetime of the client that holds it.
type ServiceInformation struct {
	Host        string
	Port        int
	ServiceName string
	Secure      bool
}

// ParseServiceURL builds a ServiceInformation from an "icap://host:port/service"
// or "icaps://host:port/service" URL string, the shape the out-of-scope CLI
// factory hands callers in practice.
func ParseServiceURL(rawURL string) (ServiceInformation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ServiceInformation{}, err
	}

	secure := false
	switch strings.ToLower(u.Scheme) {
	case "icap":
		secure = false
	case "icaps":
		secure = true
	default:
		return ServiceInformation{}, ErrInvalidScheme
	}

	if u.Hostname() == "" {
		return ServiceInformation{}, ErrInvalidHost
	}

	port := 1344
	if p := u.Port(); p != "" {
		if n, convErr := parsePositiveInt(p); convErr == nil {
			port = n
		}
	}

	return ServiceInformation{
		Host:        u.Hostname(),
		Port:        port,
		ServiceName: strings.TrimPrefix(u.Path, "/"),
		Secure:      secure,
	}, nil
}

// Allow204 is the tri-state opt-in for ICAP's 204-No-Content short circuit.
type Allow204 int

const (
	// Allow204Auto lets the server's OPTIONS-advertised support decide.
	Allow204Auto Allow204 = iota
	Allow204True
	Allow204False
)

// reservedHeaderNames are headers the engine sets itself; any custom header
// using one of these names (case-insensitively) is rejected.
var reservedHeaderNames = map[string]bool{
	"host":         true,
	"connection":   true,
	"user-agent":   true,
	"preview":      true,
	"encapsulated": true,
	"allow":        true,
}

// RequestInformation carries the per-call parameters of a single Validate
// invocation: everything that isn't the resource itself.
type RequestInformation struct {
	APIVersion      string
	UserAgent       string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	Allow204        Allow204
	Headers         map[string]string
	RequestSource   string
	MaxHeaderBytes  int
	PreviewOverride *int
}

// DefaultRequestInformation returns the zero-value-safe defaults the engine
// falls back to when a caller passes a nil RequestInformation.
func DefaultRequestInformation() RequestInformation {
	return RequestInformation{
		APIVersion:     "1.0",
		UserAgent:      "icap-client/1.0",
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
		Allow204:       Allow204Auto,
		RequestSource:  "localhost",
		MaxHeaderBytes: 64 * 1024,
	}
}

func (r RequestInformation) withDefaults() RequestInformation {
	d := DefaultRequestInformation()
	if r.APIVersion != "" {
		d.APIVersion = r.APIVersion
	}
	if r.UserAgent != "" {
		d.UserAgent = r.UserAgent
	}
	if r.ConnectTimeout != 0 {
		d.ConnectTimeout = r.ConnectTimeout
	}
	if r.ReadTimeout != 0 {
		d.ReadTimeout = r.ReadTimeout
	}
	if r.RequestSource != "" {
		d.RequestSource = r.RequestSource
	}
	if r.MaxHeaderBytes != 0 {
		d.MaxHeaderBytes = r.MaxHeaderBytes
	}
	d.Allow204 = r.Allow204
	d.Headers = r.Headers
	d.PreviewOverride = r.PreviewOverride
	return d
}

// sanitizedHeaders returns the caller's custom headers with reserved names
// dropped and whitespace trimmed, in the order Go's map ranges them in
// (callers should not depend on ordering beyond "not reserved"). Per §4.1,
// a reserved name is logged and dropped rather than rejected outright.
func (r RequestInformation) sanitizedHeaders() map[string]string {
	out := make(map[string]string, len(r.Headers))
	for name, value := range r.Headers {
		trimmedName := strings.TrimSpace(name)
		trimmedValue := strings.TrimSpace(value)
		if trimmedValue == "" {
			continue
		}
		if reservedHeaderNames[strings.ToLower(trimmedName)] {
			logWarn("dropping reserved custom header", "name", trimmedName, "err", ErrReservedHeader)
			continue
		}
		out[trimmedName] = trimmedValue
	}
	return out
}

// Resource is the payload submitted for adaptation: a logical name, its
// exact length in bytes, and a single-pass readable body. The engine reads
// Body exactly once, in order.
type Resource struct {
	Name   string
	Length int64
	Body   io.Reader
}

func (r Resource) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyResourceName
	}
	if r.Length <= 0 {
		return ErrInvalidResourceLength
	}
	if r.Body == nil {
		return ErrNilResourceBody
	}
	return nil
}

// escapedPath returns the resource name, percent-encoded as a URL path
// segment, for use in the synthetic inner HTTP request line.
func (r Resource) escapedPath() string {
	u := url.URL{Path: "/" + strings.TrimPrefix(r.Name, "/")}
	return u.EscapedPath()
}

// RemoteServiceConfiguration is the result of an OPTIONS negotiation,
// cached on the Client until explicitly refreshed or invalidated by a
// later OPTIONS failure.
type RemoteServiceConfiguration struct {
	NegotiatedAt time.Time
	Methods      []Mode
	PreviewSize  int
	Allow204     bool
	Headers      *HeaderInformation
}

func (c *RemoteServiceConfiguration) supports(m Mode) bool {
	for _, supported := range c.Methods {
		if supported == m {
			return true
		}
	}
	return false
}

// headerField is one "Name: Value" pair, storing the name exactly as seen
// on the wire (or as set by the caller).
type headerField struct {
	Name  string
	Value string
}

// HeaderInformation is the parsed ICAP response envelope: an integer status,
// a reason phrase, and an ordered, case-insensitive multi-map of headers.
// Unlike textproto.MIMEHeader, Headers is a plain ordered slice: lookups are
// case-insensitive but storage keeps both the original name casing and
// insertion order, per §3/§8's round-trip requirements.
type HeaderInformation struct {
	Status  int
	Reason  string
	Headers []headerField
}

// NewHeaderInformation returns an empty, ready-to-use HeaderInformation.
func NewHeaderInformation() *HeaderInformation {
	return &HeaderInformation{}
}

// Get does a case-insensitive lookup, returning the first value or "".
func (h *HeaderInformation) Get(name string) string {
	if h == nil {
		return ""
	}
	for _, f := range h.Headers {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value recorded for name, case-insensitively, in the
// order they were added.
func (h *HeaderInformation) Values(name string) []string {
	if h == nil {
		return nil
	}
	var out []string
	for _, f := range h.Headers {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether name was present at all.
func (h *HeaderInformation) Has(name string) bool {
	return len(h.Values(name)) > 0
}

// add appends a header, preserving its casing and position.
func (h *HeaderInformation) add(name, value string) {
	h.Headers = append(h.Headers, headerField{Name: name, Value: value})
}

// set replaces every existing value for name (case-insensitively) with a
// single value, at the position of its first occurrence, or appends it if
// name wasn't present, matching textproto.MIMEHeader.Set's semantics.
func (h *HeaderInformation) set(name, value string) {
	filtered := make([]headerField, 0, len(h.Headers)+1)
	replaced := false
	for _, f := range h.Headers {
		if strings.EqualFold(f.Name, name) {
			if !replaced {
				filtered = append(filtered, headerField{Name: name, Value: value})
				replaced = true
			}
			continue
		}
		filtered = append(filtered, f)
	}
	if !replaced {
		filtered = append(filtered, headerField{Name: name, Value: value})
	}
	h.Headers = filtered
}

// del removes every header matching name, case-insensitively.
func (h *HeaderInformation) del(name string) {
	filtered := h.Headers[:0]
	for _, f := range h.Headers {
		if !strings.EqualFold(f.Name, name) {
			filtered = append(filtered, f)
		}
	}
	h.Headers = filtered
}

// Verdict is the outcome of running the verdict interpreter over a
// completed adaptation exchange.
type Verdict struct {
	Kind        VerdictKind
	Explanation string
}

// VerdictKind enumerates the possible adaptation outcomes.
type VerdictKind int

const (
	VerdictClean VerdictKind = iota
	VerdictThreatFound
	VerdictNotIdentical
	VerdictUnknown
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictClean:
		return "clean"
	case VerdictThreatFound:
		return "threat-found"
	case VerdictNotIdentical:
		return "not-identical"
	default:
		return "unknown"
	}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrInvalidHost
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, ErrInvalidHost
	}
	return n, nil
}
