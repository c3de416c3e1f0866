package icapclient

import (
	"context"
	"sync"
)

// Client is the entry point callers hold onto: the remote service's
// identity, an injected connection manager, and the one piece of shared
// mutable state the engine keeps — the cached OPTIONS negotiation result,
// per §5.
type Client struct {
	svc     ServiceInformation
	manager ConnectionManager

	mu  sync.Mutex
	cfg *RemoteServiceConfiguration

	compareIdenticalContent bool
}

// NewClient builds a Client for the given remote service. Passing a nil
// manager falls back to the built-in TCP/TLS dialer (§4.2).
func NewClient(svc ServiceInformation, manager ConnectionManager) *Client {
	if manager == nil {
		manager = NewDefaultConnectionManager()
	}
	return &Client{svc: svc, manager: manager}
}

// SetCompareVerifyIdenticalContent toggles the duplex-digest comparison
// described in §4.4 stage 6 / §4.5. It returns the client so callers can
// chain it onto construction, per §6's client contract.
func (c *Client) SetCompareVerifyIdenticalContent(enabled bool) *Client {
	c.compareIdenticalContent = enabled
	return c
}

// Options runs (or re-runs) the OPTIONS negotiation with default request
// parameters and caches the result.
func (c *Client) Options(ctx context.Context) (*RemoteServiceConfiguration, error) {
	return c.OptionsWithRequestInformation(ctx, DefaultRequestInformation())
}

// OptionsWithRequestInformation runs OPTIONS with caller-supplied
// parameters (timeouts, user agent, API version) and caches the result.
// On failure the cache is cleared, per §4.3/§7.
func (c *Client) OptionsWithRequestInformation(ctx context.Context, reqInfo RequestInformation) (*RemoteServiceConfiguration, error) {
	reqInfo = reqInfo.withDefaults()

	cfg, err := negotiateOptions(ctx, c.manager, c.svc, reqInfo)
	if err != nil {
		c.mu.Lock()
		c.cfg = nil
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	return cfg, nil
}

// remoteConfiguration returns the cached OPTIONS result, negotiating one
// first if the cache is empty. The cache write is the only state this
// client shares across concurrent callers, guarded by mu per §5.
func (c *Client) remoteConfiguration(ctx context.Context, reqInfo RequestInformation) (*RemoteServiceConfiguration, error) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if cfg != nil {
		return cfg, nil
	}

	return c.OptionsWithRequestInformation(ctx, reqInfo)
}

// Validate runs one REQMOD/RESPMOD/FILEMOD adaptation call, per §6's
// client contract. A nil reqInfo uses DefaultRequestInformation.
func (c *Client) Validate(ctx context.Context, mode Mode, reqInfo *RequestInformation, resource Resource) (*HeaderInformation, error) {
	info := DefaultRequestInformation()
	if reqInfo != nil {
		info = reqInfo.withDefaults()
	}
	return c.validate(ctx, mode, info, resource)
}
