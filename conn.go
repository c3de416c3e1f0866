package icapclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"
)

// Transport is the byte-stream abstraction the adaptation engine drives.
// It wraps a plain or TLS socket uniformly; write paths are fire-and-forget
// from the engine's perspective, with errors surfacing on the next Flush or
// read, matching §4.2.
type Transport interface {
	io.Writer
	WriteString(s string) (int, error)
	Flush() error
	// Reader exposes the buffered reader used for header-block parsing and
	// for bounded reads into a body sink.
	Reader() *bufio.Reader
	SetReadDeadline(t time.Time) error
	Close() error
}

// ICAPConnConfig configures a single transport acquisition.
type ICAPConnConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TLSConfig      *tls.Config
}

// icapConn is the default Transport implementation: a buffered net.Conn,
// optionally TLS-wrapped. The ICAP protocol has no notion of keep-alive
// from this client's point of view (every call sends Connection: close),
// so unlike a pooled driver it never reconnects on its own.
type icapConn struct {
	rwc net.Conn
	bw  *bufio.Writer
	br  *bufio.Reader
}

func (c *icapConn) Write(p []byte) (int, error) { return c.bw.Write(p) }

func (c *icapConn) WriteString(s string) (int, error) { return c.bw.WriteString(s) }

func (c *icapConn) Flush() error { return c.bw.Flush() }

func (c *icapConn) Reader() *bufio.Reader { return c.br }

func (c *icapConn) SetReadDeadline(t time.Time) error { return c.rwc.SetReadDeadline(t) }

func (c *icapConn) Close() error { return c.rwc.Close() }

// ConnectionManager acquires a Transport for one adaptation call. The
// manager owns any pooling; the engine never caches the transport it
// returns. Consumers may inject their own manager (e.g. a pooled one) in
// place of the default dialer below, per §6's connection manager contract.
type ConnectionManager interface {
	Open(ctx context.Context, svc ServiceInformation, cfg ICAPConnConfig) (Transport, error)
}

// defaultConnectionManager dials a fresh TCP (or TLS) socket per call. It
// implements ConnectionManager but performs no pooling of its own; a real
// pool is an external collaborator that satisfies the same interface.
type defaultConnectionManager struct{}

// NewDefaultConnectionManager returns the built-in dialer used when a
// Client is constructed without an injected ConnectionManager.
func NewDefaultConnectionManager() ConnectionManager {
	return defaultConnectionManager{}
}

func (defaultConnectionManager) Open(ctx context.Context, svc ServiceInformation, cfg ICAPConnConfig) (Transport, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	address := fmt.Sprintf("%s:%d", svc.Host, svc.Port)

	rawConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	var conn net.Conn = rawConn
	if svc.Secure {
		tlsCfg := cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: svc.Host, MinVersion: tls.VersionTLS12}
		}
		tlsConn := tls.Client(rawConn, tlsCfg)
		if cfg.ConnectTimeout > 0 {
			if err := tlsConn.SetDeadline(time.Now().Add(cfg.ConnectTimeout)); err != nil {
				rawConn.Close()
				return nil, err
			}
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	if cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &icapConn{
		rwc: conn,
		bw:  bufio.NewWriter(conn),
		br:  bufio.NewReader(conn),
	}, nil
}

// pipeBody copies exactly n bytes from r to w, returning the number of
// bytes copied or a negative sentinel alongside the framing error it hit.
// It satisfies the pipe_body(sink) -> i64 contract of §4.2.
func pipeBody(w io.Writer, r io.Reader, n int64) (int64, error) {
	copied, err := io.CopyN(w, r, n)
	if err != nil {
		return -1, err
	}
	return copied, nil
}
