package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// UserAgent is sent with every request.
// It can be set at build time with -ldflags "-X ...transport.UserAgent=registry-cleaner/v1.0".
var UserAgent = "registry-cleaner/unknown"

// Errors for session operations.
var (
	// ErrConnection indicates a dial, handshake, timeout or mid-request transport failure.
	ErrConnection = fmt.Errorf("registry connection failed: %w", cerrdefs.ErrUnavailable)
	// ErrTrustConfig indicates the configured certificate authority could not be loaded.
	ErrTrustConfig = fmt.Errorf("unusable certificate authority: %w", cerrdefs.ErrInvalidArgument)
	// errInvalidTarget indicates a request target that is not a valid URL reference.
	errInvalidTarget = errors.New("invalid request target")
)

// Response is a fully read registry response.
type Response struct {
	StatusCode int         // Numeric status, e.g. 202.
	Status     string      // Status line, e.g. "202 Accepted".
	Header     http.Header // Response headers.
	Body       []byte      // Complete body; empty for HEAD.
	URL        *url.URL    // URL the request was sent to.
}

// Reason returns the reason phrase of the status line, e.g. "Not Found".
func (r *Response) Reason() string {
	return strings.TrimSpace(strings.TrimPrefix(r.Status, strconv.Itoa(r.StatusCode)))
}

// IsSuccess reports whether the status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// IsRedirect reports whether the status is 3xx.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}

// Session is an open TLS session with one registry.
//
// A Session is owned by a single registry client. Do calls are serialized.
type Session struct {
	mu        sync.Mutex // Serializes request/response exchanges.
	baseURL   *url.URL
	timeout   time.Duration
	tlsConfig *tls.Config
	dialer    *net.Dialer
	transport *http.Transport
	client    *http.Client

	connMu      sync.Mutex
	pending     net.Conn // Connection established by Open, not yet adopted by the transport.
	pendingAddr string
	conns       map[*readTimeoutConn]struct{}
	active      bool // A request is in flight.
}

// Open establishes a verified TLS connection to the endpoint.
//
// Parameters:
//   - ctx: Context for the initial dial and handshake.
//   - endpoint: Registry host, port and base path.
//   - trust: Certificate authority selection.
//   - timeout: Bound on connection setup, on the wait for a response and on each read of it.
//
// Returns:
//   - *Session: Open session ready for Do.
//   - error: ErrTrustConfig if the CA cannot be loaded, ErrConnection if the registry is unreachable.
func Open(
	ctx context.Context,
	endpoint types.Endpoint,
	trust types.TrustConfig,
	timeout time.Duration,
) (*Session, error) {
	fields := logrus.Fields{
		"address": endpoint.Address(),
		"timeout": timeout,
	}

	tlsConfig, err := NewTLSConfig(trust)
	if err != nil {
		return nil, err
	}

	session := &Session{
		baseURL:   &url.URL{Scheme: "https", Host: endpoint.Address()},
		timeout:   timeout,
		tlsConfig: tlsConfig,
		dialer:    &net.Dialer{Timeout: timeout},
		conns:     make(map[*readTimeoutConn]struct{}),
	}

	conn, err := session.dial(ctx, "tcp", endpoint.Address())
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Failed to open registry session")

		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, endpoint.Address(), err)
	}

	session.pending = conn
	session.pendingAddr = endpoint.Address()

	session.transport = &http.Transport{
		DialTLSContext:        session.dialTLSContext,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
		MaxConnsPerHost:       1,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     false,
	}
	session.client = &http.Client{
		Transport: session.transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	logrus.WithFields(fields).Debug("Opened registry session")

	return session, nil
}

// Do sends one request and reads the whole response.
//
// The target is either a path with optional query, resolved against the
// session endpoint, or an absolute URL. Redirects are returned as-is.
//
// Parameters:
//   - ctx: Context for the request.
//   - method: HTTP method.
//   - target: Path or absolute URL.
//   - header: Request headers, may be nil.
//
// Returns:
//   - *Response: Status, headers and body.
//   - error: ErrConnection on transport failure.
func (s *Session) Do(
	ctx context.Context,
	method string,
	target string,
	header http.Header,
) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requestURL, err := s.resolve(target)
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"method": method,
		"url":    requestURL.String(),
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidTarget, err)
	}

	if header != nil {
		req.Header = header.Clone()
	}

	req.Header.Set("User-Agent", UserAgent)

	logrus.WithFields(fields).Debug("Sending registry request")

	s.setActive(true)
	defer s.setActive(false)

	resp, err := s.client.Do(req)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Registry request failed")

		return nil, fmt.Errorf("%w: %s %s: %w", ErrConnection, method, requestURL, err)
	}
	defer resp.Body.Close()

	// Drain the body so the connection can carry the next exchange.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Failed to read registry response")

		return nil, fmt.Errorf("%w: reading %s %s: %w", ErrConnection, method, requestURL, err)
	}

	logrus.WithFields(fields).WithFields(logrus.Fields{
		"status": resp.Status,
		"bytes":  len(body),
	}).Debug("Received registry response")

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
		URL:        requestURL,
	}, nil
}

// Close releases the session's connection. It is safe to call more than once.
func (s *Session) Close() {
	s.connMu.Lock()
	pending := s.pending
	s.pending = nil
	s.connMu.Unlock()

	if pending != nil {
		_ = pending.Close()
	}

	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
}

// resolve turns a request target into an absolute URL.
//
// A target starting with "/" is always a path on the session endpoint, even
// when it starts with "//".
func (s *Session) resolve(target string) (*url.URL, error) {
	if strings.HasPrefix(target, "/") {
		resolved, err := url.Parse(s.baseURL.Scheme + "://" + s.baseURL.Host + target)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errInvalidTarget, target, err)
		}

		return resolved, nil
	}

	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", errInvalidTarget, target, err)
	}

	return s.baseURL.ResolveReference(ref), nil
}

// setActive arms or clears the per-read deadline on every open connection.
func (s *Session) setActive(active bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.active = active

	for conn := range s.conns {
		conn.setActive(active)
	}
}

// track registers a connection so request activity reaches it.
func (s *Session) track(conn *readTimeoutConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.conns[conn] = struct{}{}
	conn.setActive(s.active)
}

// untrack forgets a closed connection.
func (s *Session) untrack(conn *readTimeoutConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	delete(s.conns, conn)
}

// dialTLSContext hands the connection established by Open to the transport
// before dialing any new one.
func (s *Session) dialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	s.connMu.Lock()
	if s.pending != nil && addr == s.pendingAddr {
		conn := s.pending
		s.pending = nil
		s.connMu.Unlock()

		return conn, nil
	}
	s.connMu.Unlock()

	return s.dial(ctx, network, addr)
}

// dial opens a TCP connection and completes a verified TLS handshake.
func (s *Session) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	raw, err := s.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	config := s.tlsConfig.Clone()
	config.ServerName = host

	handshakeCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc

		handshakeCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	conn := tls.Client(raw, config)
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = raw.Close()

		return nil, err
	}

	if s.timeout <= 0 {
		return conn, nil
	}

	wrapped := &readTimeoutConn{Conn: conn, timeout: s.timeout, onClose: s.untrack}
	s.track(wrapped)

	return wrapped, nil
}

// readTimeoutConn bounds each Read by timeout while a request is in flight.
// An idle connection has no read deadline.
type readTimeoutConn struct {
	net.Conn

	timeout time.Duration
	onClose func(*readTimeoutConn)

	mu     sync.Mutex
	active bool
}

// Read refreshes the read deadline before every read.
func (c *readTimeoutConn) Read(p []byte) (int, error) {
	c.mu.Lock()

	var deadline time.Time
	if c.active {
		deadline = time.Now().Add(c.timeout)
	}

	err := c.Conn.SetReadDeadline(deadline)
	c.mu.Unlock()

	if err != nil {
		return 0, err
	}

	return c.Conn.Read(p)
}

// Close closes the connection and stops tracking it.
func (c *readTimeoutConn) Close() error {
	c.onClose(c)

	return c.Conn.Close()
}

// setActive arms a deadline for a read already blocked on an idle
// connection, or clears it once the request is done.
func (c *readTimeoutConn) setActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = active

	var deadline time.Time
	if active {
		deadline = time.Now().Add(c.timeout)
	}

	_ = c.Conn.SetReadDeadline(deadline)
}
