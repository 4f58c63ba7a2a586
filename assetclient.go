package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// assetTransport downloads assets with a Firefox TLS fingerprint, since
// image CDNs behind bot protection reject Go's default ClientHello.
//
// Connections are kept per host for the whole export: an HTTP/2 host shares
// one ClientConn, and an HTTP/1.1 host goes through a keep-alive
// http.Transport. Every dial goes through guard.
type assetTransport struct {
	guard   *hostGuard
	dialer  *net.Dialer
	rootCAs *x509.CertPool // nil uses the system roots

	plain   *http.Transport // http:// URLs, and all URLs when proxied
	h1      *http.Transport // https hosts that negotiated http/1.1
	h2      *http2.Transport
	proxied bool

	mu      sync.Mutex
	h2Conns map[string]*http2.ClientConn // by host:port
	h1Hosts map[string]bool
	handoff map[string]net.Conn // first http/1.1 conn of a host, dialed before its protocol was known
}

func newAssetTransport(proxyAddr string, timeout time.Duration) *assetTransport {
	t := &assetTransport{
		guard:   newHostGuard(),
		dialer:  &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second},
		h2:      &http2.Transport{ReadIdleTimeout: 30 * time.Second},
		h2Conns: map[string]*http2.ClientConn{},
		h1Hosts: map[string]bool{},
		handoff: map[string]net.Conn{},
	}
	t.plain = &http.Transport{
		DialContext:         t.dialGuarded,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyAddr != "" {
		if proxyURL, err := url.Parse(proxyAddr); err == nil {
			// uTLS cannot run inside a CONNECT tunnel, so proxied downloads
			// use standard TLS. The proxy itself is a configured host.
			t.plain.Proxy = http.ProxyURL(proxyURL)
			t.plain.DialContext = t.dialer.DialContext
			t.proxied = true
		}
	}
	t.h1 = &http.Transport{
		DialTLSContext:      t.dialH1,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return t
}

// newAssetClient returns the client the asset fetcher downloads with.
func newAssetClient(proxyAddr string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newAssetTransport(proxyAddr, timeout),
	}
}

func (t *assetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.proxied {
		// The proxy resolves the name, so check it here instead of at dial.
		if _, err := t.guard.resolve(req.Context(), req.URL.Hostname()); err != nil {
			return nil, err
		}
		return t.plain.RoundTrip(req)
	}
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}

	key := tlsHostPort(req.URL)
	if cc := t.cachedH2(key); cc != nil {
		return cc.RoundTrip(req)
	}
	t.mu.Lock()
	h1 := t.h1Hosts[key]
	t.mu.Unlock()
	if h1 {
		return t.h1.RoundTrip(req)
	}

	conn, err := t.dialTLS(req.Context(), key)
	if err != nil {
		return nil, err
	}
	if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
		t.mu.Lock()
		t.h1Hosts[key] = true
		t.handoff[key] = conn
		t.mu.Unlock()
		return t.h1.RoundTrip(req)
	}

	cc, err := t.h2.NewClientConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	t.mu.Lock()
	t.h2Conns[key] = cc
	t.mu.Unlock()
	return cc.RoundTrip(req)
}

// cachedH2 returns the open HTTP/2 connection for key, dropping it once the
// server stops accepting streams on it.
func (t *assetTransport) cachedH2(key string) *http2.ClientConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	cc, ok := t.h2Conns[key]
	if !ok {
		return nil
	}
	if !cc.CanTakeNewRequest() {
		delete(t.h2Conns, key)
		retireH2(cc)
		return nil
	}
	return cc
}

// retireH2 closes cc once its running streams, if any, have finished.
func retireH2(cc *http2.ClientConn) {
	if cc.State().StreamsActive == 0 {
		cc.Close()
		return
	}
	go cc.Shutdown(context.Background())
}

// CloseIdleConnections empties the pools. Connections with a request in
// flight close once it finishes. http.Client.CloseIdleConnections forwards
// here.
func (t *assetTransport) CloseIdleConnections() {
	t.plain.CloseIdleConnections()
	t.h1.CloseIdleConnections()

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, cc := range t.h2Conns {
		delete(t.h2Conns, key)
		retireH2(cc)
	}
	for key, conn := range t.handoff {
		conn.Close()
		delete(t.handoff, key)
	}
}

func (t *assetTransport) dialGuarded(ctx context.Context, network, addr string) (net.Conn, error) {
	return t.guard.dial(ctx, t.dialer, network, addr)
}

// dialH1 feeds the h1 transport. The connection RoundTrip dialed to learn a
// host's protocol is used first so it is not wasted.
func (t *assetTransport) dialH1(ctx context.Context, network, addr string) (net.Conn, error) {
	t.mu.Lock()
	conn, ok := t.handoff[addr]
	delete(t.handoff, addr)
	t.mu.Unlock()
	if ok {
		return conn, nil
	}
	fc, err := t.dialTLS(ctx, addr)
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// dialTLS opens a guarded TCP connection to addr and runs a Firefox
// handshake over it.
func (t *assetTransport) dialTLS(ctx context.Context, addr string) (*fingerprintConn, error) {
	raw, err := t.dialGuarded(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	uc := utls.UClient(raw, &utls.Config{ServerName: host, RootCAs: t.rootCAs}, utls.HelloFirefox_120)
	if err := uc.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("TLS handshake with %s: %w", host, err)
	}
	return &fingerprintConn{uc}, nil
}

// fingerprintConn exposes a uTLS connection's state as crypto/tls's
// ConnectionState, which net/http and http2 read from the conn.
type fingerprintConn struct {
	*utls.UConn
}

func (c *fingerprintConn) ConnectionState() tls.ConnectionState {
	s := c.UConn.ConnectionState()
	return tls.ConnectionState{
		Version:                    s.Version,
		HandshakeComplete:          s.HandshakeComplete,
		CipherSuite:                s.CipherSuite,
		NegotiatedProtocol:         s.NegotiatedProtocol,
		NegotiatedProtocolIsMutual: s.NegotiatedProtocolIsMutual,
		ServerName:                 s.ServerName,
		PeerCertificates:           s.PeerCertificates,
		VerifiedChains:             s.VerifiedChains,
	}
}

// tlsHostPort is the host:port key http.Transport also dials for u.
func tlsHostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
