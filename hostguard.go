package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
)

// allowLocalEnv lets asset hosts resolve to loopback and private addresses.
// Set it for local CMS mirrors and in tests.
const allowLocalEnv = "CONTENTFUL2MD_ALLOW_LOCAL"

// blockedHostError is returned when an asset host resolves only to
// addresses the exporter does not download from.
type blockedHostError struct {
	Host  string
	Addrs []netip.Addr
}

func (e *blockedHostError) Error() string {
	return fmt.Sprintf("asset host %s resolves only to non-public addresses %v", e.Host, e.Addrs)
}

// publicAddr reports whether a is a routable unicast address outside the
// loopback, private and link-local ranges.
func publicAddr(a netip.Addr) bool {
	a = a.Unmap()
	switch {
	case !a.IsValid(),
		a.IsUnspecified(),
		a.IsLoopback(),
		a.IsPrivate(),
		a.IsLinkLocalUnicast(),
		a.IsLinkLocalMulticast(),
		a.IsInterfaceLocalMulticast():
		return false
	}
	return true
}

// hostGuard resolves asset hosts and hands out only the addresses that may
// be dialed. Asset URLs come from entry content, not from configuration.
type hostGuard struct {
	resolver   *net.Resolver
	allowLocal bool
}

func newHostGuard() *hostGuard {
	return &hostGuard{
		resolver:   net.DefaultResolver,
		allowLocal: os.Getenv(allowLocalEnv) == "1",
	}
}

// resolve returns the dialable addresses of host in resolver order. IP
// literals are checked without a lookup.
func (g *hostGuard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	if a, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{a}
	} else {
		addrs, err = g.resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, fmt.Errorf("resolving asset host %s: %w", host, err)
		}
	}
	if g.allowLocal {
		return addrs, nil
	}

	var allowed []netip.Addr
	for _, a := range addrs {
		if publicAddr(a) {
			allowed = append(allowed, a.Unmap())
		}
	}
	if len(allowed) == 0 {
		return nil, &blockedHostError{Host: host, Addrs: addrs}
	}
	return allowed, nil
}

// dial connects to the first reachable address that resolve allowed for
// addr's host. The vetted address is dialed directly so the name is not
// looked up a second time between check and connect.
func (g *hostGuard) dial(ctx context.Context, d *net.Dialer, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	var firstErr error
	for _, a := range addrs {
		conn, err := d.DialContext(ctx, network, net.JoinHostPort(a.String(), port))
		if err == nil {
			return conn, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
