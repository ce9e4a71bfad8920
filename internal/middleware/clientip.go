package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIPExtractor extracts the real client IP from requests, honouring
// X-Forwarded-For only when the direct peer is a trusted proxy. Without
// trusted proxies only RemoteAddr is used.
type ClientIPExtractor struct {
	trustedCIDRs []*net.IPNet
}

// NewClientIPExtractor creates an extractor for the given proxy CIDRs or
// single addresses. Invalid entries are skipped; use ParseTrustedProxies to
// reject them up front.
func NewClientIPExtractor(trustedProxies []string) *ClientIPExtractor {
	cidrs := make([]*net.IPNet, 0, len(trustedProxies))
	for _, proxy := range trustedProxies {
		cidr, err := parseProxy(proxy)
		if err != nil {
			continue
		}
		cidrs = append(cidrs, cidr)
	}
	return &ClientIPExtractor{trustedCIDRs: cidrs}
}

// ParseTrustedProxies checks that every entry is a CIDR or an IP address.
func ParseTrustedProxies(trustedProxies []string) error {
	for _, proxy := range trustedProxies {
		if _, err := parseProxy(proxy); err != nil {
			return err
		}
	}
	return nil
}

func parseProxy(proxy string) (*net.IPNet, error) {
	proxy = strings.TrimSpace(proxy)
	if _, cidr, err := net.ParseCIDR(proxy); err == nil {
		return cidr, nil
	}
	ip := net.ParseIP(proxy)
	if ip == nil {
		return nil, fmt.Errorf("invalid trusted proxy %q", proxy)
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128 //nolint:mnd // IPv6 prefix length
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// Extract returns the client IP of r. When RemoteAddr is a trusted proxy,
// X-Forwarded-For is walked right-to-left and the first untrusted address
// wins.
func (e *ClientIPExtractor) Extract(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if len(e.trustedCIDRs) == 0 || !e.isTrusted(remoteIP) {
		return remoteIP
	}

	xff := r.Header.Get(HeaderXForwardedFor)
	if xff == "" {
		return remoteIP
	}

	ips := strings.Split(xff, ",")
	for i := len(ips) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(ips[i])
		if ip == "" {
			continue
		}
		if !e.isTrusted(ip) {
			return ip
		}
	}
	return remoteIP
}

func (e *ClientIPExtractor) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range e.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// stripPort removes the port from an address string.
// Handles both IPv4 ("192.168.1.1:8080") and IPv6 ("[::1]:8080") formats.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// globalExtractor is used when a middleware is built without
// WithClientIPExtractor. It trusts no proxy headers.
//
//nolint:gochecknoglobals // Package-level extractor set once at startup
var globalExtractor = NewClientIPExtractor(nil)

// SetGlobalIPExtractor sets the package-level ClientIPExtractor. Call it
// once during startup before any middleware is built.
func SetGlobalIPExtractor(e *ClientIPExtractor) {
	if e != nil {
		globalExtractor = e
	}
}
