// Package geo resolves client addresses to a coarse location. Lookups are
// best effort: callers treat any error as "no data".
package geo

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// Provider names
const (
	ProviderNone  = "none"
	ProviderIPAPI = "ipapi"
)

// ErrNoData is returned when the address is valid but has no known location
var ErrNoData = errors.New("no geolocation data")

// Locator maps an address to a location
type Locator interface {
	Locate(ctx context.Context, addr string) (domain.Geo, error)
}

// LocatorFunc adapts a function to the Locator interface
type LocatorFunc func(ctx context.Context, addr string) (domain.Geo, error)

// Locate calls f
func (f LocatorFunc) Locate(ctx context.Context, addr string) (domain.Geo, error) {
	return f(ctx, addr)
}

// Noop never resolves anything
type Noop struct{}

// Locate always returns ErrNoData
func (Noop) Locate(ctx context.Context, addr string) (domain.Geo, error) {
	return domain.Geo{}, ErrNoData
}

// NormalizeAddr strips a port and brackets from addr and returns the IP, or
// nil when addr is not an IP address
func NormalizeAddr(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")
	return net.ParseIP(addr)
}

// IsPublic reports whether ip can be located by a public database
func IsPublic(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ Locator = LocatorFunc(nil)
	_ Locator = Noop{}
)
