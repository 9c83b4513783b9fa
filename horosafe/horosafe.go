// Package horosafe holds the security primitives templio relies on: secret
// length checks, outbound URL screening (SSRF), and bounded body reads.
//
// Outbound requests happen in two places: the image inliner fetching
// user-referenced images, and the headless renderer loading subresources of
// user-supplied documents. Both screen targets with ValidateURL or
// IsPrivateIP before connecting.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MinSecretLen is the minimum length for symmetric secrets (JWT HS256).
const MinSecretLen = 32

// MaxResponseBody is the default cap for HTTP response body reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

var (
	// ErrSecretTooShort is returned when a secret is shorter than MinSecretLen.
	ErrSecretTooShort = fmt.Errorf("horosafe: secret must be at least %d bytes", MinSecretLen)

	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")

	// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")

	// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
	ErrTooLarge = errors.New("horosafe: body exceeds limit")
)

// privateNets are the ranges IsPrivateIP rejects on top of the loopback and
// link-local checks of package net.
var privateNets = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"fc00::/7",
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// ValidateURL checks that rawURL is http(s), has a host, and does not point
// at a private, loopback or link-local address. Hostnames are resolved so a
// public name pointing at an internal address is rejected too. A resolution
// failure is let through: the connection attempt fails on its own.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return ErrSSRF
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && IsPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// IsPrivateIP reports whether ip is loopback, link-local, unspecified or in
// a private range.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// LimitedReadAll reads at most maxBytes from r and fails with ErrTooLarge
// when more is available.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("horosafe: bad CIDR " + c)
		}
		out = append(out, n)
	}
	return out
}
