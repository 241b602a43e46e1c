package httpx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	netproxy "golang.org/x/net/proxy"
)

// ProxyFuncFromString maps a proxy setting string to an http.Transport proxy
// func:
// - "" / "off" / "none" / "direct" (and friends): no proxy
// - "env": honor HTTP_PROXY / HTTPS_PROXY
// - anything else: a fixed http/https proxy URL
// socks5:// proxies are handled separately via SOCKS5DialContext.
func ProxyFuncFromString(raw string) (func(*http.Request) (*url.URL, error), error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	switch strings.ToLower(raw) {
	case "0", "false", "off", "no", "none", "direct":
		return nil, nil
	case "env":
		return http.ProxyFromEnvironment, nil
	default:
		u, err := ParseProxyURL(raw)
		if err != nil {
			return nil, err
		}
		return http.ProxyURL(u), nil
	}
}

func ParseProxyURL(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty proxy url")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q (only http/https)", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

func IsSOCKS5URL(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "socks5://")
}

// SOCKS5DialContext builds a DialContext func that tunnels through the given
// socks5://[user:pass@]host:port proxy.
func SOCKS5DialContext(raw string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(u.Scheme, "socks5") {
		return nil, fmt.Errorf("not a socks5 url: %q", raw)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, fmt.Errorf("missing host")
	}

	var auth *netproxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &netproxy.Auth{User: u.User.Username(), Password: pass}
	}

	dialer, err := netproxy.SOCKS5("tcp", u.Host, auth, netproxy.Direct)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(netproxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}, nil
}
