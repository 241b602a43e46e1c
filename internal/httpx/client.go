package httpx

import (
	"net/http"
	"time"
)

type ClientOptions struct {
	Timeout time.Duration

	// Proxy follows ProxyFuncFromString semantics; socks5:// URLs replace
	// the transport dialer instead of transport.Proxy.
	Proxy string

	// Transport allows providing a pre-configured transport.
	// When nil, it clones http.DefaultTransport.
	Transport *http.Transport
}

func NewClient(opts ClientOptions) (*http.Client, error) {
	var transport *http.Transport
	if opts.Transport != nil {
		transport = opts.Transport.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	// Default: no proxy, even if HTTP_PROXY / HTTPS_PROXY is set.
	transport.Proxy = nil

	if IsSOCKS5URL(opts.Proxy) {
		dial, err := SOCKS5DialContext(opts.Proxy)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dial
	} else {
		proxyFunc, err := ProxyFuncFromString(opts.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = proxyFunc
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
