package transport

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Clients holds the two retry flavors over one shared connection pool.
// A single Clients value is created per process run and passed to every
// component that makes outbound calls.
type Clients struct {
	// Oracle is used for time and quote sources
	Oracle *http.Client

	// Publish is used for operator-supplied publication URLs
	Publish *http.Client
}

// Options configures NewClients.
type Options struct {
	OraclePolicy  RetryPolicy
	PublishPolicy RetryPolicy
	Logger        *zap.Logger
	OnRetry       RetryObserver

	// Base overrides the underlying transport, mainly for tests
	Base http.RoundTripper
}

// NewClients builds the oracle and publish clients.
//
// Neither client sets http.Client.Timeout: every call site bounds its
// request with a context deadline instead, so a timeout covers all retry
// attempts of that call.
func NewClients(opts Options) *Clients {
	base := opts.Base
	if base == nil {
		base = newBaseTransport()
	}

	return &Clients{
		Oracle: &http.Client{
			Transport: &RetryTransport{
				Base:    base,
				Policy:  opts.OraclePolicy,
				Logger:  opts.Logger,
				OnRetry: opts.OnRetry,
			},
		},
		Publish: &http.Client{
			Transport: &RetryTransport{
				Base:    base,
				Policy:  opts.PublishPolicy,
				Logger:  opts.Logger,
				OnRetry: opts.OnRetry,
			},
		},
	}
}

func newBaseTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
