// Package transport builds the HTTP client handles shared by the gateway
// client and the upload resolver.
package transport

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Options configures a client handle.
type Options struct {
	// Timeout bounds the whole exchange, including reading a streamed body.
	Timeout time.Duration
	// ProxyURL overrides proxy settings from the environment when set.
	ProxyURL string
}

// NewHTTPClient creates an *http.Client with a tuned transport.
// Proxy settings are taken from the environment unless ProxyURL is given.
func NewHTTPClient(logger *slog.Logger, opts Options) (*http.Client, error) {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   10,
	}

	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		t.Proxy = http.ProxyURL(proxy)
		if logger != nil {
			logger.Info("Using proxy for gateway requests", "proxy_url", RedactURL(proxy))
		}
	}

	return &http.Client{
		Transport: t,
		Timeout:   opts.Timeout,
	}, nil
}

// RedactURL returns u as a string with any password masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.User == nil {
		return u.String()
	}
	safe := *u
	if _, hasPassword := u.User.Password(); hasPassword {
		safe.User = url.UserPassword(u.User.Username(), "*****")
	}
	return safe.String()
}
