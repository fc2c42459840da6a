// Package httpclient builds the client used for outbound calls to the
// coordinate-extraction service.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	UserAgent      = "foncier-geo/1"
)

// NewOutbound returns a client whose overall deadline is timeout (<= 0 means
// 30s). Uploads are large and few, so the idle pool is small and the
// response header wait follows the overall deadline.
func NewOutbound(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		WriteBufferSize:       64 << 10,
	}
	return &http.Client{
		Transport: userAgent{next: transport},
		Timeout:   timeout,
	}
}

type userAgent struct {
	next http.RoundTripper
}

func (u userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(r)
	}
	r2 := r.Clone(r.Context())
	r2.Header.Set("User-Agent", UserAgent)
	return u.next.RoundTrip(r2)
}
