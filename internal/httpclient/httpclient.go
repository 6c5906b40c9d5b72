package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// New returns the client used for health polls. It performs exactly one
// attempt per request; timeouts surface as transport errors.
func New(timeout time.Duration, userAgent string) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: false},
		DisableCompression:    false,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   4,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	var rt http.RoundTripper = tr
	if userAgent != "" {
		rt = &uaTransport{next: tr, ua: userAgent}
	}
	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
	}
}

type uaTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.next.RoundTrip(req)
}

// HTTPError is a non-2xx response from a polled endpoint.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return "unexpected status: " + e.Status
}

// GetHTTPStatusCode returns the status code carried by an *HTTPError, or 0.
func GetHTTPStatusCode(err error) int {
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.StatusCode
	}
	return 0
}
