package tlsinfo

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/net/idna"

	"github.com/gustycube/uptime-probe/internal/dns"
	"github.com/gustycube/uptime-probe/internal/metrics"
	"github.com/gustycube/uptime-probe/internal/types"
)

// ErrorKind classifies why an inspection failed.
type ErrorKind string

const (
	ResolutionFailed       ErrorKind = "resolution_failed"
	HandshakeFailed        ErrorKind = "handshake_failed"
	CertificateUnavailable ErrorKind = "certificate_unavailable"
)

// CertificateError is returned for every failed inspection.
type CertificateError struct {
	Kind ErrorKind
	Host string
	Err  error
}

func (e *CertificateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tls inspection of %s: %s", e.Host, e.Kind)
	}
	return fmt.Sprintf("tls inspection of %s: %s: %v", e.Host, e.Kind, e.Err)
}

func (e *CertificateError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *CertificateError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ce *CertificateError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Interface is implemented by Inspector and Cache.
type Interface interface {
	Inspect(ctx context.Context, endpointURL string) (types.HostInfo, types.CertificateInfo, error)
}

// Inspector performs a single TLS handshake against an endpoint's host.
type Inspector struct {
	// Port defaults to 443.
	Port string
	// Timeout bounds connect plus handshake. Defaults to 8s.
	Timeout time.Duration
	// RootCAs overrides the system trust store when set.
	RootCAs  *x509.CertPool
	Resolver dns.Resolver
}

// New returns an Inspector using the system resolver and trust store.
func New(timeout time.Duration) *Inspector {
	return &Inspector{Port: "443", Timeout: timeout}
}

// SplitEndpoint strips any scheme from endpointURL and returns the hostname
// (everything before the first '/', without a port) and the scheme-less
// endpoint.
func SplitEndpoint(endpointURL string) (hostname, endpoint string) {
	endpoint = strings.TrimSpace(endpointURL)
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	hostname = endpoint
	if i := strings.IndexByte(hostname, '/'); i >= 0 {
		hostname = hostname[:i]
	}
	if h, _, err := net.SplitHostPort(hostname); err == nil {
		hostname = h
	}
	return strings.Trim(hostname, "[]"), endpoint
}

// Inspect resolves the endpoint's host, opens one TCP connection, completes a
// verified TLS handshake and reads the leaf certificate. The connection is
// closed before returning on every path.
func (in *Inspector) Inspect(ctx context.Context, endpointURL string) (types.HostInfo, types.CertificateInfo, error) {
	ctx, span := otel.Tracer("uptime/tlsinfo").Start(ctx, "Inspect")
	defer span.End()

	hostInfo, certInfo, err := in.inspect(ctx, endpointURL)
	if err != nil {
		span.RecordError(err)
		metrics.CertInspections.WithLabelValues(string(KindOf(err))).Inc()
	} else {
		metrics.CertInspections.WithLabelValues("ok").Inc()
	}
	return hostInfo, certInfo, err
}

func (in *Inspector) inspect(ctx context.Context, endpointURL string) (types.HostInfo, types.CertificateInfo, error) {
	hostname, endpoint := SplitEndpoint(endpointURL)
	if hostname == "" {
		return types.HostInfo{}, types.CertificateInfo{}, &CertificateError{Kind: ResolutionFailed, Host: endpointURL, Err: errors.New("no hostname in endpoint")}
	}
	if net.ParseIP(hostname) == nil {
		ascii, err := idna.Lookup.ToASCII(hostname)
		if err != nil {
			return types.HostInfo{}, types.CertificateInfo{}, &CertificateError{Kind: ResolutionFailed, Host: hostname, Err: err}
		}
		hostname = ascii
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	port := in.Port
	if port == "" {
		port = "443"
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := dns.ResolveIPs(ctx, in.Resolver, hostname)
	if err != nil {
		return types.HostInfo{}, types.CertificateInfo{}, &CertificateError{Kind: ResolutionFailed, Host: hostname, Err: err}
	}

	d := &tls.Dialer{Config: &tls.Config{ServerName: hostname, RootCAs: in.RootCAs}}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ips[0], port))
	if err != nil {
		return types.HostInfo{}, types.CertificateInfo{}, &CertificateError{Kind: HandshakeFailed, Host: hostname, Err: err}
	}
	defer conn.Close()

	peerIP := ips[0]
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		peerIP = addr.IP.String()
	}
	hostInfo := types.HostInfo{Hostname: hostname, EndpointPath: endpoint, EndpointIP: peerIP}

	tc, ok := conn.(*tls.Conn)
	if !ok {
		return hostInfo, types.CertificateInfo{}, &CertificateError{Kind: CertificateUnavailable, Host: hostname, Err: errors.New("not a tls connection")}
	}
	cs := tc.ConnectionState()
	if len(cs.PeerCertificates) == 0 {
		return hostInfo, types.CertificateInfo{}, &CertificateError{Kind: CertificateUnavailable, Host: hostname}
	}
	return hostInfo, describe(cs.PeerCertificates[0]), nil
}

func describe(leaf *x509.Certificate) types.CertificateInfo {
	spki := sha256.Sum256(leaf.RawSubjectPublicKeyInfo)
	fields := map[string]string{
		"subject":      leaf.Subject.String(),
		"issuer":       leaf.Issuer.String(),
		"serialNumber": strings.ToUpper(leaf.SerialNumber.Text(16)),
		"version":      fmt.Sprint(leaf.Version),
		"notBefore":    leaf.NotBefore.UTC().Format(time.RFC3339),
		"notAfter":     leaf.NotAfter.UTC().Format(time.RFC3339),
		"spki_sha256":  base64.StdEncoding.EncodeToString(spki[:]),
	}
	var san []string
	for _, n := range leaf.DNSNames {
		san = append(san, "DNS:"+n)
	}
	for _, ip := range leaf.IPAddresses {
		san = append(san, "IP:"+ip.String())
	}
	if len(san) > 0 {
		fields["subjectAltName"] = strings.Join(san, ", ")
	}
	return types.CertificateInfo{NotBefore: leaf.NotBefore, NotAfter: leaf.NotAfter, RawFields: fields}
}
