package dns

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type stubResolver struct {
	addrs []net.IPAddr
	err   error
	calls int
}

func (s *stubResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	s.calls++
	return s.addrs, s.err
}

func TestResolveIPs_IPv4First(t *testing.T) {
	r := &stubResolver{addrs: []net.IPAddr{
		{IP: net.ParseIP("2001:db8::1")},
		{IP: net.ParseIP("192.0.2.10")},
	}}
	ips, err := ResolveIPs(context.Background(), r, "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ips) != 2 || ips[0] != "192.0.2.10" || ips[1] != "2001:db8::1" {
		t.Errorf("unexpected order: %v", ips)
	}
}

func TestResolveIPs_Literal(t *testing.T) {
	r := &stubResolver{}
	ips, err := ResolveIPs(context.Background(), r, "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ips) != 1 || ips[0] != "127.0.0.1" {
		t.Errorf("expected literal to resolve to itself, got %v", ips)
	}
	if r.calls != 0 {
		t.Errorf("expected no lookup for an IP literal, got %d", r.calls)
	}
}

func TestResolveIPs_Errors(t *testing.T) {
	lookupErr := errors.New("no such host")
	if _, err := ResolveIPs(context.Background(), &stubResolver{err: lookupErr}, "nope.invalid"); !errors.Is(err, lookupErr) {
		t.Errorf("expected lookup error, got %v", err)
	}
	if _, err := ResolveIPs(context.Background(), &stubResolver{}, "empty.example"); err == nil {
		t.Error("expected error for empty answer")
	}
}

func TestResolveIPs_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	cancel()

	// A cancelled lookup through the real resolver must fail rather than hang.
	if _, err := ResolveIPs(ctx, nil, "example.com"); err == nil {
		t.Error("expected error with cancelled context")
	}
}
