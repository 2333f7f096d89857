package testkit

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/localscan/scanhost/pkg/discovery"
)

// FakePublisher emits a scripted sequence of Findings, for tests that drive
// an Aggregator without real network I/O.
type FakePublisher struct {
	NameStr  string
	Findings []discovery.Finding
	Delay    time.Duration
	Err      error
	Ran      atomic.Int64
}

func (p *FakePublisher) Name() string {
	if p.NameStr == "" {
		return "fake"
	}
	return p.NameStr
}

func (p *FakePublisher) Run(ctx context.Context, out chan<- discovery.Finding) error {
	p.Ran.Add(1)

	for _, f := range p.Findings {
		if p.Delay > 0 {
			t := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- f:
		}
	}

	if p.Err != nil {
		return p.Err
	}

	<-ctx.Done()
	return nil
}

func MustIP(t testing.TB, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("invalid ip: %s", s)
	}
	return ip
}

func MustInterfaceInfo(t testing.TB) *discovery.InterfaceInfo {
	t.Helper()
	ip := MustIP(t, "192.168.0.10").To4()
	if ip == nil {
		t.Fatal("expected ipv4")
	}
	_, n, err := net.ParseCIDR("192.168.0.10/24")
	if err != nil {
		t.Fatalf("parse cidr: %v", err)
	}
	return &discovery.InterfaceInfo{Interface: &net.Interface{Name: "test0"}, IPv4Addr: &ip, IPv4Net: n}
}
