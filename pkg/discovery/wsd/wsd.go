// Package wsd discovers WS-Scan devices by sending a WS-Discovery Probe to
// the standard multicast group and parsing ProbeMatch responses, publishing
// each match as a discovery.Finding. Adapted from the teacher's SSDP
// scanner (raw UDP M-SEARCH send / textual header parse) for the
// equivalent WS-Discovery SOAP exchange.
package wsd

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/localscan/scanhost/pkg/discovery"
)

const (
	MulticastAddr = "239.255.255.250:3702"
	probeTimeout  = 3 * time.Second
	reprobeEvery  = 20 * time.Second
	scanServiceNS = "http://schemas.xmlsoap.org/ws/2006/02/devprof"
	scanTypeName  = "ScanDeviceType"
)

var _ discovery.Publisher = (*Publisher)(nil)

// Publisher discovers WS-Scan devices by sending periodic WS-Discovery
// Probe messages and collecting ProbeMatch responses.
type Publisher struct {
	iface  *discovery.InterfaceInfo
	logger discovery.Logger
}

// New creates a WS-Discovery publisher bound to the given interface.
func New(iface *discovery.InterfaceInfo, opts ...Option) *Publisher {
	p := &Publisher{iface: iface, logger: discovery.NoOpLogger{}}
	for _, opt := range opts {
		_ = opt(p)
	}
	return p
}

func (p *Publisher) Name() string { return "wsd" }

// Run sends a Probe and listens for ProbeMatch responses every
// reprobeEvery until ctx is canceled.
func (p *Publisher) Run(ctx context.Context, out chan<- discovery.Finding) error {
	if err := p.probeOnce(ctx, out); err != nil && ctx.Err() == nil {
		p.logger.Log(ctx, slog.LevelWarn, "wsd probe failed", "error", err)
	}

	ticker := time.NewTicker(reprobeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.probeOnce(ctx, out); err != nil && ctx.Err() == nil {
				p.logger.Log(ctx, slog.LevelWarn, "wsd probe failed", "error", err)
			}
		}
	}
}

func (p *Publisher) probeOnce(ctx context.Context, out chan<- discovery.Finding) error {
	mAddr, err := net.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return fmt.Errorf("resolve wsd addr: %w", err)
	}

	localAddr := &net.UDPAddr{Port: 0}
	if p.iface != nil && p.iface.IPv4Addr != nil {
		localAddr.IP = *p.iface.IPv4Addr
	}

	conn, err := net.ListenUDP("udp4", localAddr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	msgID := "urn:uuid:" + randomUUID()
	if _, err := conn.WriteToUDP([]byte(buildProbe(msgID)), mAddr); err != nil {
		return fmt.Errorf("send probe: %w", err)
	}

	deadline := time.Now().Add(probeTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	ifIndex := p.ifIndex()
	buf := make([]byte, 8192)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			return fmt.Errorf("read wsd response: %w", err)
		}

		f, ok := parseProbeMatch(buf[:n], src, ifIndex)
		if !ok {
			continue
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Publisher) ifIndex() int {
	if p.iface == nil || p.iface.Interface == nil {
		return 0
	}
	return p.iface.Interface.Index
}

// buildProbe constructs a minimal WS-Discovery Probe SOAP envelope scoped
// to the scan device type.
func buildProbe(msgID string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" ` +
		`xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing" ` +
		`xmlns:wsd="http://schemas.xmlsoap.org/ws/2005/04/discovery" ` +
		`xmlns:devprof="` + scanServiceNS + `">` +
		`<soap:Header>` +
		`<wsa:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</wsa:Action>` +
		`<wsa:MessageID>` + msgID + `</wsa:MessageID>` +
		`<wsa:To>urn:schemas-xmlsoap-org:ws:2005:04:discovery</wsa:To>` +
		`</soap:Header>` +
		`<soap:Body><wsd:Probe><wsd:Types>devprof:` + scanTypeName + `</wsd:Types></wsd:Probe></soap:Body>` +
		`</soap:Envelope>`
}

// probeMatchEnvelope is the subset of a ProbeMatch SOAP response this
// publisher needs: the endpoint's UUID, advertised types, and transport
// addresses.
type probeMatchEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		ProbeMatches struct {
			ProbeMatch []struct {
				EndpointReference struct {
					Address string `xml:"Address"`
				} `xml:"EndpointReference"`
				Types      string `xml:"Types"`
				XAddrs     string `xml:"XAddrs"`
				MetadataVersion string `xml:"MetadataVersion"`
			} `xml:"ProbeMatch"`
		} `xml:"ProbeMatches"`
	} `xml:"Body"`
}

func parseProbeMatch(body []byte, src *net.UDPAddr, ifIndex int) (discovery.Finding, bool) {
	var env probeMatchEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return discovery.Finding{}, false
	}

	for _, m := range env.Body.ProbeMatches.ProbeMatch {
		if !strings.Contains(m.Types, scanTypeName) {
			continue
		}

		endpoints := endpointsFromXAddrs(m.XAddrs)
		if len(endpoints) == 0 {
			continue
		}

		return discovery.Finding{
			Method:    discovery.MethodWSD,
			IfIndex:   ifIndex,
			Name:      src.IP.String(),
			UUID:      normalizeURN(m.EndpointReference.Address),
			Addrs:     []net.IP{src.IP},
			Endpoints: endpoints,
		}, true
	}
	return discovery.Finding{}, false
}

func endpointsFromXAddrs(xaddrs string) []discovery.Endpoint {
	fields := strings.Fields(xaddrs)
	out := make([]discovery.Endpoint, 0, len(fields))
	for _, addr := range fields {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		out = append(out, discovery.Endpoint{Protocol: "wsd", URI: addr})
	}
	return out
}

func normalizeURN(addr string) string {
	return strings.TrimSpace(addr)
}

// randomUUID generates a probe message ID. It does not need to be
// cryptographically random, only unique enough that a device can match a
// response to our probe; bytes come from the OS clock jitter via
// time.Now().UnixNano(), formatted as hex groups resembling a UUID.
func randomUUID() string {
	n := time.Now().UnixNano()
	b := []byte(strconv.FormatInt(n, 16))
	for len(b) < 32 {
		b = append(b, '0')
	}
	b = b[:32]
	return fmt.Sprintf("%s-%s-%s-%s-%s", b[0:8], b[8:12], b[12:16], b[16:20], b[20:32])
}
