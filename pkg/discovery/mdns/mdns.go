// Package mdns browses for eSCL scanners over multicast DNS, publishing
// each advertisement as a discovery.Finding.
package mdns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	hashimdns "github.com/hashicorp/mdns"

	"github.com/localscan/scanhost/pkg/discovery"
)

const (
	serviceESCL     = "_uscan._tcp"
	serviceESCLSec  = "_uscans._tcp"
	queryDomain     = "local"
	queryTimeout    = 3 * time.Second
	rebrowseEvery   = 15 * time.Second
	defaultRootPath = "eSCL"
)

var _ discovery.Publisher = (*Publisher)(nil)

// Publisher discovers eSCL/AirScan devices by browsing _uscan._tcp and
// _uscans._tcp with github.com/hashicorp/mdns, the teacher's previously
// test-only mDNS client library promoted here to production use.
type Publisher struct {
	iface  *discovery.InterfaceInfo
	logger discovery.Logger
}

// New creates an mDNS publisher bound to the given interface.
func New(iface *discovery.InterfaceInfo, opts ...Option) *Publisher {
	p := &Publisher{iface: iface, logger: discovery.NoOpLogger{}}
	for _, opt := range opts {
		_ = opt(p)
	}
	return p
}

func (p *Publisher) Name() string { return "mdns" }

// Run browses both eSCL service types every rebrowseEvery until ctx is
// canceled.
func (p *Publisher) Run(ctx context.Context, out chan<- discovery.Finding) error {
	raw := &rawListener{iface: p.iface}
	go func() {
		if err := raw.run(ctx, out); err != nil && ctx.Err() == nil {
			p.logger.Log(ctx, slog.LevelWarn, "mdns raw listener failed", "error", err)
		}
	}()

	if err := p.browseAll(ctx, out); err != nil && ctx.Err() == nil {
		p.logger.Log(ctx, slog.LevelWarn, "mdns browse failed", "error", err)
	}

	ticker := time.NewTicker(rebrowseEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.browseAll(ctx, out); err != nil && ctx.Err() == nil {
				p.logger.Log(ctx, slog.LevelWarn, "mdns browse failed", "error", err)
			}
		}
	}
}

func (p *Publisher) browseAll(ctx context.Context, out chan<- discovery.Finding) error {
	for _, svc := range []string{serviceESCL, serviceESCLSec} {
		if err := p.browseOne(ctx, svc, out); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) browseOne(ctx context.Context, service string, out chan<- discovery.Finding) error {
	entries := make(chan *hashimdns.ServiceEntry, 32)
	done := make(chan error, 1)

	params := &hashimdns.QueryParam{
		Service: service,
		Domain:  queryDomain,
		Timeout: queryTimeout,
		Entries: entries,
	}
	if p.iface != nil {
		params.Interface = p.iface.Interface
	}

	go func() {
		done <- hashimdns.Query(params)
		close(entries)
	}()

	secure := service == serviceESCLSec
	ifIndex := p.ifIndex()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return <-done
			}
			f, ok := findingFromEntry(entry, secure, ifIndex)
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
}

func (p *Publisher) ifIndex() int {
	if p.iface == nil || p.iface.Interface == nil {
		return 0
	}
	return p.iface.Interface.Index
}

// findingFromEntry crosswalks a hashicorp/mdns ServiceEntry into a
// discovery.Finding, reading the uuid/rs/ty TXT keys the AirScan/eSCL TXT
// record convention defines.
func findingFromEntry(entry *hashimdns.ServiceEntry, secure bool, ifIndex int) (discovery.Finding, bool) {
	addr := entry.AddrV4
	if addr == nil {
		addr = entry.AddrV6
	}
	if addr == nil || entry.Port == 0 {
		return discovery.Finding{}, false
	}

	txt := parseTXT(entry.InfoFields)
	rootPath := txt["rs"]
	if rootPath == "" {
		rootPath = defaultRootPath
	}
	rootPath = strings.TrimPrefix(rootPath, "/")

	scheme := "http"
	protocol := "escl"
	if secure {
		scheme = "https"
		protocol = "esclhttps"
	}

	host := addr.String()
	if addr.To4() == nil {
		host = "[" + host + "]"
	}
	uri := fmt.Sprintf("%s://%s:%d/%s", scheme, host, entry.Port, rootPath)

	name := cleanInstanceName(entry.Name)

	return discovery.Finding{
		Method:  discovery.MethodMDNS,
		IfIndex: ifIndex,
		Name:    name,
		UUID:    txt["uuid"],
		Model:   txt["ty"],
		Addrs:   []net.IP{addr},
		Endpoints: []discovery.Endpoint{
			{Protocol: protocol, URI: uri},
		},
	}, true
}

// cleanInstanceName strips the service/domain suffix from an mDNS PTR
// instance name ("Office Scanner._uscan._tcp.local." -> "Office Scanner").
func cleanInstanceName(name string) string {
	name = strings.TrimSuffix(name, ".")
	if idx := strings.Index(name, "._uscan"); idx >= 0 {
		return name[:idx]
	}
	if idx := strings.Index(name, "._uscans"); idx >= 0 {
		return name[:idx]
	}
	return name
}

// parseTXT splits "key=value" TXT segments the way AirScan devices encode
// capability hints (rs=, ty=, uuid=, note=).
func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		idx := strings.IndexByte(f, '=')
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(f[:idx]))
		out[key] = strings.TrimSpace(f[idx+1:])
	}
	return out
}
