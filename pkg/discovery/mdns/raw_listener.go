package mdns

import (
	"context"
	"net"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"

	"github.com/localscan/scanhost/pkg/discovery"
)

const (
	mdnsMulticastAddr = "224.0.0.251:5353"
	maxPacketSize     = 16384
)

// rawListener passively joins the mDNS multicast group and parses PTR
// answers and TXT additional records directly (SRV records are not read:
// the endpoint URI uses the sender's address and the scheme's default
// port), adapted from the teacher's scanSession. This
// catches announcements hashicorp/mdns's fixed-timeout Query can miss
// (devices that answer a moment after the query window closes, or that
// only ever send unsolicited refresh packets), feeding them through the
// same TXT-key crosswalk as the primary browse path.
type rawListener struct {
	iface *discovery.InterfaceInfo
}

func (r *rawListener) run(ctx context.Context, out chan<- discovery.Finding) error {
	if r.iface == nil || r.iface.IPv4Addr == nil {
		<-ctx.Done()
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", mdnsMulticastAddr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: *r.iface.IPv4Addr, Port: 0})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(r.iface.Interface, addr); err != nil {
		return err
	}

	buf := make([]byte, maxPacketSize)
	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		var msg dnsmessage.Message
		if err := msg.Unpack(buf[:n]); err != nil || !msg.Response {
			continue
		}

		f, ident, ok := findingFromRaw(&msg, sender, r.ifIndex())
		if !ok || seen[ident] {
			continue
		}
		seen[ident] = true

		select {
		case out <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *rawListener) ifIndex() int {
	if r.iface == nil || r.iface.Interface == nil {
		return 0
	}
	return r.iface.Interface.Index
}

// findingFromRaw extracts a Finding from a raw DNS-SD response when its
// PTR target names one of the two eSCL service types.
func findingFromRaw(msg *dnsmessage.Message, sender *net.UDPAddr, ifIndex int) (discovery.Finding, string, bool) {
	var instance string
	for _, ans := range msg.Answers {
		ptr, ok := ans.Body.(*dnsmessage.PTRResource)
		if !ok {
			continue
		}
		name := ans.Header.Name.String()
		if strings.Contains(name, serviceESCL) || strings.Contains(name, serviceESCLSec) {
			instance = ptr.PTR.String()
		}
	}
	if instance == "" {
		return discovery.Finding{}, "", false
	}

	txt := map[string]string{}
	for _, rec := range msg.Additionals {
		if t, ok := rec.Body.(*dnsmessage.TXTResource); ok {
			for k, v := range parseTXT(t.TXT) {
				txt[k] = v
			}
		}
	}

	secure := strings.Contains(instance, serviceESCLSec)
	rootPath := strings.TrimPrefix(txt["rs"], "/")
	if rootPath == "" {
		rootPath = defaultRootPath
	}
	scheme, protocol := "http", "escl"
	if secure {
		scheme, protocol = "https", "esclhttps"
	}

	name := cleanInstanceName(instance)
	uri := scheme + "://" + sender.IP.String() + "/" + rootPath

	return discovery.Finding{
		Method:  discovery.MethodMDNS,
		IfIndex: ifIndex,
		Name:    name,
		UUID:    txt["uuid"],
		Model:   txt["ty"],
		Addrs:   []net.IP{sender.IP},
		Endpoints: []discovery.Endpoint{
			{Protocol: protocol, URI: uri},
		},
	}, name, true
}
