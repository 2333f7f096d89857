package discovery

import (
	"net"
	"sync"
	"time"
)

// Device is a logical scanner the aggregator has assembled from one or more
// Findings: a stable identity (the UUID of its first Finding when that
// carried one, else method+interface+name)
// plus the union of addresses and endpoints every Finding for that identity
// has contributed.
//
// All fields are private and accessed through thread-safe getters. Device is
// always used as a pointer; the aggregator mutates it in place as further
// findings arrive, even after it has been handed out to a caller.
type Device struct {
	mu sync.RWMutex

	ident     string
	uuid      string
	name      string
	model     string
	methods   map[Method]struct{}
	addrs     []net.IP
	endpoints []Endpoint
	firstSeen time.Time
	lastSeen  time.Time
}

func newDevice(ident string, f Finding) *Device {
	now := time.Now()
	d := &Device{
		ident:     ident,
		uuid:      f.UUID,
		name:      f.Name,
		model:     f.Model,
		methods:   map[Method]struct{}{f.Method: {}},
		firstSeen: now,
		lastSeen:  now,
	}
	d.addrs = mergeAddrs(nil, f.Addrs)
	d.endpoints = dedupEndpoints(nil, f.Endpoints)
	return d
}

// merge folds a further Finding for the same identity into the device.
func (d *Device) merge(f Finding) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.uuid == "" && f.UUID != "" {
		d.uuid = f.UUID
	}
	if d.name == "" && f.Name != "" {
		d.name = f.Name
	}
	if d.model == "" && f.Model != "" {
		d.model = f.Model
	}
	d.methods[f.Method] = struct{}{}
	d.addrs = mergeAddrs(d.addrs, f.Addrs)
	d.endpoints = dedupEndpoints(d.endpoints, f.Endpoints)
	d.lastSeen = time.Now()
}

// Ident is the host-facing identifier used to open the device and to look
// up its endpoints: the discovery UUID when the device's first finding
// carried one, otherwise a synthetic key derived from method, interface
// and name. It does not change when a later finding supplies a UUID.
func (d *Device) Ident() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ident
}

// UUID returns the device's discovery UUID, or "" if none has been seen.
func (d *Device) UUID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.uuid
}

// Name returns the device's advertised network name.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// Model returns the device's advertised human-readable model, if any.
func (d *Device) Model() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model
}

// Methods returns the set of discovery methods that have contributed to
// this device.
func (d *Device) Methods() []Method {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Method, 0, len(d.methods))
	for m := range d.methods {
		out = append(out, m)
	}
	return out
}

// Addrs returns a copy of the device's known addresses.
func (d *Device) Addrs() []net.IP {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]net.IP, len(d.addrs))
	copy(out, d.addrs)
	return out
}

// Endpoints returns a copy of the device's deduplicated, sorted endpoint
// list, in the order the device state machine should probe them.
func (d *Device) Endpoints() []Endpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Endpoint, len(d.endpoints))
	copy(out, d.endpoints)
	return out
}

// FirstSeen returns when the device's first finding arrived.
func (d *Device) FirstSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.firstSeen
}

// LastSeen returns when the device's most recent finding arrived.
func (d *Device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}
