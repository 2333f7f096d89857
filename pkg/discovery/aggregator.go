package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultPublishDelay is how long the aggregator waits after a device's
	// first finding before announcing it, to let other addresses or
	// interfaces for the same device arrive first.
	DefaultPublishDelay = 1 * time.Second

	// DefaultSettleTimeout bounds how long ListDevices blocks waiting for
	// discovery to quiesce before returning whatever has been announced
	// so far.
	DefaultSettleTimeout = 5 * time.Second

	// DefaultEventBuf sizes the Events channel.
	DefaultEventBuf = 512

	// DefaultFindingsBuf sizes the shared channel every Publisher writes to.
	DefaultFindingsBuf = 256
)

var ErrNoPublishers = errors.New("no discovery publishers configured")

// Logger defines a simple logging interface for the aggregator.
type Logger interface {
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
}

// NoOpLogger discards all log calls. The zero value is ready to use.
type NoOpLogger struct{}

func (n NoOpLogger) Log(_ context.Context, _ slog.Level, _ string, _ ...any) {}

// Publisher is a discovery method: it runs until ctx is canceled, sending
// every Finding it observes to out. Implementations of the three wire
// methods (mDNS, WS-Discovery, user hints) live in the mdns, wsd and hint
// sub-packages.
type Publisher interface {
	Name() string
	Run(ctx context.Context, out chan<- Finding) error
}

// Aggregator merges Findings published by one or more Publishers into a
// deduplicated list of Devices, per spec §4.9.
type Aggregator struct {
	Events <-chan Event
	events chan Event

	publishers    []Publisher
	publishDelay  time.Duration
	settleTimeout time.Duration
	logger        Logger

	mu      sync.RWMutex
	devices map[string]*Device  // ident -> device (includes unannounced)
	byUUID  map[string]string   // uuid -> ident
	byGroup map[groupKey]string // groupKey -> ident
	live    map[string]bool     // ident -> announced

	stateMu   sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	settledCh chan struct{}
}

// NewAggregator creates an Aggregator from the given options. At least one
// Publisher is required.
func NewAggregator(opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		publishDelay:  DefaultPublishDelay,
		settleTimeout: DefaultSettleTimeout,
		logger:        NoOpLogger{},
		devices:       make(map[string]*Device),
		byUUID:        make(map[string]string),
		byGroup:       make(map[groupKey]string),
		live:          make(map[string]bool),
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	if len(a.publishers) == 0 {
		return nil, ErrNoPublishers
	}

	a.events = make(chan Event, DefaultEventBuf)
	a.Events = a.events
	a.settledCh = make(chan struct{})

	return a, nil
}

// Start launches every configured Publisher and begins merging findings.
// Safe to call multiple times; later calls return the existing Events
// channel without starting a second set of workers.
func (a *Aggregator) Start(ctx context.Context) <-chan Event {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if a.running {
		return a.Events
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true

	a.emit(Event{Type: EventAggregatorStarted})

	findings := make(chan Finding, DefaultFindingsBuf)

	for _, p := range a.publishers {
		a.wg.Add(1)
		go func(p Publisher) {
			defer a.wg.Done()
			if err := p.Run(ctx, findings); err != nil && ctx.Err() == nil {
				a.emit(NewErrorEvent(fmt.Errorf("%s: %w", p.Name(), err)))
			}
		}(p)
	}

	a.wg.Add(1)
	go a.run(ctx, findings)

	return a.Events
}

// Stop cancels every Publisher, waits for them to exit, and closes the
// Events channel. Safe to call multiple times or before Start.
func (a *Aggregator) Stop() {
	a.stateMu.Lock()
	if !a.running {
		a.stateMu.Unlock()
		return
	}
	cancel := a.cancel
	a.running = false
	a.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	a.emit(Event{Type: EventAggregatorStopped})
	close(a.events)
}

// ListDevices blocks until discovery has quiesced (no new finding for
// publishDelay, or settleTimeout has elapsed since Start) or ctx is done,
// then returns every announced device.
func (a *Aggregator) ListDevices(ctx context.Context) ([]*Device, error) {
	select {
	case <-a.settledCh:
	case <-ctx.Done():
		return a.snapshot(), ctx.Err()
	}
	return a.snapshot(), nil
}

// Lookup returns the ordered endpoint list for a host-facing ident, as
// returned by Device.Ident, and whether it is currently known.
func (a *Aggregator) Lookup(ident string) ([]Endpoint, bool) {
	a.mu.RLock()
	d, ok := a.devices[ident]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return d.Endpoints(), true
}

func (a *Aggregator) snapshot() []*Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Device, 0, len(a.live))
	for ident, announced := range a.live {
		if announced {
			out = append(out, a.devices[ident])
		}
	}
	return out
}

// run owns the aggregator's merge tables; it is the sole writer to
// devices/byUUID/byGroup/live, guarded by mu only so ListDevices/Lookup can
// read concurrently from other goroutines.
func (a *Aggregator) run(ctx context.Context, findings <-chan Finding) {
	defer a.wg.Done()

	quiescence := time.NewTimer(a.publishDelay)
	defer quiescence.Stop()
	hardDeadline := time.NewTimer(a.settleTimeout)
	defer hardDeadline.Stop()

	announce := make(chan string, 64)
	var settleOnce sync.Once
	closeSettled := func() {
		settleOnce.Do(func() { close(a.settledCh) })
	}

	for {
		select {
		case <-ctx.Done():
			return

		case f, ok := <-findings:
			if !ok {
				return
			}
			a.handleFinding(ctx, f, announce)
			if !quiescence.Stop() {
				select {
				case <-quiescence.C:
				default:
				}
			}
			quiescence.Reset(a.publishDelay)

		case <-quiescence.C:
			closeSettled()

		case <-hardDeadline.C:
			closeSettled()

		case ident := <-announce:
			a.announce(ident)
		}
	}
}

func (a *Aggregator) handleFinding(ctx context.Context, f Finding, announce chan<- string) {
	a.mu.Lock()

	key := f.groupKey()
	ident, known := "", false
	if f.UUID != "" {
		if id, ok := a.byUUID[f.UUID]; ok {
			ident, known = id, true
		}
	}
	if !known {
		if id, ok := a.byGroup[key]; ok {
			ident, known = id, true
		}
	}
	if known {
		if _, ok := a.devices[ident]; !ok {
			// byUUID/byGroup entry outlived its device: a prior withdrawal
			// only cleared the group key and UUID it was withdrawn under,
			// and a device can be reached through more than one key (the
			// group key of its first finding plus every UUID its findings
			// carried). Treat it as unknown rather than merge into a
			// device that no longer exists.
			ident, known = "", false
		}
	}

	if f.Withdrawn {
		if !known {
			a.mu.Unlock()
			return
		}
		d := a.devices[ident]
		wasLive := a.live[ident]
		delete(a.devices, ident)
		delete(a.live, ident)
		delete(a.byGroup, key)
		if f.UUID != "" {
			delete(a.byUUID, f.UUID)
		}
		a.mu.Unlock()
		if wasLive {
			a.emit(NewDeviceLostEvent(d))
		}
		return
	}

	var isNew bool
	var dev *Device
	if known {
		dev = a.devices[ident]
	} else {
		ident = identFor(f)
		dev = newDevice(ident, f)
		a.devices[ident] = dev
		a.byGroup[key] = ident
		isNew = true
	}
	if f.UUID != "" {
		a.byUUID[f.UUID] = ident
	}
	if !isNew {
		dev.merge(f)
	}
	alreadyLive := a.live[ident]
	a.mu.Unlock()

	if isNew {
		time.AfterFunc(a.publishDelay, func() {
			select {
			case announce <- ident:
			case <-ctx.Done():
			}
		})
		return
	}

	if alreadyLive {
		a.emit(NewDeviceEvent(dev))
	}
}

func (a *Aggregator) announce(ident string) {
	a.mu.Lock()
	dev, ok := a.devices[ident]
	if !ok || a.live[ident] {
		a.mu.Unlock()
		return
	}
	a.live[ident] = true
	a.mu.Unlock()

	a.emit(NewDeviceEvent(dev))
}

// identFor derives a Device's host-facing identity: the discovery UUID
// when the first finding already carries one, otherwise a synthetic key
// from method, interface index and name.
func identFor(f Finding) string {
	if f.UUID != "" {
		return f.UUID
	}
	return fmt.Sprintf("%s:%d:%s", f.Method, f.IfIndex, f.Name)
}

// emit sends an event without blocking; a full Events channel drops the
// event and logs it, rather than stalling the merge goroutine.
func (a *Aggregator) emit(event Event) {
	select {
	case a.events <- event:
	default:
		a.logger.Log(context.Background(), slog.LevelWarn, "discovery event channel full, dropping event", "type", event.Type)
	}
}
