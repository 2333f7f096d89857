package output

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/localscan/scanhost/pkg/discovery"
	"github.com/stretchr/testify/require"
)

// fixedPublisher announces a single fixed Finding, then blocks until ctx is
// canceled, mirroring the shape of the mdns/wsd/hint publishers it stands in
// for.
type fixedPublisher struct {
	finding discovery.Finding
}

func (fixedPublisher) Name() string { return "fixed" }

func (p fixedPublisher) Run(ctx context.Context, out chan<- discovery.Finding) error {
	select {
	case out <- p.finding:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

func testDevices(t *testing.T) []*discovery.Device {
	t.Helper()

	pub := fixedPublisher{finding: discovery.Finding{
		Method: discovery.MethodMDNS,
		Name:   "Printer._uscan._tcp",
		UUID:   "urn:uuid:11111111-1111-1111-1111-111111111111",
		Model:  "HP LaserJet MFP M630",
		Addrs:  []net.IP{net.ParseIP("10.0.0.5")},
		Endpoints: []discovery.Endpoint{
			{Protocol: "escl", URI: "http://10.0.0.5/eSCL/"},
		},
	}}

	agg, err := discovery.NewAggregator(
		discovery.WithPublishers(pub),
		discovery.WithPublishDelay(10*time.Millisecond),
		discovery.WithSettleTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	agg.Start(ctx)
	defer agg.Stop()

	devices, err := agg.ListDevices(ctx)
	require.NoError(t, err)
	return devices
}

func TestTableFormatter(t *testing.T) {
	devices := testDevices(t)
	require.Len(t, devices, 1)

	var buf bytes.Buffer
	err := PrintDevices(&buf, devices, 1500*time.Millisecond, FormatTable)
	require.NoError(t, err)

	out := buf.String()
	if !strings.Contains(out, "HP LaserJet MFP M630") {
		t.Errorf("expected model in output, got: %s", out)
	}
	if !strings.Contains(out, "1 device(s) found") {
		t.Errorf("expected device count in output, got: %s", out)
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintDevices(&buf, nil, 100*time.Millisecond, FormatTable); err != nil {
		t.Fatalf("PrintDevices failed: %v", err)
	}
	if !strings.Contains(buf.String(), "0 device(s) found") {
		t.Errorf("expected zero-device message, got: %s", buf.String())
	}
}
