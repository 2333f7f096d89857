// Package hint turns user-supplied device URIs (a config-file allow-list)
// into synthetic discovery.Findings, letting devices that don't answer
// mDNS or WS-Discovery probes still be opened by name.
package hint

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/localscan/scanhost/pkg/discovery"
)

var _ discovery.Publisher = (*Publisher)(nil)

// Hint is one user-supplied endpoint: a stable name to expose it under and
// the base URI of its eSCL or WSD service.
type Hint struct {
	Name string
	URI  string
}

// Publisher emits one Finding per configured Hint, once, at Run start.
type Publisher struct {
	hints []Hint
}

// New creates a hint publisher for the given static endpoints.
func New(hints []Hint) *Publisher {
	return &Publisher{hints: append([]Hint(nil), hints...)}
}

func (p *Publisher) Name() string { return "hint" }

// Run emits every configured hint as a Finding, then blocks until ctx is
// canceled: hints don't change at runtime, so there is nothing further to
// publish, but Run must still observe cancellation like every Publisher.
func (p *Publisher) Run(ctx context.Context, out chan<- discovery.Finding) error {
	for _, h := range p.hints {
		f, err := findingFromHint(h)
		if err != nil {
			return fmt.Errorf("hint %q: %w", h.Name, err)
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return nil
		}
	}

	<-ctx.Done()
	return nil
}

func findingFromHint(h Hint) (discovery.Finding, error) {
	u, err := url.Parse(h.URI)
	if err != nil {
		return discovery.Finding{}, fmt.Errorf("parse uri: %w", err)
	}

	protocol := "escl"
	if strings.Contains(strings.ToLower(u.Path), "wsdscanner") {
		protocol = "wsd"
	}

	return discovery.Finding{
		Method:  discovery.MethodHint,
		IfIndex: 0,
		Name:    h.Name,
		UUID:    "hint:" + h.Name,
		Endpoints: []discovery.Endpoint{
			{Protocol: protocol, URI: h.URI},
		},
	}, nil
}
