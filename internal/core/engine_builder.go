package core

import (
	"github.com/localscan/scanhost/internal/core/config"
	"github.com/localscan/scanhost/pkg/discovery"
	"github.com/localscan/scanhost/pkg/discovery/hint"
	"github.com/localscan/scanhost/pkg/discovery/mdns"
	"github.com/localscan/scanhost/pkg/discovery/wsd"
)

// BuildAggregator wires up a discovery.Aggregator from configuration,
// enabling the mDNS, WS-Discovery and static-hint publishers the config
// toggles request.
func BuildAggregator(cfg *config.Config, logger discovery.Logger) (*discovery.Aggregator, error) {
	iface, err := discovery.NewInterfaceInfo(cfg.NetworkInterface)
	if err != nil {
		return nil, err
	}

	var publishers []discovery.Publisher

	if cfg.Scanners.MDNS.Enabled {
		publishers = append(publishers, mdns.New(iface, mdns.WithLogger(logger)))
	}
	if cfg.Scanners.WSD.Enabled {
		publishers = append(publishers, wsd.New(iface, wsd.WithLogger(logger)))
	}
	if len(cfg.Hints) > 0 {
		hints := make([]hint.Hint, 0, len(cfg.Hints))
		for _, h := range cfg.Hints {
			hints = append(hints, hint.Hint{Name: h.Name, URI: h.URI})
		}
		publishers = append(publishers, hint.New(hints))
	}

	return discovery.NewAggregator(
		discovery.WithPublishers(publishers...),
		discovery.WithLogger(logger),
	)
}
