package discovery

import (
	"errors"
	"time"
)

// Option configures an Aggregator during construction with NewAggregator.
type Option func(*Aggregator) error

// WithPublishers registers the discovery methods the aggregator merges
// findings from. At least one is required.
func WithPublishers(publishers ...Publisher) Option {
	return func(a *Aggregator) error {
		if len(publishers) == 0 {
			return ErrNoPublishers
		}
		a.publishers = publishers
		return nil
	}
}

// WithPublishDelay overrides how long the aggregator waits after a device's
// first finding before announcing it. Must be positive.
//
// Default: DefaultPublishDelay (1s)
func WithPublishDelay(d time.Duration) Option {
	return func(a *Aggregator) error {
		if d <= 0 {
			return errors.New("publish delay must be positive")
		}
		a.publishDelay = d
		return nil
	}
}

// WithSettleTimeout overrides how long ListDevices waits for discovery to
// quiesce before returning early. Must be positive.
//
// Default: DefaultSettleTimeout (5s)
func WithSettleTimeout(d time.Duration) Option {
	return func(a *Aggregator) error {
		if d <= 0 {
			return errors.New("settle timeout must be positive")
		}
		a.settleTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger for the aggregator.
//
// Default: NoOpLogger
func WithLogger(logger Logger) Option {
	return func(a *Aggregator) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		a.logger = logger
		return nil
	}
}
