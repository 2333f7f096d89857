package wsd

import (
	"errors"

	"github.com/localscan/scanhost/pkg/discovery"
)

// Option configures a Publisher during construction.
type Option func(*Publisher) error

// WithLogger sets a custom logger for the WS-Discovery publisher.
func WithLogger(logger discovery.Logger) Option {
	return func(p *Publisher) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}
