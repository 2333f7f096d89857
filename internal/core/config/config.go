package config

import (
	"errors"
	"net"
	"strings"
	"time"
)

const (
	// DefaultScanInterval is the default scan_interval. Validation uses it
	// as the upper bound for scan_timeout; no command in cmd/scanhostd
	// re-scans devices on this interval.
	DefaultScanInterval = 5 * time.Minute
	// DefaultScanTimeout bounds a single scan job (pkg/scanjob) issued
	// against a device.
	DefaultScanTimeout = 2 * time.Minute
	// DefaultDiscoverySettle is the overall deadline the list and scan
	// commands give a discovery pass (the context ListDevices blocks on).
	// The aggregator's own per-device publish delay is separate
	// (discovery.DefaultPublishDelay).
	DefaultDiscoverySettle = 3 * time.Second

	DefaultLogLevel = "info"
)

// Config captures all configurable parameters for the application.
type Config struct {
	NetworkInterface string        `yaml:"network_interface"`
	ScanInterval     time.Duration `yaml:"scan_interval"`
	ScanTimeout      time.Duration `yaml:"scan_timeout"`
	DiscoverySettle  time.Duration `yaml:"discovery_settle"`
	Scanners         ScannerConfig `yaml:"scanners"`
	Hints            []Hint        `yaml:"hints"`
	Deny             []string      `yaml:"deny"`
	Quirks           QuirksConfig  `yaml:"quirks"`
	LogLevel         string        `yaml:"log_level"`
}

// ScannerToggle lets users enable/disable a discovery publisher.
type ScannerToggle struct {
	Enabled bool `yaml:"enabled"`
}

// ScannerConfig groups discovery publisher enablement flags.
type ScannerConfig struct {
	MDNS ScannerToggle `yaml:"mdns"`
	WSD  ScannerToggle `yaml:"wsd"`
}

// Hint is a user-supplied scanner endpoint to expose even if it never
// answers an mDNS or WS-Discovery probe (spec.md §2's "user-supplied
// hints", fed to pkg/discovery/hint).
type Hint struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri"`
}

// QuirksConfig holds per-vendor quirk overrides for pkg/scanproto/escl's
// Canon/HP/EPSON entries. The values are loaded into Config, but neither
// cmd/scanhostd nor pkg/scanproto/escl reads them, so they do not change
// how a device is driven.
type QuirksConfig struct {
	// Disable turns off all vendor quirk detection, driving every
	// device with the unmodified eSCL/WSD wire protocol.
	Disable bool `yaml:"disable"`
	// ForceLocalhostHost lists MakeAndModel substrings (case-insensitive)
	// that should always get the HP_Compact_Server localhost-Host
	// treatment, in addition to the built-in table.
	ForceLocalhostHost []string `yaml:"force_localhost_host"`
	// ForcePort lists MakeAndModel substrings that should always force
	// the query's destination port into the Host header, in addition to
	// the built-in EPSON entry.
	ForcePort []string `yaml:"force_port"`
}

// DefaultConfig builds a Config pre-populated with baked-in defaults.
// These defaults are used if no config is provided by the user.
func DefaultConfig() *Config {
	return &Config{
		ScanInterval:    DefaultScanInterval,
		ScanTimeout:     DefaultScanTimeout,
		DiscoverySettle: DefaultDiscoverySettle,
		Scanners: ScannerConfig{
			MDNS: ScannerToggle{Enabled: true},
			WSD:  ScannerToggle{Enabled: true},
		},
		LogLevel: DefaultLogLevel,
	}
}

// validateAndNormalize validates the config and fixes up out-of-range values.
// It also applies app-mode policies (e.g., ensuring at least one publisher is enabled).
func (c *Config) validateAndNormalize() error {
	if err := c.normalizeBasics(); err != nil {
		return err
	}
	if err := c.enforceAppPolicies(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeBasics() error {
	var errs []string

	if c.ScanInterval <= 0 {
		errs = append(errs, "scan_interval must be > 0")
		c.ScanInterval = DefaultScanInterval
	}

	if c.ScanTimeout <= 0 {
		errs = append(errs, "scan_timeout must be > 0")
		c.ScanTimeout = DefaultScanTimeout
	}

	if c.ScanTimeout > c.ScanInterval {
		errs = append(errs, "scan_timeout must be <= scan_interval")
		c.ScanTimeout = c.ScanInterval
	}

	if c.DiscoverySettle <= 0 {
		errs = append(errs, "discovery_settle must be > 0")
		c.DiscoverySettle = DefaultDiscoverySettle
	}

	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.NetworkInterface != "" {
		if _, err := net.InterfaceByName(c.NetworkInterface); err != nil {
			errs = append(errs, "network_interface does not exist: "+c.NetworkInterface)
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) enforceAppPolicies() error {
	var errs []string

	if !c.Scanners.MDNS.Enabled && !c.Scanners.WSD.Enabled && len(c.Hints) == 0 {
		errs = append(errs, "at least one discovery publisher must be enabled")
		c.Scanners.MDNS.Enabled = true
		c.Scanners.WSD.Enabled = true
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
