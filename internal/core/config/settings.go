package config

import (
	"strings"

	"github.com/spf13/cobra"
)

type RunMode int

const (
	ModeApp RunMode = iota
	ModeCLI
)

type FlagType int

const (
	FlagTypeString FlagType = iota
	FlagTypeBool
)

type SettingSource int

const (
	SourceYAML SettingSource = iota
	SourceEnv
	SourceFlag
)

type Setter func(cfg *Config, value string) error
type Getter func(cfg *Config) any

type YAMLDoc struct {
	Comment         string
	ExampleValue    string
	CommentedOut    bool
	BlankLineBefore bool
	BlankLineAfter  bool
}

type GlobalSetting struct {
	YAMLKey  string
	EnvVar   string
	FlagName string
	Short    string
	Usage    string
	Type     FlagType
	Hidden   bool
	Sources  map[SettingSource]bool
	Set      Setter
	Get      Getter
	Doc      YAMLDoc
}

func (s *GlobalSetting) hasSource(src SettingSource) bool {
	if s == nil || s.Sources == nil {
		return true
	}
	return s.Sources[src]
}

func GlobalSettings() []GlobalSetting {
	all := map[SettingSource]bool{SourceYAML: true, SourceEnv: true, SourceFlag: true}

	return []GlobalSetting{
		// special cases
		// the "config" flag is a special case that only exists as a flag/env var and does not have a corresponding YAML key
		// the reason it doesn't have a YAML key is that it specifies the path to the YAML config file, so it can't be set via YAML itself
		{
			EnvVar:   "WHOSTHERE_CONFIG",
			FlagName: "config",
			Short:    "c",
			Usage:    "Path to config file.",
			Type:     FlagTypeString,
			Sources:  map[SettingSource]bool{SourceEnv: true, SourceFlag: true},
		},
		// the "pprof-port" flag is a special case that only exists as a flag/env var and does not have a corresponding YAML key
		// the reason it doesn't have a YAML key is that it's meant for debugging and profiling purposes, and we don't want it to be set via YAML in production environments
		{
			FlagName: "pprof-port",
			Short:    "D",
			Usage:    "Pprof HTTP server port for debugging and profiling purposes (e.g., 6060)",
			Type:     FlagTypeString,
			Sources:  map[SettingSource]bool{SourceEnv: true, SourceFlag: true},
		},

		// general global settings
		{
			YAMLKey:  "network_interface",
			FlagName: "interface",
			Short:    "i",
			Usage:    "Network interface to use for discovery (overrides env/config).",
			Type:     FlagTypeString,
			Sources:  all,
			Set:      func(c *Config, v string) error { c.NetworkInterface = v; return nil },
			Get:      func(c *Config) any { return c.NetworkInterface },
			Doc: YAMLDoc{
				Comment:      "Uncomment the next line to configure a specific network interface - uses OS default if not set",
				ExampleValue: "eth0",
				CommentedOut: true,
			},
		},
		{
			YAMLKey:  "scan_interval",
			FlagName: "interval",
			Short:    "n",
			Usage:    "How often a device is re-scanned when driven continuously (e.g., 5m).",
			Type:     FlagTypeString,
			Sources:  all,
			Set: func(c *Config, v string) error {
				d, err := parseDuration(v)
				if err != nil {
					return err
				}
				c.ScanInterval = d
				return nil
			},
			Get: func(c *Config) any { return c.ScanInterval },
			Doc: YAMLDoc{
				Comment: "How often to re-scan a device for new capabilities/status",
			},
		},
		{
			YAMLKey:  "scan_timeout",
			FlagName: "timeout",
			Short:    "t",
			Usage:    "Maximum duration for a single scan job (e.g., 2m).",
			Type:     FlagTypeString,
			Sources:  all,
			Set: func(c *Config, v string) error {
				d, err := parseDuration(v)
				if err != nil {
					return err
				}
				c.ScanTimeout = d
				return nil
			},
			Get: func(c *Config) any { return c.ScanTimeout },
			Doc: YAMLDoc{
				Comment: "Maximum duration for a single scan job",
			},
		},
		{
			YAMLKey:  "discovery_settle",
			FlagName: "discovery-settle",
			Usage:    "How long list/scan run discovery before reading the device list (e.g., 3s).",
			Type:     FlagTypeString,
			Sources:  all,
			Set: func(c *Config, v string) error {
				d, err := parseDuration(v)
				if err != nil {
					return err
				}
				c.DiscoverySettle = d
				return nil
			},
			Get: func(c *Config) any { return c.DiscoverySettle },
			Doc: YAMLDoc{
				Comment: "How long discovery waits for further findings before listing a device",
			},
		},
		{
			YAMLKey:  "scanners.mdns.enabled",
			FlagName: "mdns",
			Short:    "m",
			Usage:    "Enable/disable the mDNS (_uscan._tcp/_uscans._tcp) publisher.",
			Type:     FlagTypeBool,
			Sources:  all,
			Set: func(c *Config, v string) error {
				b, err := parseBool(v)
				if err != nil {
					return err
				}
				c.Scanners.MDNS.Enabled = b
				return nil
			},
			Get: func(c *Config) any { return c.Scanners.MDNS.Enabled },
			Doc: YAMLDoc{},
		},
		{
			YAMLKey:  "scanners.wsd.enabled",
			FlagName: "wsd",
			Short:    "w",
			Usage:    "Enable/disable the WS-Discovery publisher.",
			Type:     FlagTypeBool,
			Sources:  all,
			Set: func(c *Config, v string) error {
				b, err := parseBool(v)
				if err != nil {
					return err
				}
				c.Scanners.WSD.Enabled = b
				return nil
			},
			Get: func(c *Config) any { return c.Scanners.WSD.Enabled },
			Doc: YAMLDoc{},
		},
		{
			YAMLKey:  "quirks.disable",
			FlagName: "no-quirks",
			Usage:    "Disable the built-in per-vendor quirk table.",
			Type:     FlagTypeBool,
			Sources:  all,
			Set: func(c *Config, v string) error {
				b, err := parseBool(v)
				if err != nil {
					return err
				}
				c.Quirks.Disable = b
				return nil
			},
			Get: func(c *Config) any { return c.Quirks.Disable },
			Doc: YAMLDoc{
				Comment:         "Per-vendor quirk overrides (HP localhost-Host rewrite, EPSON force_port, ...)",
				BlankLineBefore: true,
			},
		},
		{
			YAMLKey:  "log_level",
			FlagName: "log-level",
			Short:    "l",
			Usage:    "Log level: debug, info, warn, error.",
			Type:     FlagTypeString,
			Sources:  all,
			Set:      func(c *Config, v string) error { c.LogLevel = v; return nil },
			Get:      func(c *Config) any { return c.LogLevel },
			Doc: YAMLDoc{
				Comment:         "Log level: debug, info, warn, error",
				BlankLineBefore: true,
			},
		},
	}
}

func settingsByYAMLKey() map[string]*GlobalSetting {
	settings := GlobalSettings()
	m := make(map[string]*GlobalSetting, len(settings))
	for i := range settings {
		if settings[i].YAMLKey != "" {
			m[settings[i].YAMLKey] = &settings[i]
		}
	}
	return m
}

func RegisterGlobalConfigFlags(cmd *cobra.Command, flags *Flags) {
	if flags == nil {
		return
	}
	if flags.Overrides == nil {
		flags.Overrides = map[string]string{}
	}

	for _, s := range GlobalSettings() {
		s := s
		if !s.hasSource(SourceFlag) {
			continue
		}

		switch s.FlagName {
		case "config":
			cmd.PersistentFlags().StringVarP(&flags.ConfigFile, s.FlagName, s.Short, "", s.Usage)
			continue
		case "pprof-port":
			cmd.PersistentFlags().StringVar(&flags.PprofPort, s.FlagName, "", s.Usage)
			continue
		}

		switch s.Type {
		case FlagTypeString:
			registerStringSetting(cmd, flags, &s, s.Usage)
		case FlagTypeBool:
			registerBoolSetting(cmd, flags, &s, s.Usage)
		}

		if s.Hidden {
			_ = cmd.PersistentFlags().MarkHidden(s.FlagName)
		}
	}
}

func registerStringSetting(cmd *cobra.Command, flags *Flags, s *GlobalSetting, usage string) {
	if s == nil {
		return
	}

	if s.Short != "" {
		cmd.PersistentFlags().StringP(s.FlagName, s.Short, "", usage)
	} else {
		cmd.PersistentFlags().String(s.FlagName, "", usage)
	}

	cmd.PersistentPreRunE = chainPersistentPreRun(cmd.PersistentPreRunE, func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed(s.FlagName) {
			return nil
		}
		val, err := cmd.Flags().GetString(s.FlagName)
		if err != nil {
			return err
		}
		flags.Overrides[s.YAMLKey] = strings.TrimSpace(val)
		return nil
	})
}

func registerBoolSetting(cmd *cobra.Command, flags *Flags, s *GlobalSetting, usage string) {
	if s == nil {
		return
	}

	if s.Short != "" {
		cmd.PersistentFlags().BoolP(s.FlagName, s.Short, false, usage)
	} else {
		cmd.PersistentFlags().Bool(s.FlagName, false, usage)
	}

	cmd.PersistentPreRunE = chainPersistentPreRun(cmd.PersistentPreRunE, func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed(s.FlagName) {
			return nil
		}
		val, err := cmd.Flags().GetBool(s.FlagName)
		if err != nil {
			return err
		}
		if val {
			flags.Overrides[s.YAMLKey] = "true"
		} else {
			flags.Overrides[s.YAMLKey] = "false"
		}
		return nil
	})
}

type persistentPreRunE func(cmd *cobra.Command, args []string) error

func chainPersistentPreRun(existing, next persistentPreRunE) persistentPreRunE {
	if existing == nil {
		return next
	}
	return func(cmd *cobra.Command, args []string) error {
		if err := existing(cmd, args); err != nil {
			return err
		}
		return next(cmd, args)
	}
}
