package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stellar/go/network"
)

const (
	defaultHTTPEndpoint  = "localhost:8010"
	defaultAdminEndpoint = "localhost:8011"
)

// options returns the option table for cfg, building it on first use.
//
//nolint:funlen,maintidx
func (cfg *Config) options() Options {
	if cfg.optionsCache != nil {
		return *cfg.optionsCache
	}
	defaultLogLevel := logrus.InfoLevel
	cfg.optionsCache = &Options{
		{
			Name:      "config-path",
			EnvVar:    "TXTRACKER_CONFIG_PATH",
			TomlKey:   "-",
			Usage:     "File path to the toml configuration file",
			ConfigKey: &cfg.ConfigPath,
		},
		{
			Name:         "config-strict",
			EnvVar:       "TXTRACKER_CONFIG_STRICT",
			TomlKey:      "STRICT",
			Usage:        "Enable strict toml configuration file parsing. This will prevent unknown fields in the config toml from being parsed.",
			ConfigKey:    &cfg.Strict,
			DefaultValue: false,
		},
		{
			Name:         "endpoint",
			Usage:        "Endpoint to listen and serve JSON RPC requests on",
			ConfigKey:    &cfg.Endpoint,
			DefaultValue: defaultHTTPEndpoint,
		},
		{
			Name:         "admin-endpoint",
			Usage:        "Admin endpoint to listen and serve status, metrics and pprof on. An empty value disables the admin server",
			ConfigKey:    &cfg.AdminEndpoint,
			DefaultValue: defaultAdminEndpoint,
		},
		{
			Name:      "rpc-url",
			Usage:     "URL of the Stellar RPC server transactions are sent to and looked up on",
			ConfigKey: &cfg.RPCURL,
			Validate:  required,
		},
		{
			Name:         "network-passphrase",
			Usage:        "Network passphrase of the Stellar network transactions are signed for",
			ConfigKey:    &cfg.NetworkPassphrase,
			DefaultValue: network.TestNetworkPassphrase,
			Validate:     required,
		},
		{
			Name:      "signing-secret",
			TomlKey:   "-",
			Usage:     "Secret seed of the source account which signs and pays for submitted transactions",
			ConfigKey: &cfg.SigningSecret,
			Validate:  required,
		},
		{
			Name:         "confirm",
			TomlKey:      "-",
			Usage:        "Ask for interactive confirmation before signing each transaction",
			ConfigKey:    &cfg.Confirm,
			DefaultValue: false,
		},
		{
			Name:         "submit-timeout",
			Usage:        "Deadline for signing and broadcasting a transaction, including retries while the network asks to try again later",
			ConfigKey:    &cfg.SubmitTimeout,
			DefaultValue: 30 * time.Second,
			Validate:     positive,
		},
		{
			Name:         "tx-timeout",
			Usage:        "Upper time bound set on built transactions, relative to build time",
			ConfigKey:    &cfg.TxTimeout,
			DefaultValue: 5 * time.Minute,
			Validate:     positive,
		},
		{
			Name:         "rpc-request-timeout",
			Usage:        "Timeout for a single request to the Stellar RPC server",
			ConfigKey:    &cfg.RPCRequestTimeout,
			DefaultValue: 10 * time.Second,
			Validate:     positive,
		},
		{
			Name:         "poll-initial-interval",
			Usage:        "Initial interval between transaction status lookups",
			ConfigKey:    &cfg.PollInitialInterval,
			DefaultValue: time.Second,
			Validate:     positive,
		},
		{
			Name:         "poll-max-interval",
			Usage:        "Maximum interval between transaction status lookups",
			ConfigKey:    &cfg.PollMaxInterval,
			DefaultValue: 10 * time.Second,
			Validate:     positive,
		},
		{
			Name:         "poll-multiplier",
			Usage:        "Growth factor applied to the interval after each lookup that did not find the transaction",
			ConfigKey:    &cfg.PollMultiplier,
			DefaultValue: 1.5,
			Validate: func(option *Option) error {
				if cfg.PollMultiplier < 1 {
					return fmt.Errorf("%s must be at least 1", option.Name)
				}
				return nil
			},
		},
		{
			Name:         "poll-randomization-factor",
			Usage:        "Jitter applied to lookup intervals, between 0 and 1",
			ConfigKey:    &cfg.PollRandomizationFactor,
			DefaultValue: 0.2,
			Validate:     unitInterval,
		},
		{
			Name:         "journal-max-entries",
			Usage:        "Number of lifecycle notifications kept in the in-memory journal",
			ConfigKey:    &cfg.JournalMaxEntries,
			DefaultValue: uint32(10000),
			Validate:     positive,
		},
		{
			Name:         "log-level",
			Usage:        "minimum log severity (debug, info, warn, error) to log",
			ConfigKey:    &cfg.LogLevel,
			DefaultValue: defaultLogLevel,
			CustomSetValue: func(option *Option, i interface{}) error {
				switch v := i.(type) {
				case nil:
					return nil
				case string:
					ll, err := logrus.ParseLevel(v)
					if err != nil {
						return fmt.Errorf("could not parse %s: %q", option.Name, v)
					}
					cfg.LogLevel = ll
				case logrus.Level:
					cfg.LogLevel = v
				case *logrus.Level:
					cfg.LogLevel = *v
				default:
					return fmt.Errorf("could not parse %s: %q", option.Name, v)
				}
				return nil
			},
			MarshalTOML: func(_ *Option) (interface{}, error) {
				return cfg.LogLevel.String(), nil
			},
		},
		{
			Name:         "log-format",
			Usage:        "format used for output logs (json or text)",
			ConfigKey:    &cfg.LogFormat,
			DefaultValue: LogFormatText,
			CustomSetValue: func(option *Option, i interface{}) error {
				switch v := i.(type) {
				case nil:
					return nil
				case string:
					if err := cfg.LogFormat.UnmarshalText([]byte(v)); err != nil {
						return fmt.Errorf("could not parse %s: %w", option.Name, err)
					}
				case LogFormat:
					cfg.LogFormat = v
				case *LogFormat:
					cfg.LogFormat = *v
				default:
					return fmt.Errorf("could not parse %s: %q", option.Name, v)
				}
				return nil
			},
			MarshalTOML: func(_ *Option) (interface{}, error) {
				return cfg.LogFormat.String(), nil
			},
		},
	}
	return *cfg.optionsCache
}
