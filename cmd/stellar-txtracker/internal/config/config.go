package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/stellar/go/keypair"
)

// Config represents the configuration of a stellar-txtracker process
type Config struct {
	ConfigPath string
	Strict     bool

	Endpoint          string
	AdminEndpoint     string
	RPCURL            string
	NetworkPassphrase string
	SigningSecret     string
	Confirm           bool

	SubmitTimeout     time.Duration
	TxTimeout         time.Duration
	RPCRequestTimeout time.Duration

	PollInitialInterval     time.Duration
	PollMaxInterval         time.Duration
	PollMultiplier          float64
	PollRandomizationFactor float64

	JournalMaxEntries uint32

	LogLevel  logrus.Level
	LogFormat LogFormat

	optionsCache *Options
	flagset      *pflag.FlagSet
}

// SetValues sets the config values, in order of increasing precedence:
// defaults, the TOML file, environment variables, and CLI flags.
func (cfg *Config) SetValues(lookupEnv func(string) (string, bool)) error {
	if err := cfg.loadDefaults(); err != nil {
		return err
	}
	if err := cfg.loadEnv(lookupEnv); err != nil {
		return err
	}
	if err := cfg.loadFlags(); err != nil {
		return err
	}

	if cfg.ConfigPath != "" {
		if err := loadConfigPath(cfg, cfg.ConfigPath); err != nil {
			return err
		}
		// env and flags override whatever the file said
		if err := cfg.loadEnv(lookupEnv); err != nil {
			return err
		}
		if err := cfg.loadFlags(); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) loadDefaults() error {
	for _, option := range cfg.options() {
		if option.ConfigKey != nil && option.DefaultValue != nil {
			if err := option.setValue(option.DefaultValue); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cfg *Config) loadEnv(lookupEnv func(string) (string, bool)) error {
	for _, option := range cfg.options() {
		key, ok := option.getEnvKey()
		if !ok {
			continue
		}
		value, ok := lookupEnv(key)
		if !ok {
			continue
		}
		if err := option.setValue(value); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) loadFlags() error {
	for _, option := range cfg.options() {
		if option.flag == nil || !option.flag.Changed {
			continue
		}
		val, err := option.GetFlag(cfg.flagset)
		if err != nil {
			return err
		}
		if err := option.setValue(val); err != nil {
			return err
		}
	}
	return nil
}

func loadConfigPath(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return parseToml(file, cfg.Strict, cfg)
}

// Validate checks every option validator and the signing secret.
func (cfg *Config) Validate() error {
	if err := cfg.options().Validate(); err != nil {
		return err
	}
	if _, err := keypair.ParseFull(cfg.SigningSecret); err != nil {
		return fmt.Errorf("signing-secret is not a valid secret seed: %w", err)
	}
	return nil
}

// Signer returns the keypair transactions are signed with.
func (cfg *Config) Signer() (*keypair.Full, error) {
	return keypair.ParseFull(cfg.SigningSecret)
}
