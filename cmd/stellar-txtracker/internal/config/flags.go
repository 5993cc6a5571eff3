//nolint:forcetypeassert // option types are checked by the switch in AddFlag
package config

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AddFlags adds the CLI flags to the command. This lets the command output the
// flags as part of the --help output.
func (cfg *Config) AddFlags(cmd *cobra.Command) error {
	cfg.flagset = cmd.PersistentFlags()
	for _, option := range cfg.options() {
		if err := option.AddFlag(cfg.flagset); err != nil {
			return err
		}
	}
	return nil
}

// AddFlag adds a CLI flag for this option to the given flagset.
//
//nolint:cyclop
func (o *Option) AddFlag(flagset *pflag.FlagSet) error {
	// config options that has no names do not represent a valid flag.
	if len(o.Name) == 0 {
		return nil
	}
	// Treat any option with a custom parser as a string option.
	if o.CustomSetValue != nil {
		if o.DefaultValue == nil {
			o.DefaultValue = ""
		}
		flagset.String(o.Name, fmt.Sprint(o.DefaultValue), o.UsageText())
		o.flag = flagset.Lookup(o.Name)
		return nil
	}

	switch o.ConfigKey.(type) {
	case *bool:
		flagset.Bool(o.Name, o.DefaultValue.(bool), o.UsageText())
	case *time.Duration:
		flagset.Duration(o.Name, o.DefaultValue.(time.Duration), o.UsageText())
	case *float64:
		flagset.Float64(o.Name, o.DefaultValue.(float64), o.UsageText())
	case *int:
		flagset.Int(o.Name, o.DefaultValue.(int), o.UsageText())
	case *int64:
		flagset.Int64(o.Name, o.DefaultValue.(int64), o.UsageText())
	case *string:
		if o.DefaultValue == nil {
			o.DefaultValue = ""
		}
		flagset.String(o.Name, o.DefaultValue.(string), o.UsageText())
	case *[]string:
		if o.DefaultValue == nil {
			o.DefaultValue = []string{}
		}
		flagset.StringSlice(o.Name, o.DefaultValue.([]string), o.UsageText())
	case *uint:
		flagset.Uint(o.Name, o.DefaultValue.(uint), o.UsageText())
	case *uint32:
		flagset.Uint32(o.Name, o.DefaultValue.(uint32), o.UsageText())
	default:
		return fmt.Errorf("unexpected option type: %T", o.ConfigKey)
	}

	o.flag = flagset.Lookup(o.Name)
	return nil
}

// GetFlag reads the value of the flag backing this option. The switch must
// match the one in AddFlag.
func (o *Option) GetFlag(flagset *pflag.FlagSet) (interface{}, error) {
	if o.CustomSetValue != nil {
		return flagset.GetString(o.Name)
	}

	switch o.ConfigKey.(type) {
	case *bool:
		return flagset.GetBool(o.Name)
	case *time.Duration:
		return flagset.GetDuration(o.Name)
	case *float64:
		return flagset.GetFloat64(o.Name)
	case *int:
		return flagset.GetInt(o.Name)
	case *int64:
		return flagset.GetInt64(o.Name)
	case *string:
		return flagset.GetString(o.Name)
	case *[]string:
		return flagset.GetStringSlice(o.Name)
	case *uint:
		return flagset.GetUint(o.Name)
	case *uint32:
		return flagset.GetUint32(o.Name)
	default:
		return nil, fmt.Errorf("unexpected option type: %T", o.ConfigKey)
	}
}

// UsageText returns the Usage defined on the Option, along with the
// environment variable.
func (o *Option) UsageText() string {
	envVar, hasEnvVar := o.getEnvKey()
	if hasEnvVar {
		return fmt.Sprintf("%s (%s)", o.Usage, envVar)
	}
	return o.Usage
}
