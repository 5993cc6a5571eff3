package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/stellar/go/support/strutils"
)

// Options is a group of Options that can be for convenience
// initialized and set at the same time.
type Options []*Option

// Validate all the config options.
func (options Options) Validate() error {
	var missingOptions []error
	for _, option := range options {
		if option.Validate == nil {
			continue
		}
		if err := option.Validate(option); err != nil {
			missingOptions = append(missingOptions, err)
		}
	}
	if len(missingOptions) > 0 {
		return errors.Join(missingOptions...)
	}
	return nil
}

// Option is a complete description of the configuration of a command line option
type Option struct {
	// e.g. "rpc-url"
	Name string
	// e.g. "RPC_URL". Defaults to the upper-snake-case of Name; "-" disables it.
	EnvVar string
	// e.g. "RPC_URL". Defaults to the env var; "-" disables it.
	TomlKey string
	// Help text
	Usage string
	// A default if no option is provided. Omit or set to `nil` if no default
	DefaultValue interface{}
	// Pointer to the final key in the linked Config struct
	ConfigKey interface{}
	// Optionally override the set-value method. For custom types.
	CustomSetValue func(option *Option, i interface{}) error
	// Optionally override how the value is written to a TOML file.
	MarshalTOML func(option *Option) (interface{}, error)
	// Optional validator, run after all values are loaded.
	Validate func(option *Option) error

	flag *pflag.Flag
}

func (o Option) getEnvKey() (string, bool) {
	if o.EnvVar == "-" || o.EnvVar == "_" {
		return "", false
	}
	if o.EnvVar != "" {
		return o.EnvVar, true
	}
	return strutils.KebabToConstantCase(o.Name), true
}

func (o Option) getTomlKey() (string, bool) {
	if o.TomlKey == "-" || o.TomlKey == "_" {
		return "", false
	}
	if o.TomlKey != "" {
		return o.TomlKey, true
	}
	if envKey, ok := o.getEnvKey(); ok {
		return envKey, true
	}
	return strutils.KebabToConstantCase(o.Name), true
}

//nolint:cyclop
func (o *Option) setValue(i interface{}) (err error) {
	if o.CustomSetValue != nil {
		return o.CustomSetValue(o, i)
	}
	// it's unfortunate that Set below panics when it cannot set the value..
	// we'll want to catch this so that we can alert the user nicely.
	defer func() {
		if recoverRes := recover(); recoverRes != nil {
			var ok bool
			if err, ok = recoverRes.(error); ok {
				return
			}
			err = fmt.Errorf("config option setting error ('%s') %v", o.Name, recoverRes)
		}
	}()
	parser := func(option *Option, i interface{}) error {
		return fmt.Errorf("no parser for flag %s", o.Name)
	}
	switch o.ConfigKey.(type) {
	case *bool:
		parser = parseBool
	case *int, *int8, *int16, *int32, *int64:
		parser = parseInt
	case *uint, *uint8, *uint16, *uint64:
		parser = parseUint
	case *uint32:
		parser = parseUint32
	case *float32, *float64:
		parser = parseFloat
	case *string:
		parser = parseString
	case *[]string:
		parser = parseStringSlice
	case *time.Duration:
		parser = parseDuration
	}

	return parser(o, i)
}

func (o *Option) marshalTOML() (interface{}, error) {
	if o.MarshalTOML != nil {
		return o.MarshalTOML(o)
	}
	// go-toml has no encoding for the unsigned and duration kinds
	switch v := reflect.ValueOf(o.ConfigKey).Elem().Interface().(type) {
	case uint32:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case time.Duration:
		return v.String(), nil
	default:
		return v, nil
	}
}

func required(option *Option) error {
	value := reflect.ValueOf(option.ConfigKey).Elem()
	switch value.Kind() {
	case reflect.Slice:
		if value.Len() > 0 {
			return nil
		}
	default:
		if !value.IsZero() {
			return nil
		}
	}

	var waysToSet []string
	if option.Name != "" && option.Name != "-" {
		waysToSet = append(waysToSet, fmt.Sprintf("specify --%s on the command line", option.Name))
	}
	if envVar, hasEnvVar := option.getEnvKey(); hasEnvVar {
		waysToSet = append(waysToSet, fmt.Sprintf("set the %s environment variable", envVar))
	}
	if tomlKey, hasTomlKey := option.getTomlKey(); hasTomlKey {
		waysToSet = append(waysToSet, fmt.Sprintf("set %s in the config file", tomlKey))
	}

	advice := ""
	if len(waysToSet) > 0 {
		advice = " Please " + strings.Join(waysToSet, ", or ") + "."
	}
	return fmt.Errorf("%s is required.%s", option.Name, advice)
}

func positive(option *Option) error {
	switch v := option.ConfigKey.(type) {
	case *int, *int8, *int16, *int32, *int64, *time.Duration:
		if reflect.ValueOf(v).Elem().Int() <= 0 {
			return fmt.Errorf("%s must be positive", option.Name)
		}
	case *uint, *uint8, *uint16, *uint32, *uint64:
		if reflect.ValueOf(v).Elem().Uint() <= 0 {
			return fmt.Errorf("%s must be positive", option.Name)
		}
	case *float32, *float64:
		if reflect.ValueOf(v).Elem().Float() <= 0 {
			return fmt.Errorf("%s must be positive", option.Name)
		}
	default:
		return fmt.Errorf("%s is not a positive-able type", option.Name)
	}
	return nil
}

func unitInterval(option *Option) error {
	v, ok := option.ConfigKey.(*float64)
	if !ok {
		return fmt.Errorf("%s is not a float64", option.Name)
	}
	if *v < 0 || *v > 1 {
		return fmt.Errorf("%s must be between 0 and 1", option.Name)
	}
	return nil
}
