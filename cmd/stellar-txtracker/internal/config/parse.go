package config

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

func parseBool(option *Option, i interface{}) error {
	var b bool
	switch v := i.(type) {
	case nil:
		return nil
	case bool:
		b = v
	case string:
		parsed, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("invalid boolean value %s: %s", option.Name, v)
		}
		b = parsed
	default:
		return fmt.Errorf("could not parse boolean %s: %v", option.Name, i)
	}
	//nolint:forcetypeassert
	*option.ConfigKey.(*bool) = b
	return nil
}

func parseInt(option *Option, i interface{}) error {
	switch v := i.(type) {
	case nil:
		return nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		reflect.ValueOf(option.ConfigKey).Elem().SetInt(parsed)
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return parseInt(option, fmt.Sprint(v))
	default:
		return fmt.Errorf("could not parse int %s: %v", option.Name, i)
	}
}

// parseUnsigned stores i into an unsigned ConfigKey, rejecting values above limit.
func parseUnsigned(option *Option, i interface{}, limit uint64, kind string) error {
	switch v := i.(type) {
	case nil:
		return nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		if parsed > limit {
			return fmt.Errorf("%s overflows %s", option.Name, kind)
		}
		reflect.ValueOf(option.ConfigKey).Elem().SetUint(parsed)
		return nil
	case int, int8, int16, int32, int64:
		if reflect.ValueOf(v).Int() < 0 {
			return fmt.Errorf("%s cannot be negative", option.Name)
		}
		return parseUnsigned(option, fmt.Sprint(v), limit, kind)
	case uint, uint8, uint16, uint32, uint64:
		return parseUnsigned(option, fmt.Sprint(v), limit, kind)
	default:
		return fmt.Errorf("could not parse %s %s: %v", kind, option.Name, i)
	}
}

func parseUint(option *Option, i interface{}) error {
	return parseUnsigned(option, i, math.MaxUint64, "uint")
}

func parseUint32(option *Option, i interface{}) error {
	return parseUnsigned(option, i, math.MaxUint32, "uint32")
}

func parseFloat(option *Option, i interface{}) error {
	switch v := i.(type) {
	case nil:
		return nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		reflect.ValueOf(option.ConfigKey).Elem().SetFloat(parsed)
		return nil
	case uint, uint8, uint16, uint32, uint64, int, int8, int16, int32, int64, float32, float64:
		return parseFloat(option, fmt.Sprint(v))
	default:
		return fmt.Errorf("could not parse float %s: %v", option.Name, i)
	}
}

func parseString(option *Option, i interface{}) error {
	switch v := i.(type) {
	case nil:
		return nil
	case string:
		strPtr, ok := option.ConfigKey.(*string)
		if !ok {
			return fmt.Errorf("invalid type for %s: expected *string", option.Name)
		}
		*strPtr = v
		return nil
	default:
		return fmt.Errorf("could not parse string %s: %v", option.Name, i)
	}
}

func parseDuration(option *Option, i interface{}) error {
	durationPtr, ok := option.ConfigKey.(*time.Duration)
	if !ok {
		return fmt.Errorf("invalid type for %s: expected *time.Duration", option.Name)
	}
	switch v := i.(type) {
	case nil:
		return nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("could not parse duration: %q: %w", v, err)
		}
		*durationPtr = d
	case time.Duration:
		*durationPtr = v
	case int64:
		// toml integers are read as seconds
		*durationPtr = time.Duration(v) * time.Second
	default:
		return fmt.Errorf("%s is not a duration", option.Name)
	}
	return nil
}

func parseStringSlice(option *Option, i interface{}) error {
	stringSlicePtr, ok := option.ConfigKey.(*[]string)
	if !ok {
		return fmt.Errorf("invalid type for %s: expected *[]string", option.Name)
	}
	switch v := i.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			*stringSlicePtr = nil
		} else {
			*stringSlicePtr = strings.Split(v, ",")
		}
	case []string:
		*stringSlicePtr = v
	case []interface{}:
		result := make([]string, len(v))
		for idx, s := range v {
			str, ok := s.(string)
			if !ok {
				return fmt.Errorf("could not parse %s: element %d is not a string", option.Name, idx)
			}
			result[idx] = str
		}
		*stringSlicePtr = result
	default:
		return fmt.Errorf("could not parse %s: %v", option.Name, v)
	}
	return nil
}
