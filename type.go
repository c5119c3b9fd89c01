package configman

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// String retrieves a string configuration value using the path.
// Non-string values are rendered with FormatValue.
func (c *Config) String(path string) (string, error) {
	val, found := c.Get(path)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNotAnOption, path)
	}
	if val == nil {
		return "", nil
	}
	if strVal, ok := val.(string); ok {
		return strVal, nil
	}
	return FormatValue(val), nil
}

// Int64 retrieves an integer configuration value using the path.
func (c *Config) Int64(path string) (int64, error) {
	val, found := c.Get(path)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotAnOption, path)
	}
	if val == nil {
		return 0, fmt.Errorf("value for path %s is nil, cannot convert to int64", path)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > 1<<63-1 {
			return 0, fmt.Errorf("value %d for path %s overflows int64", u, path)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != float64(int64(f)) {
			return 0, fmt.Errorf("value %v for path %s is not an integer", f, path)
		}
		return int64(f), nil
	case reflect.String:
		i, err := strconv.ParseInt(v.String(), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int64 for path %s: %w", v.String(), path, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("cannot convert type %T to int64 for path %s", val, path)
}

// Int is Int64 narrowed to int.
func (c *Config) Int(path string) (int, error) {
	i, err := c.Int64(path)
	return int(i), err
}

// Bool retrieves a boolean configuration value using the path.
func (c *Config) Bool(path string) (bool, error) {
	val, found := c.Get(path)
	if !found {
		return false, fmt.Errorf("%w: %s", ErrNotAnOption, path)
	}
	switch b := val.(type) {
	case bool:
		return b, nil
	case string:
		return ParseBool(b)
	case nil:
		return false, nil
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0, nil
	}
	return false, fmt.Errorf("cannot convert type %T to bool for path %s", val, path)
}

// Float64 retrieves a float configuration value using the path.
func (c *Config) Float64(path string) (float64, error) {
	val, found := c.Get(path)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotAnOption, path)
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	case reflect.String:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float64 for path %s: %w", v.String(), path, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert type %T to float64 for path %s", val, path)
}

// Duration retrieves a time.Duration configuration value using the path.
func (c *Config) Duration(path string) (time.Duration, error) {
	val, found := c.Get(path)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotAnOption, path)
	}
	switch d := val.(type) {
	case time.Duration:
		return d, nil
	case string:
		return ParseDuration(d)
	}
	out, err := coerceNative(val, durationType, nil)
	if err != nil {
		return 0, fmt.Errorf("cannot convert type %T to duration for path %s: %w", val, path, err)
	}
	return out.(time.Duration), nil
}

// Time retrieves a time.Time configuration value using the path.
func (c *Config) Time(path string) (time.Time, error) {
	val, found := c.Get(path)
	if !found {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotAnOption, path)
	}
	switch t := val.(type) {
	case time.Time:
		return t, nil
	case string:
		return ParseDateTime(t)
	}
	return time.Time{}, fmt.Errorf("cannot convert type %T to time for path %s", val, path)
}
