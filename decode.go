package configman

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// coerceNative converts a non-string raw value into typ. Values whose type
// already matches are assigned directly; others are decoded with the same
// hooks Scan uses and, failing that, routed through their string form.
func coerceNative(raw any, typ reflect.Type, fromString FromStringFunc) (any, error) {
	if raw == nil {
		if typ == nil {
			return nil, nil
		}
		switch typ.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			return reflect.Zero(typ).Interface(), nil
		}
		return nil, fmt.Errorf("nil is not a valid %s", typ)
	}
	if typ == nil {
		return raw, nil
	}

	rt := reflect.TypeOf(raw)
	if rt.AssignableTo(typ) {
		return raw, nil
	}
	if typ.Implements(requiredConfigType) && rt.Implements(requiredConfigType) {
		return raw, nil
	}
	if n, ok := raw.(json.Number); ok && fromString != nil {
		return fromString(n.String())
	}

	out := reflect.New(typ)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out.Interface(),
		WeaklyTypedInput: true,
		DecodeHook:       decodeHook(),
	})
	if err != nil {
		return nil, fmt.Errorf("decoder creation failed: %w", err)
	}
	decodeErr := decoder.Decode(raw)
	if decodeErr == nil {
		return out.Elem().Interface(), nil
	}

	if fromString != nil && isScalarKind(rt.Kind()) && !errors.Is(decodeErr, errNumericMismatch) {
		if v, err := fromString(FormatValue(raw)); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s: %w", raw, typ, decodeErr)
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// errNumericMismatch marks typed numbers and bools that weak decoding would
// otherwise wrap, truncate or reinterpret.
var errNumericMismatch = errors.New("numeric mismatch")

// decodeHook returns the composite decode hook for all type conversions
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		// Network types
		stringToNetIPHookFunc(),
		stringToNetIPNetHookFunc(),
		stringToURLHookFunc(),

		// Time and pattern types, using the same parsers as option converters
		stringToDurationHookFunc(),
		stringToTimeHookFunc(),
		stringToRegexpHookFunc(),

		mapstructure.StringToSliceHookFunc(","),
		boolNumberHookFunc(),
		fractionalFloatHookFunc(),
		numericRangeHookFunc(),
	)
}

// stringToNetIPHookFunc handles net.IP conversion
func stringToNetIPHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != ipType {
			return data, nil
		}
		return parseIP(data.(string))
	}
}

// stringToNetIPNetHookFunc handles net.IPNet conversion
func stringToNetIPNetHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		isPtr := t.Kind() == reflect.Pointer
		targetType := t
		if isPtr {
			targetType = t.Elem()
		}
		if targetType != reflect.TypeOf(net.IPNet{}) {
			return data, nil
		}
		ipnet, err := parseIPNet(data.(string))
		if err != nil {
			return nil, err
		}
		if isPtr {
			return ipnet, nil
		}
		return *ipnet.(*net.IPNet), nil
	}
}

// stringToURLHookFunc handles url.URL conversion
func stringToURLHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		isPtr := t.Kind() == reflect.Pointer
		targetType := t
		if isPtr {
			targetType = t.Elem()
		}
		if targetType != reflect.TypeOf(url.URL{}) {
			return data, nil
		}
		u, err := parseURL(data.(string))
		if err != nil {
			return nil, err
		}
		if isPtr {
			return u, nil
		}
		return *u.(*url.URL), nil
	}
}

func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != durationType {
			return data, nil
		}
		return ParseDuration(data.(string))
	}
}

func stringToTimeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != timeType {
			return data, nil
		}
		return ParseDateTime(data.(string))
	}
}

func stringToRegexpHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != regexpType {
			return data, nil
		}
		return regexp.Compile(data.(string))
	}
}

// fractionalFloatHookFunc rejects floats with a fractional part bound for an
// integer field, which weak decoding would otherwise truncate.
func fractionalFloatHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.Float32 && f.Kind() != reflect.Float64 {
			return data, nil
		}
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return data, nil
		}
		v := reflect.ValueOf(data).Float()
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %v has a fractional part, cannot use as %s", errNumericMismatch, v, t)
		}
		return data, nil
	}
}

// boolNumberHookFunc refuses to turn a typed bool into a number or a number
// into a bool. Strings are left to the option converters.
func boolNumberHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		switch {
		case f.Kind() == reflect.Bool && isNumericKind(t.Kind()),
			isNumericKind(f.Kind()) && t.Kind() == reflect.Bool:
			return nil, fmt.Errorf("%w: cannot use %T %v as %s", errNumericMismatch, data, data, t)
		}
		return data, nil
	}
}

// numericRangeHookFunc rejects numbers that do not fit the target kind,
// including negative values bound for unsigned fields.
func numericRangeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if !isNumericKind(f.Kind()) || !isNumericKind(t.Kind()) {
			return data, nil
		}
		if !fitsKind(reflect.ValueOf(data), t) {
			return nil, fmt.Errorf("%w: %v overflows %s", errNumericMismatch, data, t)
		}
		return data, nil
	}
}

func fitsKind(v reflect.Value, t reflect.Type) bool {
	zero := reflect.Zero(t)
	switch {
	case v.CanInt():
		n := v.Int()
		switch {
		case zero.CanInt():
			return !zero.OverflowInt(n)
		case zero.CanUint():
			return n >= 0 && !zero.OverflowUint(uint64(n))
		default:
			return !zero.OverflowFloat(float64(n))
		}
	case v.CanUint():
		n := v.Uint()
		switch {
		case zero.CanInt():
			return n <= math.MaxInt64 && !zero.OverflowInt(int64(n))
		case zero.CanUint():
			return !zero.OverflowUint(n)
		default:
			return !zero.OverflowFloat(float64(n))
		}
	default:
		n := v.Float()
		switch {
		case zero.CanInt():
			return n >= math.MinInt64 && n < math.MaxInt64 && !zero.OverflowInt(int64(n))
		case zero.CanUint():
			return n >= 0 && n < math.MaxUint64 && !zero.OverflowUint(uint64(n))
		default:
			return math.IsInf(n, 0) || math.IsNaN(n) || !zero.OverflowFloat(n)
		}
	}
}

// Scan decodes the configuration under basePath into target, a non-nil
// pointer to a struct or map. Struct fields are matched by the configured
// tag name ("toml" by default).
func (c *Config) Scan(basePath string, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("target of Scan must be a non-nil pointer, got %T", target)
	}

	sectionData := navigateToPath(c.values, basePath)
	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		if sectionData == nil {
			sectionMap = make(map[string]any)
		} else {
			return fmt.Errorf("path %q refers to non-map value (type %T)", basePath, sectionData)
		}
	}

	tagName := c.tagName
	if tagName == "" {
		tagName = "toml"
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          tagName,
		WeaklyTypedInput: true,
		DecodeHook:       decodeHook(),
	})
	if err != nil {
		return fmt.Errorf("decoder creation failed: %w", err)
	}
	if err := decoder.Decode(deepCopyMap(sectionMap)); err != nil {
		return fmt.Errorf("decode failed for path %q: %w", basePath, err)
	}
	return nil
}

// navigateToPath traverses nested map to reach the specified path
func navigateToPath(nested map[string]any, path string) any {
	path = strings.TrimSuffix(path, ".")
	if path == "" {
		return nested
	}

	current := any(nested)
	for _, segment := range strings.Split(path, ".") {
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		value, exists := currentMap[segment]
		if !exists {
			return nil
		}
		current = value
	}
	return current
}
