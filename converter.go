package configman

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timeType            = reflect.TypeOf(time.Time{})
	durationType        = reflect.TypeOf(time.Duration(0))
	regexpType          = reflect.TypeOf((*regexp.Regexp)(nil))
	ipType              = reflect.TypeOf(net.IP{})
	ipNetType           = reflect.TypeOf((*net.IPNet)(nil))
	urlType             = reflect.TypeOf((*url.URL)(nil))
	bytesType           = reflect.TypeOf([]byte(nil))
	classType           = reflect.TypeOf(Class{})
	requiredConfigType  = reflect.TypeOf((*RequiredConfig)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// dateTimeLayouts are tried in order. The naive layouts also accept
// fractional seconds when parsing.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

const naiveDateTimeLayout = "2006-01-02T15:04:05.999999999"

// fromStringFor infers the string converter for a declared type.
func fromStringFor(t reflect.Type) FromStringFunc {
	if t == nil {
		return ParseString
	}
	switch t {
	case timeType:
		return func(s string) (any, error) { return ParseDateTime(s) }
	case durationType:
		return func(s string) (any, error) { return ParseDuration(s) }
	case regexpType:
		return func(s string) (any, error) { return regexp.Compile(s) }
	case bytesType:
		return func(s string) (any, error) { return []byte(s), nil }
	case ipType:
		return parseIP
	case ipNetType:
		return parseIPNet
	case urlType:
		return parseURL
	case classType:
		return DefaultRegistry.ClassConverter()
	}

	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(s string) (any, error) {
			ptr := reflect.New(t)
			if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				return nil, err
			}
			return ptr.Elem().Interface(), nil
		}
	}
	if t.Implements(requiredConfigType) {
		return DefaultRegistry.valueConverter()
	}

	switch t.Kind() {
	case reflect.Interface:
		return ParseString
	case reflect.String:
		return func(s string) (any, error) {
			return reflect.ValueOf(s).Convert(t).Interface(), nil
		}
	case reflect.Bool:
		return func(s string) (any, error) {
			b, err := ParseBool(s)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(b).Convert(t).Interface(), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(s string) (any, error) {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 0, t.Bits())
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(n).Convert(t).Interface(), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(s string) (any, error) {
			n, err := strconv.ParseUint(strings.TrimSpace(s), 0, t.Bits())
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(n).Convert(t).Interface(), nil
		}
	case reflect.Float32, reflect.Float64:
		return func(s string) (any, error) {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), t.Bits())
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(f).Convert(t).Interface(), nil
		}
	case reflect.Slice:
		return listConverter(t, fromStringFor(t.Elem()))
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return func(s string) (any, error) {
				ptr := reflect.New(t)
				if err := json.Unmarshal([]byte(s), ptr.Interface()); err != nil {
					return nil, err
				}
				return ptr.Elem().Interface(), nil
			}
		}
	}

	return func(s string) (any, error) {
		return nil, fmt.Errorf("no string converter for type %s", t)
	}
}

// ListConverter returns a converter splitting a comma separated string and
// converting each non-empty item with item.
func ListConverter(item FromStringFunc) FromStringFunc {
	return listConverter(reflect.TypeOf([]any(nil)), item)
}

func listConverter(t reflect.Type, item FromStringFunc) FromStringFunc {
	return func(s string) (any, error) {
		parts := splitList(s)
		out := reflect.MakeSlice(t, 0, len(parts))
		for _, part := range parts {
			v, err := item(part)
			if err != nil {
				return nil, fmt.Errorf("list item %q: %w", part, err)
			}
			rv := reflect.ValueOf(v)
			if !rv.IsValid() {
				rv = reflect.Zero(t.Elem())
			}
			if !rv.Type().AssignableTo(t.Elem()) {
				if !rv.Type().ConvertibleTo(t.Elem()) {
					return nil, fmt.Errorf("list item %q: %T is not %s", part, v, t.Elem())
				}
				rv = rv.Convert(t.Elem())
			}
			out = reflect.Append(out, rv)
		}
		return out.Interface(), nil
	}
}

// splitList strips surrounding quotes, splits on commas and drops empty items.
func splitList(s string) []string {
	s = stripQuotes(strings.TrimSpace(s))
	var parts []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func stripQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// ParseString is the identity converter.
func ParseString(s string) (any, error) {
	return s, nil
}

// ParseBool accepts true/t/1/y/yes/on and false/f/0/n/no/off or an empty string.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "y", "yes", "on":
		return true, nil
	case "false", "f", "0", "n", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseDateTime accepts RFC 3339 and the ISO forms YYYY-MM-DDTHH:MM:SS[.fff]
// and YYYY-MM-DD. Times without an offset are UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q: %w", s, firstErr)
}

// FormatDateTime is the inverse of ParseDateTime.
func FormatDateTime(t time.Time) string {
	if t.Location() == time.UTC {
		return t.Format(naiveDateTimeLayout)
	}
	return t.Format(time.RFC3339Nano)
}

// ParseDuration accepts Go duration syntax ("1h30m") and the colon form
// "D HH:MM:SS" or "DD:HH:MM:SS", where trailing fields are the smallest units.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	fields := strings.Split(strings.ReplaceAll(s, " ", ":"), ":")
	if len(fields) > 4 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	units := []time.Duration{time.Second, time.Minute, time.Hour, 24 * time.Hour}
	var total time.Duration
	for i := range fields {
		field := fields[len(fields)-1-i]
		n, err := strconv.Atoi(field)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

func parseIP(s string) (any, error) {
	if len(s) > 45 {
		return nil, fmt.Errorf("invalid IP length: %d", len(s))
	}
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", s)
	}
	return ip, nil
}

func parseIPNet(s string) (any, error) {
	if len(s) > 49 {
		return nil, fmt.Errorf("invalid CIDR length: %d", len(s))
	}
	_, ipnet, err := net.ParseCIDR(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR: %w", err)
	}
	return ipnet, nil
}

func parseURL(s string) (any, error) {
	if len(s) > 2048 {
		return nil, fmt.Errorf("URL too long: %d bytes", len(s))
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	return u, nil
}

// FormatValue renders any supported value as a string that its inferred
// converter parses back to an equal value.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return FormatDateTime(x)
	case time.Duration:
		return x.String()
	case *regexp.Regexp:
		if x == nil {
			return ""
		}
		return x.String()
	case []byte:
		return string(x)
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, rv.Type().Bits())
	case reflect.Slice, reflect.Array:
		items := make([]string, rv.Len())
		for i := range items {
			items[i] = FormatValue(rv.Index(i).Interface())
		}
		return strings.Join(items, ", ")
	case reflect.Map:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
