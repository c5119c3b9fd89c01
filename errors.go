package configman

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigFileMissing is returned when an explicitly requested configuration file does not exist.
	ErrConfigFileMissing = errors.New("configuration file missing")

	// ErrNotAnOption is returned when a strict source or lookup addresses a key with no Option.
	ErrNotAnOption = errors.New("not an option")

	// ErrOptionDefinition is returned for malformed schemas.
	ErrOptionDefinition = errors.New("option definition error")

	// ErrCannotConvert is returned when a raw value cannot be converted to an Option's type.
	ErrCannotConvert = errors.New("cannot convert")

	// ErrCantHandleSource is returned when an adapter does not recognize the object handed to it.
	ErrCantHandleSource = errors.New("cannot handle source")

	// ErrCLIParse indicates that command-line argument parsing failed.
	ErrCLIParse = errors.New("failed to parse command-line arguments")

	// ErrHelpRequested is returned by Build after help output was written.
	ErrHelpRequested = errors.New("help requested")

	// ErrInvalidValue is returned when a resolved value fails its validation tag.
	ErrInvalidValue = errors.New("invalid value")

	// ErrAggregation is returned when an aggregation function fails.
	ErrAggregation = errors.New("aggregation failed")
)

// ConversionError describes a raw value that could not be converted for an Option.
type ConversionError struct {
	Path   string
	Raw    any
	Source string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s: %q cannot be converted for %s", ErrCannotConvert, fmt.Sprint(e.Raw), e.Path)
	if e.Source != "" {
		msg += " (from " + e.Source + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCannotConvert}
	}
	return []error{ErrCannotConvert, e.Err}
}

// NotAnOptionError reports a key that has no matching Option in the tree.
type NotAnOptionError struct {
	Path   string
	Source string
}

func (e *NotAnOptionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s: %s", ErrNotAnOption, e.Path)
	}
	return fmt.Sprintf("%s: %s (from %s)", ErrNotAnOption, e.Path, e.Source)
}

func (e *NotAnOptionError) Unwrap() error { return ErrNotAnOption }

// AggregationError wraps the failure of a single aggregation.
type AggregationError struct {
	Path string
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrAggregation, e.Path, e.Err)
}

func (e *AggregationError) Unwrap() []error { return []error{ErrAggregation, e.Err} }

func definitionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrOptionDefinition, fmt.Sprintf(format, args...))
}
