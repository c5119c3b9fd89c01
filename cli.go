package configman

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
)

// CommandLineSource overlays command-line arguments. Every Option is a long
// flag named by its dotted path ("--db.host=x" or "--db.host x"); an Option's
// ShortForm adds a one letter alias. Bool Options may be given without a
// value. Positional arguments fill the Options marked AsArgument in walk order.
type CommandLineSource struct {
	Args []string

	extra []string
}

// NewCommandLineSource wraps args, which exclude the program name.
func NewCommandLineSource(args []string) *CommandLineSource {
	return &CommandLineSource{Args: args}
}

func (s *CommandLineSource) GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error) {
	fs, positional := flagSetFor(tree)
	fs.ParseErrorsWhitelist.UnknownFlags = ignoreMismatches

	if err := fs.Parse(s.Args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		if name, ok := strings.CutPrefix(err.Error(), "unknown flag: --"); ok {
			return nil, fmt.Errorf("%w: %w", ErrCLIParse, &NotAnOptionError{Path: name, Source: s.Identity()})
		}
		return nil, fmt.Errorf("%w: %w", ErrCLIParse, err)
	}

	flat := make(map[string]any)
	fs.Visit(func(f *pflag.Flag) {
		flat[f.Name] = f.Value.String()
	})

	args := fs.Args()
	for i, path := range positional {
		if i >= len(args) {
			break
		}
		flat[path] = args[i]
	}
	s.extra = nil
	if len(args) > len(positional) {
		s.extra = append([]string(nil), args[len(positional):]...)
	}

	return matchValues(tree, flat, ignoreMismatches, s.Identity(), kind)
}

func (s *CommandLineSource) Identity() string       { return "command line" }
func (s *CommandLineSource) IgnoreMismatches() bool { return false }

// Extra returns the positional arguments not consumed by argument Options in
// the last read.
func (s *CommandLineSource) Extra() []string {
	return s.extra
}

// flagSetFor declares one string flag per Option of tree and returns the
// paths of positional argument Options in walk order.
func flagSetFor(tree *Namespace) (*pflag.FlagSet, []string) {
	fs := pflag.NewFlagSet("configman", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.SortFlags = false

	var positional []string
	for entry := range tree.Walk() {
		opt, ok := entry.Node.(*Option)
		if !ok {
			continue
		}
		if opt.IsArgument {
			positional = append(positional, entry.Path)
			continue
		}
		short := opt.ShortForm
		if len(short) != 1 || fs.ShorthandLookup(short) != nil {
			short = ""
		}
		fs.StringP(entry.Path, short, "", opt.Doc)
		if t := opt.Type(); t != nil && t.Kind() == reflect.Bool {
			fs.Lookup(entry.Path).NoOptDefVal = "true"
		}
	}
	return fs, positional
}
