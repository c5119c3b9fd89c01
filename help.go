package configman

import (
	"fmt"
	"io"
	"strings"
)

// writeHelp lists every Option of tree in walk order with its documentation,
// default and current value. Positional arguments are named in the usage line.
func writeHelp(w io.Writer, app, description string, tree *Namespace) error {
	var b strings.Builder
	if description != "" {
		fmt.Fprintf(&b, "%s - %s\n\n", app, description)
	}

	var (
		arguments []*Option
		flags     []WalkEntry
	)
	for entry := range tree.Walk() {
		opt, ok := entry.Node.(*Option)
		if !ok {
			continue
		}
		if opt.IsArgument {
			arguments = append(arguments, opt)
		} else {
			flags = append(flags, entry)
		}
	}

	fmt.Fprintf(&b, "usage:\n  %s [OPTIONS]...", app)
	for _, arg := range arguments {
		fmt.Fprintf(&b, " %s", arg.Name)
	}
	b.WriteString("\n")

	if len(arguments) > 0 {
		b.WriteString("\nARGUMENTS:\n")
		for _, arg := range arguments {
			fmt.Fprintf(&b, "  %s\n", arg.Name)
			writeOptionDetails(&b, arg)
		}
	}

	if len(flags) > 0 {
		b.WriteString("\nOPTIONS:\n")
		for _, entry := range flags {
			opt := entry.Node.(*Option)
			if len(opt.ShortForm) == 1 {
				fmt.Fprintf(&b, "  -%s, --%s\n", opt.ShortForm, entry.Path)
			} else {
				fmt.Fprintf(&b, "  --%s\n", entry.Path)
			}
			writeOptionDetails(&b, opt)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeOptionDetails(b *strings.Builder, opt *Option) {
	if opt.Doc != "" {
		fmt.Fprintf(b, "    %s\n", opt.Doc)
	}
	def := FormatValue(opt.Default)
	if opt.ToString != nil {
		def = opt.ToString(opt.Default)
	}
	current := optionText(opt)
	switch {
	case current != def:
		fmt.Fprintf(b, "    (default: %s) (current: %s)\n", def, current)
	case def != "":
		fmt.Fprintf(b, "    (default: %s)\n", def)
	}
}
