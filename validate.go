package configman

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validateOptions checks every Option carrying validator tags against its
// resolved value. All failures are reported together.
func validateOptions(tree *Namespace) error {
	validate := validator.New()
	var errs []error
	for entry := range tree.Walk() {
		opt, ok := entry.Node.(*Option)
		if !ok || opt.Validate == "" {
			continue
		}
		if err := validate.Var(opt.Value, opt.Validate); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				err = fmt.Errorf("failed %q", verrs[0].Tag())
			}
			errs = append(errs, fmt.Errorf("%w: %s = %s (from %s): %w",
				ErrInvalidValue, entry.Path, opt.String(), opt.Source(), err))
		}
	}
	return errors.Join(errs...)
}
