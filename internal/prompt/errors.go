package prompt

import (
	"errors"
	"fmt"
)

// ErrCompressionDegraded marks a failed digest refresh. Non-fatal: the
// prior digest stays in use and the condition surfaces only through
// diagnostics.
var ErrCompressionDegraded = errors.New("digest compression degraded")

// ConfigurationError is fatal: a mandatory section cannot fit even
// alone. This is a deployment misconfiguration, not a runtime
// degradation, and pack() aborts before any trimming.
type ConfigurationError struct {
	Section string
	Cost    int
	Budget  int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mandatory section %q needs %d units but its hard budget is %d",
		e.Section, e.Cost, e.Budget)
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
