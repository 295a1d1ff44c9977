package rule

import (
	"errors"
	"fmt"
)

// ErrUnresolved is wrapped when a referenced device is not in the registry
var ErrUnresolved = errors.New("device not found")

// ConfigError is a rule that cannot be installed. Nothing is subscribed.
type ConfigError struct {
	Rule  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rule %s: %s: %s", e.Rule, e.Field, e.Err.Error())
	}
	return fmt.Sprintf("rule %s: %s", e.Rule, e.Err.Error())
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ResolutionError is an action whose target was gone when the rule fired
type ResolutionError struct {
	Rule   string
	Target string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("rule %s: target %s: %s", e.Rule, e.Target, ErrUnresolved.Error())
}

func (e *ResolutionError) Unwrap() error { return ErrUnresolved }
