package risk

import (
	"fmt"
	"strings"
)

// ValidationError is returned when an order is refused before it exists.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Msg)
	}
	return "order rejected: " + strings.Join(msgs, "; ")
}

// Has reports whether the rejection carries the given violation code.
func (e *ValidationError) Has(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// ConfigurationError describes a malformed settings update. The previous
// settings stay in effect.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid risk settings: %s %s", e.Field, e.Msg)
}
