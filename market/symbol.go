package market

import (
	"fmt"
	"strings"
)

// NormalizeSymbol upper-cases and trims a ticker ("  aapl " -> "AAPL").
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateSymbol accepts 1-10 characters of A-Z, 0-9, '.', '-' and '_'.
func ValidateSymbol(s string) error {
	if s == "" {
		return fmt.Errorf("symbol is required")
	}
	if len(s) > 10 {
		return fmt.Errorf("symbol %q is too long", s)
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
		default:
			return fmt.Errorf("symbol %q contains invalid character %q", s, r)
		}
	}
	return nil
}
