package types

import (
	"fmt"
	"strings"
)

// Account name limits.
const (
	MinAccountNameLength = 3
	MaxAccountNameLength = 16
)

// ValidateAccountName checks the chain naming rules: 3 to 16 characters,
// dot-separated labels of at least three characters, each starting with a
// lowercase letter, ending with a letter or digit, containing only
// lowercase letters, digits and single hyphens.
func ValidateAccountName(name string) error {
	if len(name) < MinAccountNameLength || len(name) > MaxAccountNameLength {
		return fmt.Errorf("account name %q: length must be %d..%d", name, MinAccountNameLength, MaxAccountNameLength)
	}
	for _, label := range strings.Split(name, ".") {
		if err := validateLabel(label); err != nil {
			return fmt.Errorf("account name %q: %w", name, err)
		}
	}
	return nil
}

func validateLabel(label string) error {
	if len(label) < MinAccountNameLength {
		return fmt.Errorf("label %q shorter than %d", label, MinAccountNameLength)
	}
	if label[0] < 'a' || label[0] > 'z' {
		return fmt.Errorf("label %q must start with a letter", label)
	}
	last := label[len(label)-1]
	if !isLower(last) && !isDigit(last) {
		return fmt.Errorf("label %q must end with a letter or digit", label)
	}
	for i := 1; i < len(label)-1; i++ {
		c := label[i]
		switch {
		case isLower(c), isDigit(c):
		case c == '-':
			if label[i-1] == '-' {
				return fmt.Errorf("label %q has consecutive hyphens", label)
			}
		default:
			return fmt.Errorf("label %q has invalid character %q", label, c)
		}
	}
	return nil
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
