package classroom

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength matches the classrooms.name CHECK constraint.
const MaxNameLength = 16

// NormaliseName trims surrounding whitespace and validates the result.
func NormaliseName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxNameLength)
	}
	return name, nil
}
