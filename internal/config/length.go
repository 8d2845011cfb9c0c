package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var lengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)\s*$`)

// ParseLength converts a CSS length such as "0.5cm" to inches.
// A bare number is read as inches.
func ParseLength(value string) (float64, error) {
	m := lengthPattern.FindStringSubmatch(value)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid length %q", value)
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", value, err)
	}

	switch strings.ToLower(m[2]) {
	case "", "in":
		return amount, nil
	case "cm":
		return amount / 2.54, nil
	case "mm":
		return amount / 25.4, nil
	case "pt":
		return amount / 72.0, nil
	case "px":
		return amount / 96.0, nil
	default:
		return 0, fmt.Errorf("unsupported length unit %q", m[2])
	}
}
