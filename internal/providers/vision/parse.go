package vision

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrNoNumber        = errors.New("vision: no numeric value in response")
	ErrAmbiguousNumber = errors.New("vision: more than one numeric value in response")
	ErrNegativeNumber  = errors.New("vision: negative reading")
)

var (
	numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	// Volume units carry a digit ("m3", "ft^3") that would read as a second number.
	unitPattern = regexp.MustCompile(`(?i)(^|[^a-z])(?:m|ft)(?:\^?3|³)([^0-9]|$)`)
)

// ParseReading extracts the single non-negative number contained in a model
// answer. Answers with zero or several numbers are rejected.
func ParseReading(text string) (float64, error) {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return 0, ErrNoNumber
	}

	matches := numberPattern.FindAllString(stripUnits(cleaned), -1)
	switch len(matches) {
	case 0:
		return 0, ErrNoNumber
	case 1:
	default:
		return 0, fmt.Errorf("%w: %q", ErrAmbiguousNumber, cleaned)
	}

	raw := strings.Replace(matches[0], ",", ".", 1)
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("vision: parse %q: %w", raw, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNoNumber
	}
	if value < 0 {
		return 0, ErrNegativeNumber
	}
	return value, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func stripUnits(s string) string {
	return unitPattern.ReplaceAllString(s, "${1} ${2}")
}
