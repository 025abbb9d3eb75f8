package schema

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts the date and timestamp layouts used in query strings
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// Coerce converts a raw string into the Go value matching t. Values that do
// not parse, and non-string values, are returned unchanged.
func Coerce(t PrimitiveType, v any) any {
	raw, ok := v.(string)
	if !ok {
		return v
	}

	switch t {
	case TypeInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			return n
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f
		}
	case TypeBoolean:
		if b, ok := ParseBool(raw); ok {
			return b
		}
	case TypeDate, TypeDateTime:
		if tm, ok := ParseTime(raw); ok {
			return tm
		}
	}

	return v
}

// Matchable reports whether v can be compared against a column of t. A
// string left over after Coerce to a typed column never matches.
func Matchable(t PrimitiveType, v any) bool {
	if _, isString := v.(string); !isString {
		return true
	}

	return !(t.IsNumeric() || t.IsTemporal() || t == TypeBoolean)
}

// ParseBool extends strconv.ParseBool with yes/no and on/off
func ParseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, true
	case "0", "f", "false", "no", "n", "off":
		return false, true
	}

	return false, false
}
