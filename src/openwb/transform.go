package openwb

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Resolve turns a raw payload into an entity state: transform first, then the
// value map, otherwise the payload as is.
func Resolve(d *Description, raw string) (string, error) {
	value := raw
	if d.Transform != nil {
		v, err := d.Transform(raw)
		if err != nil {
			return "", err
		}
		value = v
	}
	if d.ValueMap != nil {
		value = d.ValueMap.Lookup(value)
	}
	return value, nil
}

// Chain applies transforms left to right
func Chain(transforms ...Transform) Transform {
	return func(raw string) (string, error) {
		value := raw
		for _, t := range transforms {
			v, err := t(value)
			if err != nil {
				return "", err
			}
			value = v
		}
		return value, nil
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatDecimal keeps at least one decimal so list elements read as floats
func formatDecimal(v float64) string {
	s := formatFloat(v)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q as number: %w", raw, err)
	}
	return v, nil
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// SplitListFloat extracts element i of a list payload such as "[1.0, 2.0, 3.0]".
// A missing or non-numeric element yields ErrNoValue.
func SplitListFloat(i int) Transform {
	return func(raw string) (string, error) {
		s := strings.NewReplacer("[", "", "]", "").Replace(raw)
		parts := strings.Split(s, ",")
		if i < 0 || i >= len(parts) {
			return "", fmt.Errorf("%w: index %d of %q", ErrNoValue, i, raw)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: element %d of %q", ErrNoValue, i, raw)
		}
		return formatDecimal(v), nil
	}
}

// ScaleRound multiplies a numeric payload by factor and rounds to digits
func ScaleRound(factor float64, digits int) Transform {
	return func(raw string) (string, error) {
		v, err := parseFloat(raw)
		if err != nil {
			return "", err
		}
		return formatFloat(round(v*factor, digits)), nil
	}
}

// Round rounds a numeric payload to digits
func Round(digits int) Transform {
	return ScaleRound(1, digits)
}

// Abs returns the absolute value of a numeric payload
func Abs(raw string) (string, error) {
	v, err := parseFloat(raw)
	if err != nil {
		return "", err
	}
	return formatFloat(math.Abs(v)), nil
}

// Negate flips the sign of a numeric payload, rounded to whole units
var Negate = ScaleRound(-1, 0)

// ParseNumber normalises a numeric payload
func ParseNumber(raw string) (string, error) {
	v, err := parseFloat(raw)
	if err != nil {
		return "", err
	}
	return formatFloat(v), nil
}

// StripQuotes removes every double quote
func StripQuotes(raw string) (string, error) {
	return strings.ReplaceAll(raw, `"`, ""), nil
}

const maxStateLength = 255

// TrimFault strips surrounding quotes and periods and caps the text at the
// maximum state length
func TrimFault(raw string) (string, error) {
	s := strings.Trim(strings.Trim(raw, `"`), ".")
	if r := []rune(s); len(r) > maxStateLength {
		s = string(r[:maxStateLength])
	}
	return s, nil
}

// JSONField projects a top-level field out of a JSON object payload. A
// missing or null field yields ErrNoValue.
func JSONField(name string) Transform {
	return func(raw string) (string, error) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return "", fmt.Errorf("failed to decode JSON payload: %w", err)
		}
		v, ok := obj[name]
		if !ok || v == nil {
			return "", fmt.Errorf("%w: field %q", ErrNoValue, name)
		}
		switch t := v.(type) {
		case string:
			return t, nil
		case float64:
			return formatFloat(t), nil
		case bool:
			return strconv.FormatBool(t), nil
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}
}

// JSONName projects the "name" field with quotes removed
var JSONName = Chain(JSONField("name"), StripQuotes)

// UnixTimestamp reads a unix seconds field from a JSON payload and renders it
// as an RFC 3339 UTC timestamp
func UnixTimestamp(field string) Transform {
	project := JSONField(field)
	return func(raw string) (string, error) {
		s, err := project(raw)
		if err != nil {
			return "", err
		}
		v, err := parseFloat(s)
		if err != nil {
			return "", err
		}
		return time.Unix(int64(v), 0).UTC().Format(time.RFC3339), nil
	}
}

// SoCTimestampLayout is the vehicle SoC timestamp format, e.g. "01/02/2024, 15:29:12"
const SoCTimestampLayout = "01/02/2006, 15:04:05"

// LocalTimestamp reads a wall clock field from a JSON payload. The wallbox
// reports local time without a zone, so loc is assumed.
func LocalTimestamp(field, layout string, loc *time.Location) Transform {
	project := JSONField(field)
	return func(raw string) (string, error) {
		s, err := project(raw)
		if err != nil {
			return "", err
		}
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return "", fmt.Errorf("failed to parse timestamp %q: %w", s, err)
		}
		return t.Format(time.RFC3339), nil
	}
}

// TimeRemaining converts "2 H 15 Min" or "40 Min" into the expected end of
// charging, relative to now
func TimeRemaining(now func() time.Time) Transform {
	return func(raw string) (string, error) {
		fields := strings.Fields(raw)
		var delta time.Duration
		switch {
		case strings.Contains(raw, "H") && len(fields) >= 3:
			h, err := strconv.Atoi(fields[0])
			if err != nil {
				return "", fmt.Errorf("%w: %q", ErrNoValue, raw)
			}
			m, err := strconv.Atoi(fields[2])
			if err != nil {
				return "", fmt.Errorf("%w: %q", ErrNoValue, raw)
			}
			delta = time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		case strings.Contains(raw, "Min") && len(fields) >= 1:
			m, err := strconv.Atoi(fields[0])
			if err != nil {
				return "", fmt.Errorf("%w: %q", ErrNoValue, raw)
			}
			delta = time.Duration(m) * time.Minute
		default:
			return "", fmt.Errorf("%w: %q", ErrNoValue, raw)
		}
		return now().UTC().Add(delta).Format(time.RFC3339), nil
	}
}

// Binary sensor and switch states
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// ParseBinary reads an integer (non-zero is on) or "true"/"false"
func ParseBinary(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		if n != 0 {
			return StateOn, nil
		}
		return StateOff, nil
	}
	switch s {
	case "true":
		return StateOn, nil
	case "false":
		return StateOff, nil
	}
	return "", fmt.Errorf("failed to parse %q as binary state", raw)
}

// ParseSwitch reads "1" as on and "0" as off; anything else is unknown
func ParseSwitch(raw string) (string, error) {
	switch strings.TrimSpace(raw) {
	case "1":
		return StateOn, nil
	case "0":
		return StateOff, nil
	}
	return "", fmt.Errorf("%w: switch payload %q", ErrNoValue, raw)
}

// PhasesIcon picks the icon for a phases-in-use value
func PhasesIcon(value string) string {
	switch strings.TrimSpace(value) {
	case "0":
		return "mdi:numeric-0-circle-outline"
	case "1":
		return "mdi:numeric-1-circle-outline"
	case "3":
		return "mdi:numeric-3-circle-outline"
	}
	return "mdi:numeric"
}
