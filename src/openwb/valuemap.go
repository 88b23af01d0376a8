package openwb

import (
	"strconv"
	"strings"
)

// ValueMap converts coded payloads into readable labels. Integer keys are
// tried first, then string keys; anything unlisted passes through unchanged.
type ValueMap struct {
	ints    map[int]string
	strings map[string]string
}

// IntMap builds a value map keyed by integer codes
func IntMap(m map[int]string) *ValueMap {
	return &ValueMap{ints: m}
}

// StringMap builds a value map keyed by raw strings
func StringMap(m map[string]string) *ValueMap {
	return &ValueMap{strings: m}
}

// Lookup maps raw to its label. A payload that is not an integer is simply
// not an integer key; it never fails the lookup.
func (m *ValueMap) Lookup(raw string) string {
	if m == nil {
		return raw
	}
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		if v, ok := m.ints[n]; ok {
			return v
		}
	}
	if v, ok := m.strings[raw]; ok {
		return v
	}
	return raw
}

// CommandMap maps a user facing option to the payload published for it
type CommandMap map[string]string

// Payload returns the payload for option
func (c CommandMap) Payload(option string) (string, bool) {
	p, ok := c[option]
	return p, ok
}
