package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"unicode/utf8"

	apperrors "github.com/allisson/dormkeys/internal/errors"
)

// Bounds enforced by Map.Validate.
const (
	MaxEntries      = 32
	MaxKeyLength    = 64
	MaxStringLength = 1024
)

// Map is a bounded document of scalar values. Treat it as immutable: With and
// Without return modified copies.
type Map map[string]Value

// Validate checks the size bounds of the document.
func (m Map) Validate() error {
	if len(m) > MaxEntries {
		return apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("metadata exceeds %d entries", MaxEntries))
	}
	for k, v := range m {
		if k == "" || utf8.RuneCountInString(k) > MaxKeyLength {
			return apperrors.Wrap(
				apperrors.ErrInvalidInput,
				fmt.Sprintf("metadata keys must be 1..%d characters", MaxKeyLength),
			)
		}
		if s, ok := v.Str(); ok && len(s) > MaxStringLength {
			return apperrors.Wrap(
				apperrors.ErrInvalidInput,
				fmt.Sprintf("metadata value for %q exceeds %d bytes", k, MaxStringLength),
			)
		}
	}
	return nil
}

// With returns a copy of m with key set to value.
func (m Map) With(key string, value Value) Map {
	out := make(Map, len(m)+1)
	maps.Copy(out, m)
	out[key] = value
	return out
}

// Without returns a copy of m without key.
func (m Map) Without(key string) Map {
	out := maps.Clone(m)
	delete(out, key)
	return out
}

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// Merge returns a copy of m overlaid with other.
func (m Map) Merge(other Map) Map {
	out := make(Map, len(m)+len(other))
	maps.Copy(out, m)
	maps.Copy(out, other)
	return out
}

// FromMap converts an untyped JSON document, rejecting nested values, and validates the result.
func FromMap(raw map[string]any) (Map, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(Map, len(raw))
	for k, v := range raw {
		value, err := FromAny(v)
		if err != nil {
			return nil, apperrors.Wrap(err, fmt.Sprintf("metadata key %q", k))
		}
		out[k] = value
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Parse decodes a stored document. NULL and empty columns decode to a nil Map.
func Parse(data []byte) (Map, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var m Map
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Bytes encodes m for storage. A nil or empty map encodes to "{}".
func (m Map) Bytes() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(m))
}
