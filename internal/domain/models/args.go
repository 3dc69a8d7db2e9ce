package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// BigIntTag marks an arbitrary-precision integer in serialized args:
// {"$bigint": "123456789012345678901234567890"}
const BigIntTag = "$bigint"

// LegacyBigIntMinDigits is the shortest all-digit string the legacy heuristic
// reinterprets as a big integer.
const LegacyBigIntMinDigits = 16

// MarshalJSON tags big integers so they survive the round trip exactly
func (a Args) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	tagged, err := tagValue([]any(a))
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagged)
}

// UnmarshalJSON decodes numbers exactly and reconstructs tagged big integers
func (a *Args) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode deployment args: %w", err)
	}
	if raw == nil {
		*a = nil
		return nil
	}

	revived, err := untagValue(raw)
	if err != nil {
		return err
	}
	*a = Args(revived.([]any))
	return nil
}

// ReviveDigitStrings converts long all-digit strings into big integers. This
// mirrors how the legacy store wrote them and is ambiguous by nature: a genuine
// numeric string of that length is reinterpreted too.
func (a Args) ReviveDigitStrings(minDigits int) Args {
	if a == nil {
		return nil
	}
	return Args(reviveDigits([]any(a), minDigits).([]any))
}

// Canonical returns args in the form they take after a serialization round trip
func (a Args) Canonical() (Args, error) {
	if a == nil {
		return nil, nil
	}
	data, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out Args
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return out, nil
}

func tagValue(v any) (any, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, nil
		}
		return map[string]any{BigIntTag: val.String()}, nil
	case big.Int:
		return map[string]any{BigIntTag: val.String()}, nil
	case Args:
		return tagValue([]any(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			tagged, err := tagValue(item)
			if err != nil {
				return nil, fmt.Errorf("arg %d: %w", i, err)
			}
			out[i] = tagged
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			tagged, err := tagValue(item)
			if err != nil {
				return nil, fmt.Errorf("arg %q: %w", k, err)
			}
			out[k] = tagged
		}
		return out, nil
	default:
		return val, nil
	}
}

func untagValue(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		return decodeNumber(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			decoded, err := untagValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	case map[string]any:
		if tag, ok := val[BigIntTag]; ok && len(val) == 1 {
			s, ok := tag.(string)
			if !ok {
				return nil, fmt.Errorf("big integer tag must hold a decimal string, got %T", tag)
			}
			n, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, fmt.Errorf("invalid big integer %q", s)
			}
			return n, nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			decoded, err := untagValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil
	default:
		return val, nil
	}
}

func decodeNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		b, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return b, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, nil
}

func reviveDigits(v any, minDigits int) any {
	switch val := v.(type) {
	case string:
		if len(val) >= minDigits && isAllDigits(val) {
			if n, ok := new(big.Int).SetString(val, 10); ok {
				return n
			}
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = reviveDigits(item, minDigits)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = reviveDigits(item, minDigits)
		}
		return out
	default:
		return val
	}
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
