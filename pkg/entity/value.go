package entity

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Normalize coerces a value to the canonical Go representation of the
// given kind: string, int64, float64, bool, time.Time, or []byte.
// Returns ErrTypeMismatch when the dynamic type cannot represent the
// kind. nil passes through unchanged; nullability is checked by the
// descriptor, not here.
func Normalize(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case uint:
			if uint64(n) <= math.MaxInt64 {
				return int64(n), nil
			}
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		}
	case KindFloat:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindTime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case KindBytes:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%T as %s: %w", v, kind, ErrTypeMismatch)
}

// Decode coerces a storage-side value to the canonical representation
// of the given kind. It is more lenient than Normalize: backends that
// do not distinguish bools from integers or times from strings still
// decode cleanly. Returns ErrTypeMismatch when no coercion applies.
func Decode(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindBool:
		if n, ok := v.(int64); ok {
			return n != 0, nil
		}
	case KindTime:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("%q as %s: %w", s, kind, ErrTypeMismatch)
			}
			return t, nil
		}
	case KindString:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
	case KindBytes:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	case KindFloat:
		if n, ok := v.(int64); ok {
			return float64(n), nil
		}
	}
	return Normalize(kind, v)
}

// Equal reports semantic equality of two normalized values of the
// given kind. Floats compare exactly, no epsilon: callers normalize
// representations before commit to avoid spurious dirty flags.
func Equal(kind Kind, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch kind {
	case KindTime:
		at, aok := a.(time.Time)
		bt, bok := b.(time.Time)
		return aok && bok && at.Equal(bt)
	case KindBytes:
		ab, aok := a.([]byte)
		bb, bok := b.([]byte)
		return aok && bok && bytes.Equal(ab, bb)
	default:
		return a == b
	}
}

// formatKeyValue renders one primary-key component as a stable string
// for use inside an identity Key.
func formatKeyValue(kind Kind, v any) (string, error) {
	if v == nil {
		return "", ErrMissingKey
	}
	norm, err := Normalize(kind, v)
	if err != nil {
		return "", err
	}
	switch n := norm.(type) {
	case string:
		if n == "" {
			return "", ErrMissingKey
		}
		return n, nil
	case int64:
		if n == 0 {
			return "", ErrMissingKey
		}
		return strconv.FormatInt(n, 10), nil
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(n), nil
	case time.Time:
		return n.UTC().Format(time.RFC3339Nano), nil
	case []byte:
		return hex.EncodeToString(n), nil
	}
	return "", fmt.Errorf("%T: %w", v, ErrTypeMismatch)
}
