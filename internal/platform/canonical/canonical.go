// Package canonical produces the deterministic byte form used as hash
// input by the audit chain and the analysis run checksum. Two logically
// equal values always serialize to the same bytes: mapping keys are
// sorted, timestamps are rendered as ISO-8601 strings, numbers use their
// shortest exact representation and no whitespace is emitted.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Marshal serializes v into its canonical byte form.
func Marshal(v any) ([]byte, error) {
	var b strings.Builder
	if err := writeValue(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical form of v.
func Hash(v any) (string, error) {
	raw, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func writeValue(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		return writeString(b, t)
	case int:
		b.WriteString(strconv.Itoa(t))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float32:
		return writeFloat(b, float64(t))
	case float64:
		return writeFloat(b, t)
	case json.Number:
		b.WriteString(t.String())
	case time.Time:
		return writeString(b, t.UTC().Format(time.RFC3339Nano))
	case *time.Time:
		if t == nil {
			b.WriteString("null")
			return nil
		}
		return writeString(b, t.UTC().Format(time.RFC3339Nano))
	case uuid.UUID:
		return writeString(b, t.String())
	case *uuid.UUID:
		if t == nil {
			b.WriteString("null")
			return nil
		}
		return writeString(b, t.String())
	case []string:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeString(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeValue(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = val
		}
		return writeMap(b, m)
	case map[string]any:
		return writeMap(b, t)
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

func writeMap(b *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeString(b, k); err != nil {
			return err
		}
		b.WriteByte(':')
		if err := writeValue(b, m[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

// writeFloat renders the shortest decimal form that round-trips exactly.
// Integral floats render without a fraction so a value that crossed a
// JSON decode boundary (where every number becomes float64) hashes the
// same as the int it started as.
func writeFloat(b *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: non-finite float %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		b.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func writeString(b *strings.Builder, s string) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	b.Write(raw)
	return nil
}
