package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes a Value into its canonical JSON form, the
// byte sequence fingerprints and golden traces are computed over.
//
// The form follows RFC 8785 conventions:
//   - object keys sorted by UTF-16 code units
//   - strings NFC-normalized before escaping
//   - HTML characters not escaped
//   - U+2028 and U+2029 emitted literally
//   - no insignificant whitespace
//
// NaN and infinities have no JSON representation and return an error.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v Value) error {
	switch tv := v.(type) {
	case nil, Null:
		buf.WriteString("null")
		return nil
	case Bool:
		if tv {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Int:
		buf.WriteString(strconv.FormatInt(int64(tv), 10))
		return nil
	case Float:
		return marshalCanonicalFloat(buf, float64(tv))
	case String:
		s, err := marshalCanonicalString(string(tv))
		if err != nil {
			return err
		}
		buf.WriteString(s)
		return nil
	case Array:
		buf.WriteByte('[')
		for i, e := range tv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case Object:
		buf.WriteByte('{')
		for i, k := range SortedKeys(tv) {
			if i > 0 {
				buf.WriteByte(',')
			}
			ks, err := marshalCanonicalString(k)
			if err != nil {
				return err
			}
			buf.WriteString(ks)
			buf.WriteByte(':')
			if err := marshalCanonical(buf, tv[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("state: cannot canonicalize %T", v)
	}
}

func marshalCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("state: float %v has no canonical form", f)
	}
	if f == 0 {
		// Negative zero collapses to zero.
		buf.WriteByte('0')
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// marshalCanonicalString produces the canonical JSON encoding of s,
// including the surrounding quotes. The string is NFC-normalized
// first so visually identical text fingerprints identically.
func marshalCanonicalString(s string) (string, error) {
	normalized := norm.NFC.String(s)

	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return "", fmt.Errorf("state: encode string: %w", err)
	}

	// Encode appends a newline; the canonical form has none.
	out := strings.TrimSuffix(sb.String(), "\n")

	// encoding/json always escapes the JS line separators even with
	// HTML escaping off. The canonical form wants them literal.
	out = unescapeU2028U2029(out)
	return out, nil
}

// unescapeU2028U2029 rewrites \u2028 and \u2029 escape sequences back
// to their literal characters. A sequence only counts as an escape
// when preceded by an even number of backslashes; otherwise the
// backslash itself is escaped and the "u2028" text is literal.
func unescapeU2028U2029(s string) string {
	if !strings.Contains(s, `\u202`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	backslashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && backslashes%2 == 0 && i+5 < len(s) && s[i+1] == 'u' {
			switch s[i+2:i+6] {
			case "2028":
				sb.WriteRune('\u2028')
				i += 5
				backslashes = 0
				continue
			case "2029":
				sb.WriteRune('\u2029')
				i += 5
				backslashes = 0
				continue
			}
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
