package journal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/reflow/internal/state"
)

// marshalArgs encodes vector arguments as a canonical JSON array, the
// byte form golden traces and fingerprints share.
func marshalArgs(args []state.Value) (string, error) {
	data, err := state.MarshalCanonical(state.Array(args))
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// marshalKeys encodes changed top-level keys as a canonical JSON array.
func marshalKeys(keys []string) (string, error) {
	arr := make(state.Array, len(keys))
	for i, k := range keys {
		arr[i] = state.String(k)
	}
	data, err := state.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal keys: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses the stored argument array back into values.
// Numbers decode through json.Number so integers beyond 2^53 survive
// the round trip instead of losing precision as float64.
func unmarshalArgs(data string) ([]state.Value, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	out := make([]state.Value, len(raw))
	for i, e := range raw {
		v, err := fromJSON(e)
		if err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
		out[i] = v
	}
	return out, nil
}

// unmarshalKeys parses the stored changed-key array.
func unmarshalKeys(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal keys: %w", err)
	}
	return keys, nil
}

// fromJSON converts a decoded JSON value into a state.Value.
func fromJSON(v any) (state.Value, error) {
	switch tv := v.(type) {
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return state.Int(i), nil
		}
		f, err := tv.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", tv, err)
		}
		return state.Float(f), nil
	case []any:
		out := make(state.Array, len(tv))
		for i, e := range tv {
			ev, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(state.Object, len(tv))
		for k, e := range tv {
			ev, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	default:
		return state.FromGo(v)
	}
}
