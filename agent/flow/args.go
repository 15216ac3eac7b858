package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
)

// Args are the raw tool-call arguments. Accessors are lenient: a missing or
// wrong-typed value reads as absent.
type Args map[string]any

// ParseArgs decodes a JSON object. An empty payload yields empty Args.
func ParseArgs(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: decode arguments: %v", contractx.ErrValidation, err)
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// String returns the trimmed value when it is a non-empty string.
func (a Args) String(key string) (string, bool) {
	v, ok := a[key].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (a Args) StringOr(key, def string) string {
	if v, ok := a.String(key); ok {
		return v
	}
	return def
}

// Bool accepts JSON booleans and the strings strconv.ParseBool understands.
func (a Args) Bool(key string) (bool, bool) {
	switch v := a[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

func (a Args) BoolOr(key string, def bool) bool {
	if v, ok := a.Bool(key); ok {
		return v
	}
	return def
}
