package session

import (
	"fmt"
	"strconv"
)

// Params are the arguments of an API call. Values are strings or numbers,
// anything else is rendered with fmt.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the wire form of the value stored at key and whether it was set.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	return FormatValue(v), true
}

// Strings renders every value to its wire form, nil values are dropped.
func (p Params) Strings() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		if v == nil {
			continue
		}
		out[k] = FormatValue(v)
	}
	return out
}

func FormatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
