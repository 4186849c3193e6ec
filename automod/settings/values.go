package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

var ErrInvalidSetting = errors.New("invalid setting")

// Raw setting values by key. After Normalize, values are string, bool, int64 or []string depending on the setting type.
type Values map[string]any

// Coerces a raw value (eg, decoded from JSON, or a CLI string) to the canonical type for the key and validates it.
func Normalize(key string, raw any) (any, error) {
	def, ok := Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: unknown setting %q", ErrInvalidSetting, key)
	}
	v, err := coerce(def, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSetting, key, err)
	}
	if msg := validate(def, v); msg != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidSetting, key, msg)
	}
	return v, nil
}

// Validates a single raw value without storing it.
func Validate(key string, raw any) error {
	_, err := Normalize(key, raw)
	return err
}

// Normalizes every value, returning a new map. All problems are reported together.
func (v Values) Normalize() (Values, error) {
	out := make(Values, len(v))
	var errs []error
	for key, raw := range v {
		n, err := Normalize(key, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[key] = n
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func Defaults() Values {
	out := make(Values, len(Catalogue))
	for _, def := range Catalogue {
		out[def.Key] = def.Default
	}
	return out
}

// Returns a copy with defaults filled in for any missing keys.
func (v Values) WithDefaults() Values {
	out := Defaults()
	for key, val := range v {
		out[key] = val
	}
	return out
}

func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return s
}

func (v Values) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}

func (v Values) Int(key string) int64 {
	n, _ := v[key].(int64)
	return n
}

func (v Values) List(key string) []string {
	l, _ := v[key].([]string)
	return l
}

// First selected value of a single-select setting.
func (v Values) Select(key string) string {
	l := v.List(key)
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

func coerce(def *Definition, raw any) (any, error) {
	switch def.Type {
	case TypeString:
		switch t := raw.(type) {
		case nil:
			return "", nil
		case string:
			return t, nil
		}
	case TypeBool:
		switch t := raw.(type) {
		case nil:
			return false, nil
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, fmt.Errorf("not a boolean: %q", t)
			}
			return b, nil
		}
	case TypeNumber:
		switch t := raw.(type) {
		case nil:
			return int64(0), nil
		case int:
			return int64(t), nil
		case int64:
			return t, nil
		case float64:
			if t != math.Trunc(t) {
				return nil, fmt.Errorf("not a whole number: %v", t)
			}
			return int64(t), nil
		case json.Number:
			n, err := t.Int64()
			if err != nil {
				return nil, fmt.Errorf("not a whole number: %q", t)
			}
			return n, nil
		case string:
			if t == "" {
				return int64(0), nil
			}
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("not a whole number: %q", t)
			}
			return n, nil
		}
	case TypeSelect, TypeMultiSelect:
		var l []string
		switch t := raw.(type) {
		case nil:
			l = []string{}
		case string:
			l = []string{}
			for _, part := range strings.Split(t, ",") {
				if part = strings.TrimSpace(part); part != "" {
					l = append(l, part)
				}
			}
		case []string:
			l = append([]string{}, t...)
		case []any:
			l = []string{}
			for _, elem := range t {
				s, ok := elem.(string)
				if !ok {
					return nil, fmt.Errorf("option must be a string: %v", elem)
				}
				l = append(l, s)
			}
		default:
			return nil, fmt.Errorf("unexpected type %T", raw)
		}
		for _, opt := range l {
			if !slices.Contains(def.Options, opt) {
				return nil, fmt.Errorf("unknown option %q", opt)
			}
		}
		if def.Type == TypeSelect && len(l) > 1 {
			return nil, fmt.Errorf("only one option may be selected")
		}
		return l, nil
	}
	return nil, fmt.Errorf("unexpected type %T", raw)
}

func validate(def *Definition, v any) string {
	if def.Check == nil {
		return ""
	}
	return def.Check(v)
}
