package unfurl

import (
	"errors"
	"fmt"
	"strconv"
)

type Kind int

const (
	KindString Kind = iota
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Arg struct {
	Name     string
	Kind     Kind
	Required bool
}

// ArgSchema declares the typed arguments a link shape captures. Fields are
// checked in declaration order so the reported CoercionError is stable.
type ArgSchema []Arg

var ErrMissingArg = errors.New("missing argument")

type CoercionError struct {
	Field string
	Value string
	Kind  Kind
	Err   error
}

func (e *CoercionError) Error() string {
	if errors.Is(e.Err, ErrMissingArg) {
		return fmt.Sprintf("coerce %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("coerce %s=%q to %s: %v", e.Field, e.Value, e.Kind, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// Args holds coerced link arguments. Absent optional fields have no key.
type Args map[string]any

func (a Args) Int64(key string) (int64, bool) {
	v, ok := a[key].(int64)
	return v, ok
}

func (a Args) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// Coerce converts raw regexp captures into typed values. An empty capture is
// treated as absent, which is how an unmatched optional group comes back.
func (s ArgSchema) Coerce(raw map[string]string) (Args, error) {
	out := make(Args, len(s))
	for _, arg := range s {
		v, ok := raw[arg.Name]
		if !ok || v == "" {
			if arg.Required {
				return nil, &CoercionError{Field: arg.Name, Kind: arg.Kind, Err: ErrMissingArg}
			}
			continue
		}
		switch arg.Kind {
		case KindInt:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, &CoercionError{Field: arg.Name, Value: v, Kind: arg.Kind, Err: err}
			}
			out[arg.Name] = n
		case KindString:
			out[arg.Name] = v
		default:
			return nil, &CoercionError{Field: arg.Name, Value: v, Kind: arg.Kind, Err: errors.New("unsupported kind")}
		}
	}
	return out, nil
}
