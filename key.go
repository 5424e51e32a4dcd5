package querycache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"
)

// Params is the parameter bag of a query: names to primitive values or slices
// of primitives. Nil values (and nil pointers) are dropped, so {"status": nil}
// builds the same key as {}.
type Params map[string]any

// Key identifies one cached query result. Keys are plain values: two keys built
// from equal parameter bags compare equal with ==, regardless of insertion order.
type Key struct {
	kind   string
	params string // canonical JSON object, "" when empty
}

// NewKey builds a key from kind and params. params is deep-copied into the
// key's canonical form; later changes to the map do not affect the key.
func NewKey(kind string, params Params) (Key, error) {
	if err := validKind(kind); err != nil {
		return Key{}, err
	}
	canon, err := canonicalParams(params)
	if err != nil {
		return Key{}, err
	}
	return Key{kind: kind, params: canon}, nil
}

// MustKey is NewKey for statically known kinds and params; it panics on error.
func MustKey(kind string, params Params) Key {
	k, err := NewKey(kind, params)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) Kind() string { return k.kind }
func (k Key) IsZero() bool { return k.kind == "" }

// String renders kind or kind{"a":1,...} with sorted parameter names.
func (k Key) String() string { return k.kind + k.params }

// Params returns a fresh decoded copy of the key's parameters. Numbers come
// back as json.Number.
func (k Key) Params() Params {
	if k.params == "" {
		return Params{}
	}
	out, _ := decodeParams(k.params)
	return out
}

// Family is a set of keys sharing a kind and, optionally, a subset of
// parameter values. KindFamily("bookings") matches every bookings key;
// a family with params {"vendorId": 5} matches only keys carrying that value.
type Family struct {
	kind   string
	params string
}

func NewFamily(kind string, params Params) (Family, error) {
	k, err := NewKey(kind, params)
	if err != nil {
		return Family{}, err
	}
	return Family{kind: k.kind, params: k.params}, nil
}

// KindFamily is the family of every key with the given kind.
func KindFamily(kind string) Family { return Family{kind: kind} }

// FamilyOf is the family matching exactly the keys equal to k (and keys of the
// same kind carrying a superset of its params).
func FamilyOf(k Key) Family { return Family{kind: k.kind, params: k.params} }

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	kind, raw := s, ""
	if i := strings.IndexByte(s, '{'); i >= 0 {
		kind, raw = s[:i], s[i:]
	}
	if raw == "" {
		return NewKey(kind, nil)
	}
	params, err := decodeParams(raw)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrInvalidParam, s, err)
	}
	return NewKey(kind, params)
}

// ParseFamily is the inverse of Family.String.
func ParseFamily(s string) (Family, error) {
	k, err := ParseKey(s)
	if err != nil {
		return Family{}, err
	}
	return FamilyOf(k), nil
}

func (f Family) Kind() string   { return f.kind }
func (f Family) String() string { return f.kind + f.params }

// Matches reports whether k belongs to the family.
func (f Family) Matches(k Key) bool {
	if f.kind != k.kind {
		return false
	}
	if f.params == "" {
		return true
	}
	if k.params == "" {
		return false
	}
	var want, have map[string]json.RawMessage
	if json.Unmarshal([]byte(f.params), &want) != nil || json.Unmarshal([]byte(k.params), &have) != nil {
		return false
	}
	for name, v := range want {
		got, ok := have[name]
		if !ok || !bytes.Equal(got, v) {
			return false
		}
	}
	return true
}

func validKind(kind string) error {
	if kind == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKind)
	}
	for _, r := range kind {
		if r == '{' || r == ':' || unicode.IsSpace(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKind, kind, r)
		}
	}
	return nil
}

// canonicalParams normalizes every value to int64/uint64/float64/string/bool
// (or a slice of those) and marshals the result; encoding/json sorts map keys,
// which makes the output independent of insertion order.
func canonicalParams(params Params) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	norm := make(map[string]any, len(params))
	for name, v := range params {
		if name == "" {
			return "", fmt.Errorf("%w: empty parameter name", ErrInvalidParam)
		}
		nv, keep, err := normalize(v, true)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidParam, name, err)
		}
		if keep {
			norm[name] = nv
		}
	}
	if len(norm) == 0 {
		return "", nil
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return string(b), nil
}

var numberType = reflect.TypeOf(json.Number(""))

func normalize(v any, allowSlice bool) (any, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false, nil
		}
		rv = rv.Elem()
	}
	if rv.Type() == numberType {
		n := json.Number(rv.String())
		if _, err := n.Float64(); err != nil {
			return nil, false, err
		}
		return n, true, nil
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true, nil
	case reflect.Bool:
		return rv.Bool(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true, nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false, fmt.Errorf("non-finite number %v", f)
		}
		return f, true, nil
	case reflect.Slice, reflect.Array:
		if !allowSlice {
			return nil, false, fmt.Errorf("nested %s not allowed", rv.Kind())
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, false, nil
		}
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, keep, err := normalize(rv.Index(i).Interface(), false)
			if err != nil {
				return nil, false, err
			}
			if !keep {
				return nil, false, fmt.Errorf("nil element at %d", i)
			}
			out = append(out, ev)
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported type %s", rv.Type())
	}
}

func decodeParams(raw string) (Params, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out Params
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
