// Package jsonvalue provides an immutable JSON value tree used for request
// bodies, with a leaf walker and pure leaf replacement for body fuzzing.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// String returns the JSON type name of the kind.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Member is a key/value pair of an object. Objects keep insertion order so
// walks and encodings are deterministic.
type Member struct {
	Key   string
	Value Value
}

// Value is a tagged JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	boolean bool
	number  json.Number
	str     string
	items   []Value
	members []Member
}

// NewNull returns a null value.
func NewNull() Value { return Value{kind: Null} }

// NewBool returns a bool value.
func NewBool(b bool) Value { return Value{kind: Bool, boolean: b} }

// NewNumber returns a number value from its literal text.
func NewNumber(n json.Number) Value { return Value{kind: Number, number: n} }

// NewInt returns a number value.
func NewInt(n int64) Value { return NewNumber(json.Number(strconv.FormatInt(n, 10))) }

// NewString returns a string value.
func NewString(s string) Value { return Value{kind: String, str: s} }

// NewArray returns an array value. The items are copied.
func NewArray(items ...Value) Value {
	return Value{kind: Array, items: append([]Value(nil), items...)}
}

// NewObject returns an object value. Later duplicates of a key replace earlier ones.
func NewObject(members ...Member) Value {
	v := Value{kind: Object, members: make([]Member, 0, len(members))}
	for _, m := range members {
		v = v.Set(m.Key, m.Value)
	}
	return v
}

// Kind returns the variant of the value.
func (v Value) Kind() Kind { return v.kind }

// IsObject reports whether v is an object.
func (v Value) IsObject() bool { return v.kind == Object }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.boolean }

// Number returns the number payload.
func (v Value) Number() json.Number { return v.number }

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.items)
	case Object:
		return len(v.members)
	default:
		return 0
	}
}

// Items returns a copy of the array items.
func (v Value) Items() []Value {
	return append([]Value(nil), v.items...)
}

// Members returns a copy of the object members.
func (v Value) Members() []Member {
	return append([]Member(nil), v.members...)
}

// Keys returns the object keys in order.
func (v Value) Keys() []string {
	keys := make([]string, len(v.members))
	for i, m := range v.members {
		keys[i] = m.Key
	}
	return keys
}

// Get returns the member value for key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether the object has key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Set returns a copy of the object with key set to val. Non-object values
// are treated as an empty object.
func (v Value) Set(key string, val Value) Value {
	out := Value{kind: Object, members: make([]Member, 0, len(v.members)+1)}
	replaced := false
	if v.kind == Object {
		for _, m := range v.members {
			if m.Key == key {
				out.members = append(out.members, Member{Key: key, Value: val})
				replaced = true
				continue
			}
			out.members = append(out.members, m)
		}
	}
	if !replaced {
		out.members = append(out.members, Member{Key: key, Value: val})
	}
	return out
}

// Interface converts the value to plain Go values (map[string]any, []any,
// string, bool, json.Number, nil).
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.boolean
	case Number:
		return v.number
	case String:
		return v.str
	case Array:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.members))
		for _, m := range v.members {
			out[m.Key] = m.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface converts plain Go values into a Value. Map keys are sorted
// so the result does not depend on map iteration order.
func FromInterface(x any) (Value, error) {
	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, err
	}
	return Parse(data)
}

// Parse decodes JSON text into a Value, keeping object key order.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decode(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("jsonvalue: trailing data after value")
	}
	return v, nil
}

// MustParse is Parse that panics on error. Intended for literals in tests.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

func decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		return NewNumber(t), nil
	case string:
		return NewString(t), nil
	case json.Delim:
		switch t {
		case '[':
			arr := Value{kind: Array}
			for dec.More() {
				item, err := decode(dec)
				if err != nil {
					return Value{}, err
				}
				arr.items = append(arr.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return arr, nil
		case '{':
			obj := Value{kind: Object}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("jsonvalue: object key is %T", keyTok)
				}
				val, err := decode(dec)
				if err != nil {
					return Value{}, err
				}
				obj = obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return obj, nil
		}
	}
	return Value{}, fmt.Errorf("jsonvalue: unexpected token %v", tok)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case Number:
		if v.number == "" {
			buf.WriteString("0")
		} else {
			buf.WriteString(string(v.number))
		}
	case String:
		data, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(data)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("jsonvalue: unknown kind %d", v.kind)
	}
	return nil
}

// Text renders scalars as plain text (strings unquoted) and composite values
// as compact JSON. Used when a body is sent form-encoded.
func (v Value) Text() string {
	switch v.kind {
	case String:
		return v.str
	case Null:
		return ""
	case Bool:
		return strconv.FormatBool(v.boolean)
	case Number:
		return string(v.number)
	default:
		data, _ := v.MarshalJSON()
		return string(data)
	}
}

// Path addresses a member inside nested objects.
type Path []string

// String joins the segments with dots, e.g. "user.profile.name".
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Leaves returns the paths of every leaf member under an object, depth first
// in key order. A member is a leaf when its value is not a non-empty object;
// arrays are leaves and are not descended into.
func (v Value) Leaves() []Path {
	var out []Path
	v.walk(nil, func(p Path, _ Value) {
		out = append(out, p)
	})
	return out
}

// Walk calls fn for every leaf member, see Leaves.
func (v Value) Walk(fn func(path Path, leaf Value)) {
	v.walk(nil, fn)
}

func (v Value) walk(prefix Path, fn func(Path, Value)) {
	if v.kind != Object {
		return
	}
	for _, m := range v.members {
		p := make(Path, len(prefix)+1)
		copy(p, prefix)
		p[len(prefix)] = m.Key

		if m.Value.kind == Object && len(m.Value.members) > 0 {
			m.Value.walk(p, fn)
			continue
		}
		fn(p, m.Value)
	}
}

// At returns the value at path.
func (v Value) At(path Path) (Value, bool) {
	cur := v
	for _, seg := range path {
		next, ok := cur.Get(seg)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// With returns a new tree where the value at path is replaced by val. The
// receiver is left untouched; only the objects along path are rebuilt.
func (v Value) With(path Path, val Value) (Value, error) {
	if len(path) == 0 {
		return val, nil
	}
	if v.kind != Object {
		return Value{}, fmt.Errorf("jsonvalue: cannot descend into %s at %q", v.kind, path[0])
	}
	child, ok := v.Get(path[0])
	if !ok {
		return Value{}, fmt.Errorf("jsonvalue: no member %q", path[0])
	}
	replaced, err := child.With(path[1:], val)
	if err != nil {
		return Value{}, err
	}
	return v.Set(path[0], replaced), nil
}
