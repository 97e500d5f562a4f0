package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a tagged variant holding one JSON value of arbitrary depth. It
// keeps client-supplied metadata statically typed inside the core instead of
// threading interface{} through storage and ranking code.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  map[string]Value
}

// Constructors for each variant.
func Null() Value                    { return Value{kind: KindNull} }
func Bool(b bool) Value              { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value     { return Value{kind: KindNumber, num: n} }
func String(s string) Value          { return Value{kind: KindString, str: s} }
func Array(vs ...Value) Value        { return Value{kind: KindArray, arr: vs} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Accessors return the variant's payload and whether the value holds it.
func (v Value) AsBool() (bool, bool)            { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (json.Number, bool)   { return v.num, v.kind == KindNumber }
func (v Value) AsString() (string, bool)        { return v.str, v.kind == KindString }
func (v Value) AsArray() ([]Value, bool)        { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// UnmarshalJSON decodes any JSON value into the matching variant. Numbers are
// kept as json.Number so large scores round-trip without float drift.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty metadata value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var arr []Value
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*v = Value{kind: KindArray, arr: arr}
		return nil
	case '{':
		var obj map[string]Value
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*v = Value{kind: KindObject, obj: obj}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
		return nil
	}
}

// MarshalJSON encodes the variant back to its JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("unknown metadata kind %d", v.kind)
	}
}

// Metadata is the opaque key-value mapping attached to a score.
type Metadata map[string]Value

var metadataKeyPattern = regexp.MustCompile(`^[\w\-]+$`)

// Validate checks the encoded size and top-level key format.
func (m Metadata) Validate(maxBytes int) error {
	if m == nil {
		return nil
	}
	for key := range m {
		if !metadataKeyPattern.MatchString(key) {
			return NewValidationError("game_metadata", "keys may only contain letters, digits, - and _")
		}
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return NewValidationError("game_metadata", "not encodable")
	}
	if len(encoded) > maxBytes {
		return NewValidationError("game_metadata", "too large")
	}
	return nil
}
