package matching

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the shape class of a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "undefined"
}

// Value is a JSON-shaped tree. The zero Value is undefined, which is how an
// absent body is represented. Object keys keep their document order.
type Value struct {
	kind Kind
	b    bool
	num  float64
	raw  string
	str  string
	arr  []Value
	keys []string
	obj  map[string]Value
}

func Undefined() Value { return Value{} }

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(f float64) Value {
	return Value{kind: KindNumber, num: f, raw: strconv.FormatFloat(f, 'f', -1, 64)}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, num: float64(i), raw: strconv.FormatInt(i, 10)}
}

// NumberLiteral builds a number keeping its literal text, so that 1.0 stays
// distinguishable from 1.
func NumberLiteral(literal string) (Value, error) {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return Value{}, errors.Wrapf(err, "invalid number literal %q", literal)
	}
	return Value{kind: KindNumber, num: f, raw: literal}, nil
}

func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

// Field is a single key/value pair used to build objects in order.
type Field struct {
	Key   string
	Value Value
}

func Object(fields ...Field) Value {
	v := Value{kind: KindObject, keys: []string{}, obj: map[string]Value{}}
	for _, f := range fields {
		v = v.With(f.Key, f.Value)
	}
	return v
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsDefined() bool { return v.kind != KindUndefined }

func (v Value) IsContainer() bool { return v.kind == KindArray || v.kind == KindObject }

func (v Value) StringValue() string { return v.str }

// IsInteger reports whether v is a number written without a fractional part.
func (v Value) IsInteger() bool {
	if v.kind != KindNumber {
		return false
	}
	if strings.ContainsAny(v.raw, ".eE") {
		return false
	}
	return v.num == math.Trunc(v.num)
}

// IsDecimal reports whether v is a number with a fractional part in its literal form.
func (v Value) IsDecimal() bool {
	if v.kind != KindNumber {
		return false
	}
	return strings.Contains(v.raw, ".") || v.num != math.Trunc(v.num)
}

func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.keys)
	}
	return 0
}

func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}
	}
	return v.arr[i]
}

func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	return v.keys
}

func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	val, ok := v.obj[key]
	return val, ok
}

// With returns a copy of the object v with key set to val. Existing keys keep
// their position.
func (v Value) With(key string, val Value) Value {
	if v.kind != KindObject {
		v = Value{kind: KindObject}
	}
	keys := make([]string, len(v.keys), len(v.keys)+1)
	copy(keys, v.keys)
	obj := make(map[string]Value, len(v.obj)+1)
	for k, existing := range v.obj {
		obj[k] = existing
	}
	if _, ok := obj[key]; !ok {
		keys = append(keys, key)
	}
	obj[key] = val
	return Value{kind: KindObject, keys: keys, obj: obj}
}

// Append returns a copy of the array v with items appended.
func (v Value) Append(items ...Value) Value {
	if v.kind != KindArray {
		v = Value{kind: KindArray}
	}
	arr := make([]Value, 0, len(v.arr)+len(items))
	arr = append(arr, v.arr...)
	arr = append(arr, items...)
	return Value{kind: KindArray, arr: arr}
}

// String renders scalars as their plain text and containers as JSON. Regex
// and include rules match against this form.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return ""
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return v.raw
	case KindString:
		return v.str
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v.Interface())
	}
	return string(b)
}

// Interface converts v into the generic map/slice form produced by
// encoding/json.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNull, KindUndefined:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	}
	out := make(map[string]interface{}, len(v.keys))
	for _, k := range v.keys {
		out[k] = v.obj[k].Interface()
	}
	return out
}

// numbersEqual compares the literals exactly, so integers beyond float64
// precision stay distinct while 1.0 still equals 1.
func numbersEqual(a, b Value) bool {
	x, okA := new(big.Rat).SetString(a.raw)
	y, okB := new(big.Rat).SetString(b.raw)
	if !okA || !okB {
		return a.num == b.num
	}
	return x.Cmp(y) == 0
}

// Equal is strict structural equality: object key order is ignored, numbers
// compare numerically.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return numbersEqual(a, b)
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	}
	if len(a.keys) != len(b.keys) {
		return false
	}
	for _, k := range a.keys {
		bv, ok := b.obj[k]
		if !ok || !Equal(a.obj[k], bv) {
			return false
		}
	}
	return true
}

// FromInterface converts decoded JSON or plain Go values into a Value. Map
// keys are sorted since Go maps carry no order.
func FromInterface(in interface{}) (Value, error) {
	switch val := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return NumberLiteral(val.String())
	case float64:
		return Number(val), nil
	case float32:
		return Number(float64(val)), nil
	case int:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(int64(val)), nil
	case []interface{}:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			converted, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, converted)
		}
		return Array(items...), nil
	case []string:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			items = append(items, String(item))
		}
		return Array(items...), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := Object()
		for _, k := range keys {
			converted, err := FromInterface(val[k])
			if err != nil {
				return Value{}, err
			}
			out = out.With(k, converted)
		}
		return out, nil
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := Object()
		for _, k := range keys {
			out = out.With(k, String(val[k]))
		}
		return out, nil
	}

	// anything else goes through encoding/json, e.g. structs
	data, err := json.Marshal(in)
	if err != nil {
		return Value{}, errors.Wrapf(err, "unable to convert %T to a value", in)
	}
	return Parse(data)
}

// Parse decodes a JSON document keeping object key order. Empty input yields
// an undefined Value.
func Parse(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Value{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, errors.Wrap(err, "unable to parse json value")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New("unable to parse json value, trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := Value{kind: KindObject, keys: []string{}, obj: map[string]Value{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, errors.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				if _, exists := out.obj[key]; !exists {
					out.keys = append(out.keys, key)
				}
				out.obj[key] = val
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		case '[':
			out := Value{kind: KindArray, arr: []Value{}}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				out.arr = append(out.arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		}
		return Value{}, errors.Errorf("unexpected delimiter %v", t)
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return NumberLiteral(t.String())
	case string:
		return String(t), nil
	}
	return Value{}, errors.Errorf("unexpected token %v", tok)
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

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
	case KindUndefined, KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.raw)
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.obj[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}
