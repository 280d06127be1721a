// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracelog

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const serializeIndent = "  "

// maxSerializeNodes bounds the values rendered by one call. Shared references
// expand once per path, so a chain of diamonds is cut off here instead of
// growing exponentially.
const maxSerializeNodes = 1 << 20

// omittedValue replaces every value reached after the node budget is spent.
const omittedValue = "<omitted>"

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	jsonNumberType    = reflect.TypeFor[json.Number]()
)

// Serialize renders v as JSON indented by two spaces. It is safe for any
// value graph: a pointer, map, or slice that is already being visited
// further up the current path is omitted instead of followed, so cyclic
// structures terminate. Dropped struct fields and map entries disappear from
// the output; dropped array elements render as null.
//
// Serialize never fails. A nil value renders as "null", and values with no
// JSON form (funcs, channels) are omitted. If a panic escapes a user
// MarshalJSON or MarshalText method, the result is a short type placeholder.
// Graphs larger than the node budget render "<omitted>" past the cut.
func Serialize(v any) string {
	return serializeJSON(v, maxSerializeNodes)
}

func serializeJSON(v any, budget int) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = unserializable(v)
		}
	}()

	node, ok := newSerializer(budget).value(reflect.ValueOf(v))
	if !ok {
		return "null"
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", serializeIndent)
	if err := enc.Encode(node); err != nil {
		return unserializable(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// SerializeYAML renders v as a YAML document using the same cycle-safe
// traversal as Serialize.
func SerializeYAML(v any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = unserializable(v)
		}
	}()

	node, ok := newSerializer(maxSerializeNodes).value(reflect.ValueOf(v))
	if !ok {
		node = nil
	}
	doc, err := yamlNode(node)
	if err != nil {
		return unserializable(v)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return unserializable(v)
	}
	if err := enc.Close(); err != nil {
		return unserializable(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func unserializable(v any) string {
	return fmt.Sprintf("<unserializable %T>", v)
}

// object is a JSON object that keeps its member order. encoding/json sorts
// map keys, which would lose struct declaration order.
type object []member

type member struct {
	key   string
	value any
}

// MarshalJSON writes the members in order.
func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCompact(&buf, m.key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeCompact(&buf, m.value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeCompact appends the JSON encoding of v without HTML escaping.
func encodeCompact(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode member: %w", err)
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// number is a validated JSON number literal, typically from json.Number.
type number string

// MarshalJSON returns the literal unchanged.
func (n number) MarshalJSON() ([]byte, error) { return []byte(n), nil }

// rawJSON holds the validated output of a user MarshalJSON method.
type rawJSON []byte

// MarshalJSON returns the raw bytes unchanged.
func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }

type visit struct {
	ptr uintptr
	typ reflect.Type
}

// serializer converts reflected values into a tree of JSON-ready nodes while
// tracking which references sit on the current traversal path.
type serializer struct {
	visiting  map[visit]struct{}
	remaining int
}

func newSerializer(budget int) *serializer {
	return &serializer{visiting: make(map[visit]struct{}), remaining: budget}
}

// value converts v into a node. The boolean is false when v must be omitted
// from its parent, either because it closes a cycle or because it has no
// JSON representation.
func (s *serializer) value(v reflect.Value) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}
	if s.remaining <= 0 {
		return omittedValue, true
	}
	s.remaining--
	if node, ok := s.marshaled(v); ok {
		return node, true
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return s.value(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return nil, true
		}
		return s.enter(v, func() (any, bool) { return s.value(v.Elem()) })
	case reflect.Map:
		if v.IsNil() {
			return nil, true
		}
		return s.enter(v, func() (any, bool) { return s.mapValue(v), true })
	case reflect.Slice:
		if v.IsNil() {
			return nil, true
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return bytesValue(v.Bytes()), true
		}
		if v.Len() == 0 {
			return []any{}, true
		}
		return s.enter(v, func() (any, bool) { return s.list(v), true })
	case reflect.Array:
		return s.list(v), true
	case reflect.Struct:
		return s.structValue(v), true
	case reflect.String:
		if v.Type() == jsonNumberType {
			if n, ok := jsonNumber(v.String()); ok {
				return n, true
			}
		}
		return v.String(), true
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), true
	case reflect.Float32:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
		return float32(f), true
	case reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
		return f, true
	default:
		// Funcs, channels, complex numbers and unsafe pointers.
		return nil, false
	}
}

// enter marks the reference held by v as visited for the duration of
// descend. A reference already on the path is reported as omitted.
func (s *serializer) enter(v reflect.Value, descend func() (any, bool)) (any, bool) {
	key := visit{ptr: uintptr(v.UnsafePointer()), typ: v.Type()}
	if _, seen := s.visiting[key]; seen {
		return nil, false
	}
	s.visiting[key] = struct{}{}
	defer delete(s.visiting, key)
	return descend()
}

// marshaled returns the node produced by a MarshalJSON or MarshalText
// method on v. A failing or panicking method falls back to the structural
// walk.
func (s *serializer) marshaled(v reflect.Value) (any, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	switch v.Kind() {
	case reflect.Interface:
		return nil, false
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, false
		}
	}

	target := v
	if !target.Type().Implements(jsonMarshalerType) && !target.Type().Implements(textMarshalerType) {
		if !v.CanAddr() {
			return nil, false
		}
		target = v.Addr()
	}

	if m, ok := target.Interface().(json.Marshaler); ok {
		raw, err := protect(m.MarshalJSON)
		if err == nil && json.Valid(raw) {
			return rawJSON(bytes.Clone(raw)), true
		}
		return nil, false
	}
	if m, ok := target.Interface().(encoding.TextMarshaler); ok {
		text, err := protect(m.MarshalText)
		if err == nil {
			return string(text), true
		}
	}
	return nil, false
}

// protect runs a marshal method and converts a panic into an error.
func protect(fn func() ([]byte, error)) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("marshal panicked: %v", r)
		}
	}()
	return fn()
}

func (s *serializer) mapValue(v reflect.Value) object {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: mapKey(iter.Key()), val: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })

	obj := make(object, 0, len(entries))
	for _, e := range entries {
		if node, ok := s.value(e.val); ok {
			obj = append(obj, member{key: e.key, value: node})
		}
	}
	return obj
}

// mapKey renders a map key as an object member name.
func mapKey(k reflect.Value) string {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() && !(k.Kind() == reflect.Pointer && k.IsNil()) {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if text, err := protect(tm.MarshalText); err == nil {
				return string(text)
			}
		}
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	case reflect.Bool:
		return strconv.FormatBool(k.Bool())
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(k.Float(), 'g', -1, 64)
	}
	if k.CanInterface() {
		return fmt.Sprintf("%v", k.Interface())
	}
	return k.Type().String()
}

// list converts slice or array elements. Omitted elements stay null so
// positions are preserved.
func (s *serializer) list(v reflect.Value) []any {
	out := make([]any, v.Len())
	for i := range v.Len() {
		if node, ok := s.value(v.Index(i)); ok {
			out[i] = node
		}
	}
	return out
}

func (s *serializer) structValue(v reflect.Value) object {
	t := v.Type()
	obj := make(object, 0, t.NumField())
	seen := make(map[string]struct{}, t.NumField())
	var promoted []object

	for i := range t.NumField() {
		f := t.Field(i)
		name, opts, ok := jsonField(f)
		if !ok {
			continue
		}
		fv := v.Field(i)

		if name == "" {
			node, ok := s.value(fv)
			if !ok || node == nil {
				continue
			}
			if embedded, isObject := node.(object); isObject {
				promoted = append(promoted, embedded)
				continue
			}
			// Embedded marshalers such as time.Time keep their type name.
			name = f.Name
			obj = append(obj, member{key: name, value: node})
			seen[name] = struct{}{}
			continue
		}

		if omitField(fv, opts) {
			continue
		}
		node, ok := s.value(fv)
		if !ok {
			continue
		}
		obj = append(obj, member{key: name, value: node})
		seen[name] = struct{}{}
	}

	for _, embedded := range promoted {
		for _, m := range embedded {
			if _, dup := seen[m.key]; dup {
				continue
			}
			obj = append(obj, m)
			seen[m.key] = struct{}{}
		}
	}
	return obj
}

// jsonField resolves the member name of a struct field from its json tag.
// An empty name with ok set marks an anonymous struct whose fields are
// promoted into the parent.
func jsonField(f reflect.StructField) (name, opts string, ok bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", "", false
	}
	name, opts, _ = strings.Cut(tag, ",")

	if f.Anonymous && name == "" {
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			return "", opts, true
		}
	}
	if !f.IsExported() {
		return "", "", false
	}
	if name == "" {
		name = f.Name
	}
	return name, opts, true
}

// omitField applies the omitempty and omitzero tag options.
func omitField(v reflect.Value, opts string) bool {
	for opt := range strings.SplitSeq(opts, ",") {
		switch opt {
		case "omitempty":
			if isEmptyValue(v) {
				return true
			}
		case "omitzero":
			if v.IsZero() {
				return true
			}
		}
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

// bytesValue renders byte slices as text when they hold valid UTF-8 and as
// base64 otherwise.
func bytesValue(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// jsonNumber validates a json.Number literal.
func jsonNumber(s string) (number, bool) {
	if s == "" || !json.Valid([]byte(s)) {
		return "", false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return "", false
	}
	return number(s), true
}

// yamlNode converts a serializer node into a yaml.Node, keeping member
// order.
func yamlNode(n any) (*yaml.Node, error) {
	switch n := n.(type) {
	case object:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, m := range n {
			val, err := yamlNode(m.value)
			if err != nil {
				return nil, err
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.key}
			node.Content = append(node.Content, key, val)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n {
			val, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, val)
		}
		return node, nil
	case number:
		tag := "!!int"
		if strings.ContainsAny(string(n), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: string(n)}, nil
	case rawJSON:
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(n))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode marshaled json: %w", err)
		}
		inner, _ := newSerializer(maxSerializeNodes).value(reflect.ValueOf(decoded))
		return yamlNode(inner)
	default:
		node := &yaml.Node{}
		if err := node.Encode(n); err != nil {
			return nil, fmt.Errorf("encode yaml scalar: %w", err)
		}
		return node, nil
	}
}
