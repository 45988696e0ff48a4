// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package fleece

import (
	"bytes"
	"sort"
)

// Values move through this package as interface{}. The accepted kinds are
// nil, bool, int/int64/uint64, float64, string, []byte, the immutable
// Value/Dict/Array, and *MutableDict/*MutableArray.

// sentinel stored in a MutableDict's edits for a removed key
type removedType struct{}

var removedValue = removedType{}

// MutableDict is a mutable overlay over an optional immutable source
// dict. Reads fall through to the source for unedited keys. The changed
// bit latches on every mutation and is cleared explicitly by whoever
// persists the overlay.
type MutableDict struct {
	source  Dict
	edits   map[string]interface{}
	changed bool
}

func NewMutableDict() *MutableDict {
	return &MutableDict{edits: map[string]interface{}{}}
}

// MutableDictFrom returns a shallow mutable copy of d.
func MutableDictFrom(d Dict) *MutableDict {
	return &MutableDict{source: d, edits: map[string]interface{}{}}
}

func (m *MutableDict) Source() Value {
	return m.source.Value()
}

func (m *MutableDict) Get(key string) interface{} {
	if v, ok := m.edits[key]; ok {
		if v == interface{}(removedValue) {
			return nil
		}
		return v
	}
	if v := m.source.Get(key); v.Exists() {
		return v
	}
	return nil
}

func (m *MutableDict) Set(key string, v interface{}) {
	m.edits[key] = v
	m.changed = true
}

func (m *MutableDict) Remove(key string) {
	if m.source.Get(key).Exists() {
		m.edits[key] = removedValue
	} else {
		delete(m.edits, key)
	}
	m.changed = true
}

// GetMutableDict returns the dict at key as a mutable overlay, promoting
// an immutable child in place. Promotion alone does not latch the changed
// bit. Returns nil if the key holds no dict.
func (m *MutableDict) GetMutableDict(key string) *MutableDict {
	switch v := m.Get(key).(type) {
	case *MutableDict:
		return v
	case Value:
		if d := v.AsDict(); d.Exists() {
			md := MutableDictFrom(d)
			m.edits[key] = md
			return md
		}
	case Dict:
		if v.Exists() {
			md := MutableDictFrom(v)
			m.edits[key] = md
			return md
		}
	}
	return nil
}

// GetMutableArray is the array counterpart of GetMutableDict.
func (m *MutableDict) GetMutableArray(key string) *MutableArray {
	switch v := m.Get(key).(type) {
	case *MutableArray:
		return v
	case Value:
		if a := v.AsArray(); a.Exists() {
			ma := MutableArrayFrom(a)
			m.edits[key] = ma
			return ma
		}
	case Array:
		if v.Exists() {
			ma := MutableArrayFrom(v)
			m.edits[key] = ma
			return ma
		}
	}
	return nil
}

// Keys returns the effective key set, sorted.
func (m *MutableDict) Keys() []string {
	seen := map[string]bool{}
	var keys []string
	m.source.Each(func(k string, _ Value) bool {
		if v, ok := m.edits[k]; !ok || v != interface{}(removedValue) {
			keys = append(keys, k)
			seen[k] = true
		}
		return true
	})
	for k, v := range m.edits {
		if !seen[k] && v != interface{}(removedValue) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *MutableDict) Count() int {
	return len(m.Keys())
}

func (m *MutableDict) IsEmpty() bool {
	return m.Count() == 0
}

func (m *MutableDict) IsChanged() bool {
	return m.changed
}

func (m *MutableDict) SetChanged(changed bool) {
	m.changed = changed
}

// MutableArray is the array counterpart of MutableDict. Elements are
// materialized at construction, so slot writes do not need a separate
// edit map.
type MutableArray struct {
	source  Array
	items   []interface{}
	changed bool
}

func NewMutableArray() *MutableArray {
	return &MutableArray{}
}

// MutableArrayFrom returns a shallow mutable copy of a.
func MutableArrayFrom(a Array) *MutableArray {
	items := make([]interface{}, 0, a.Count())
	a.Each(func(_ int, v Value) bool {
		items = append(items, v)
		return true
	})
	return &MutableArray{source: a, items: items}
}

func (m *MutableArray) Source() Value {
	return m.source.Value()
}

func (m *MutableArray) Count() int {
	return len(m.items)
}

func (m *MutableArray) Get(i int) interface{} {
	if i < 0 || i >= len(m.items) {
		return nil
	}
	return m.items[i]
}

func (m *MutableArray) Set(i int, v interface{}) {
	m.items[i] = v
	m.changed = true
}

func (m *MutableArray) Append(v interface{}) {
	m.items = append(m.items, v)
	m.changed = true
}

// Resize grows the array with nils or truncates it to n elements.
func (m *MutableArray) Resize(n int) {
	for len(m.items) < n {
		m.items = append(m.items, nil)
	}
	m.items = m.items[:n]
	m.changed = true
}

// GetMutableDict promotes the dict element at i to a mutable overlay.
func (m *MutableArray) GetMutableDict(i int) *MutableDict {
	switch v := m.Get(i).(type) {
	case *MutableDict:
		return v
	case Value:
		if d := v.AsDict(); d.Exists() {
			md := MutableDictFrom(d)
			m.items[i] = md
			return md
		}
	case Dict:
		if v.Exists() {
			md := MutableDictFrom(v)
			m.items[i] = md
			return md
		}
	}
	return nil
}

func (m *MutableArray) IsChanged() bool {
	return m.changed
}

func (m *MutableArray) SetChanged(changed bool) {
	m.changed = changed
}

// anyDict and anyArray adapt the immutable and mutable containers to one
// shape for the encoder, the deep iterator, equality and JSON.

type anyDict interface {
	dictKeys() []string
	dictGet(key string) interface{}
}

type anyArray interface {
	arrayCount() int
	arrayGet(i int) interface{}
}

type immutableDict struct{ d Dict }

func (w immutableDict) dictKeys() []string {
	var keys []string
	w.d.Each(func(k string, _ Value) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys
}

func (w immutableDict) dictGet(key string) interface{} {
	if v := w.d.Get(key); v.Exists() {
		return v
	}
	return nil
}

type immutableArray struct{ a Array }

func (w immutableArray) arrayCount() int {
	return w.a.Count()
}

func (w immutableArray) arrayGet(i int) interface{} {
	if v := w.a.Get(i); v.Exists() {
		return v
	}
	return nil
}

func (m *MutableDict) dictKeys() []string {
	return m.Keys()
}

func (m *MutableDict) dictGet(key string) interface{} {
	return m.Get(key)
}

func (m *MutableArray) arrayCount() int {
	return m.Count()
}

func (m *MutableArray) arrayGet(i int) interface{} {
	return m.Get(i)
}

// asAnyDict returns a dict view of v, if v is any dict kind.
func asAnyDict(v interface{}) (anyDict, bool) {
	switch x := v.(type) {
	case *MutableDict:
		return x, true
	case Dict:
		if x.Exists() {
			return immutableDict{x}, true
		}
	case Value:
		if d := x.AsDict(); d.Exists() {
			return immutableDict{d}, true
		}
	}
	return nil, false
}

// asAnyArray returns an array view of v, if v is any array kind.
func asAnyArray(v interface{}) (anyArray, bool) {
	switch x := v.(type) {
	case *MutableArray:
		return x, true
	case Array:
		if x.Exists() {
			return immutableArray{x}, true
		}
	case Value:
		if a := x.AsArray(); a.Exists() {
			return immutableArray{a}, true
		}
	}
	return nil, false
}

// TypeOf reports the effective type of any accepted value kind.
func TypeOf(v interface{}) Type {
	switch x := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBool
	case int, int64, uint64:
		return TypeInt
	case float64:
		return TypeFloat
	case string:
		return TypeString
	case []byte:
		return TypeData
	case *MutableDict:
		return TypeDict
	case *MutableArray:
		return TypeArray
	case Dict:
		if x.Exists() {
			return TypeDict
		}
		return TypeUndefined
	case Array:
		if x.Exists() {
			return TypeArray
		}
		return TypeUndefined
	case Value:
		return x.Type()
	}
	return TypeUndefined
}

func asInt(v interface{}) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int64:
		return x
	case uint64:
		return int64(x)
	case Value:
		return x.AsInt()
	}
	return 0
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case Value:
		return x.AsFloat()
	}
	return 0
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case Value:
		return x.AsString()
	}
	return ""
}

// AsDataBytes returns the byte contents of any data-kind value.
func AsDataBytes(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case Value:
		return x.AsData()
	}
	return nil
}

// Equals compares two values of any accepted kind structurally.
func Equals(a, b interface{}) bool {
	ta, tb := TypeOf(a), TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta {
	case TypeUndefined, TypeNull:
		return true
	case TypeBool:
		return asBoolAny(a) == asBoolAny(b)
	case TypeInt:
		return asInt(a) == asInt(b)
	case TypeFloat:
		return asFloat(a) == asFloat(b)
	case TypeString:
		return asString(a) == asString(b)
	case TypeData:
		return bytes.Equal(AsDataBytes(a), AsDataBytes(b))
	case TypeArray:
		aa, _ := asAnyArray(a)
		ab, _ := asAnyArray(b)
		if aa.arrayCount() != ab.arrayCount() {
			return false
		}
		for i := 0; i < aa.arrayCount(); i++ {
			if !Equals(aa.arrayGet(i), ab.arrayGet(i)) {
				return false
			}
		}
		return true
	case TypeDict:
		da, _ := asAnyDict(a)
		db, _ := asAnyDict(b)
		ka, kb := da.dictKeys(), db.dictKeys()
		if len(ka) != len(kb) {
			return false
		}
		for i, k := range ka {
			if k != kb[i] || !Equals(da.dictGet(k), db.dictGet(k)) {
				return false
			}
		}
		return true
	}
	return false
}

func asBoolAny(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case Value:
		return x.AsBool()
	}
	return false
}

// Same reports whether two values are the same object or the same encoded
// location, without structural comparison. Used to detect "no actual
// change" before latching dirty state.
func Same(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a.(type) {
	case *MutableDict, *MutableArray, Value, Dict, Array:
		switch b.(type) {
		case *MutableDict, *MutableArray, Value, Dict, Array:
			return a == b
		}
	}
	return false
}

// OwnerOf walks v to its immutable source and returns the owner of the
// Doc it came from, or nil for heap-only values.
func OwnerOf(v interface{}) interface{} {
	for {
		switch x := v.(type) {
		case *MutableDict:
			src := x.Source()
			if !src.Exists() {
				return nil
			}
			v = src
		case *MutableArray:
			src := x.Source()
			if !src.Exists() {
				return nil
			}
			v = src
		case Value:
			return x.Doc().Owner()
		case Dict:
			return x.Value().Doc().Owner()
		case Array:
			return x.Value().Doc().Owner()
		default:
			return nil
		}
	}
}

// DeepIterator walks a value tree depth-first, yielding every value
// including the root. SkipChildren prevents descending into the value
// most recently returned by Next.
type DeepIterator struct {
	stack   []interface{}
	current interface{}
	started bool
	skip    bool
}

func NewDeepIterator(root interface{}) *DeepIterator {
	return &DeepIterator{stack: []interface{}{root}}
}

func (it *DeepIterator) Next() bool {
	if it.started && !it.skip {
		it.pushChildren(it.current)
	}
	it.skip = false
	it.started = true
	if len(it.stack) == 0 {
		it.current = nil
		return false
	}
	it.current = it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	return true
}

func (it *DeepIterator) Value() interface{} {
	return it.current
}

func (it *DeepIterator) SkipChildren() {
	it.skip = true
}

func (it *DeepIterator) pushChildren(v interface{}) {
	if d, ok := asAnyDict(v); ok {
		for _, k := range d.dictKeys() {
			it.stack = append(it.stack, d.dictGet(k))
		}
	} else if a, ok := asAnyArray(v); ok {
		for i := 0; i < a.arrayCount(); i++ {
			it.stack = append(it.stack, a.arrayGet(i))
		}
	}
}
