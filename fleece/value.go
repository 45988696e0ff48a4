// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package fleece

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/couchbase/golitecore/base"
)

/*
ENCODED VALUE FORMAT:

A document is a flat byte buffer holding a sequence of encoded values,
followed by a 4-byte big-endian trailer containing the offset of the root
value. Scalars are a tag byte plus payload; containers hold varint offsets
of their children. Children are always written before their container, so
every interior offset points strictly backwards. Repeated values can be
shared: two containers may reference the same child offset, which turns
the structure into a DAG. Readers never notice since the data is
immutable.
*/

const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagData
	tagArray
	tagDict
)

const trailerSize = 4

// Type of an encoded or mutable value.
type Type int

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeData
	TypeArray
	TypeDict
)

// Doc is a parsed immutable buffer of encoded values. It optionally
// carries an owner, so a Value found deep inside the buffer can be traced
// back to the object that loaded it.
type Doc struct {
	data  []byte
	root  int
	owner interface{}
}

// NewDoc validates data and returns a Doc over it. The walk checks every
// reachable offset, so accessors on the resulting values never go out of
// bounds.
func NewDoc(data []byte) (*Doc, error) {
	if len(data) < trailerSize+1 {
		return nil, errors.Wrap(base.ErrorCorruptRevisionData, "encoded value buffer too small")
	}
	root := int(binary.BigEndian.Uint32(data[len(data)-trailerSize:]))
	body := data[:len(data)-trailerSize]
	if root >= len(body) {
		return nil, errors.Wrap(base.ErrorCorruptRevisionData, "encoded value root offset out of range")
	}
	d := &Doc{data: body, root: root}
	if err := d.validate(root); err != nil {
		return nil, err
	}
	return d, nil
}

// validate walks the value at off. Child offsets must point strictly
// backwards, which rules out reference cycles.
func (d *Doc) validate(off int) error {
	corrupt := func(what string) error {
		return errors.Wrapf(base.ErrorCorruptRevisionData, "encoded value: %s at offset %d", what, off)
	}
	if off < 0 || off >= len(d.data) {
		return corrupt("offset out of range")
	}
	switch d.data[off] {
	case tagNull, tagFalse, tagTrue:
		return nil
	case tagInt:
		if _, n := binary.Varint(d.data[off+1:]); n <= 0 {
			return corrupt("bad int")
		}
		return nil
	case tagFloat:
		if off+1+8 > len(d.data) {
			return corrupt("truncated float")
		}
		return nil
	case tagString, tagData:
		length, n := binary.Uvarint(d.data[off+1:])
		if n <= 0 || off+1+n+int(length) > len(d.data) {
			return corrupt("truncated string")
		}
		return nil
	case tagArray:
		count, pos, ok := d.readCount(off)
		if !ok {
			return corrupt("bad array header")
		}
		for i := 0; i < count; i++ {
			child, n := binary.Uvarint(d.data[pos:])
			if n <= 0 || int(child) >= off {
				return corrupt("bad array element offset")
			}
			if err := d.validate(int(child)); err != nil {
				return err
			}
			pos += n
		}
		return nil
	case tagDict:
		count, pos, ok := d.readCount(off)
		if !ok {
			return corrupt("bad dict header")
		}
		for i := 0; i < 2*count; i++ {
			child, n := binary.Uvarint(d.data[pos:])
			if n <= 0 || int(child) >= off {
				return corrupt("bad dict entry offset")
			}
			if i%2 == 0 && d.data[child] != tagString {
				return corrupt("dict key is not a string")
			}
			if err := d.validate(int(child)); err != nil {
				return err
			}
			pos += n
		}
		return nil
	default:
		return corrupt("unknown tag")
	}
}

func (d *Doc) readCount(off int) (count int, pos int, ok bool) {
	c, n := binary.Uvarint(d.data[off+1:])
	if n <= 0 {
		return 0, 0, false
	}
	return int(c), off + 1 + n, true
}

func (d *Doc) Data() []byte {
	return d.data
}

func (d *Doc) Root() Value {
	if d == nil {
		return Value{}
	}
	return Value{doc: d, off: d.root, valid: true}
}

func (d *Doc) AsDict() Dict {
	return d.Root().AsDict()
}

func (d *Doc) AsArray() Array {
	return d.Root().AsArray()
}

func (d *Doc) SetOwner(owner interface{}) {
	d.owner = owner
}

func (d *Doc) Owner() interface{} {
	if d == nil {
		return nil
	}
	return d.owner
}

// Value is an immutable value inside a Doc. The zero Value is "undefined"
// and is returned for absent keys and out-of-range indexes.
type Value struct {
	doc   *Doc
	off   int
	valid bool
}

func (v Value) Exists() bool {
	return v.valid
}

func (v Value) Doc() *Doc {
	if !v.valid {
		return nil
	}
	return v.doc
}

func (v Value) Type() Type {
	if !v.valid {
		return TypeUndefined
	}
	switch v.doc.data[v.off] {
	case tagNull:
		return TypeNull
	case tagFalse, tagTrue:
		return TypeBool
	case tagInt:
		return TypeInt
	case tagFloat:
		return TypeFloat
	case tagString:
		return TypeString
	case tagData:
		return TypeData
	case tagArray:
		return TypeArray
	case tagDict:
		return TypeDict
	}
	return TypeUndefined
}

func (v Value) AsBool() bool {
	return v.valid && v.doc.data[v.off] == tagTrue
}

func (v Value) AsInt() int64 {
	if !v.valid {
		return 0
	}
	switch v.doc.data[v.off] {
	case tagInt:
		i, _ := binary.Varint(v.doc.data[v.off+1:])
		return i
	case tagFloat:
		return int64(v.AsFloat())
	}
	return 0
}

func (v Value) AsFloat() float64 {
	if !v.valid {
		return 0
	}
	switch v.doc.data[v.off] {
	case tagFloat:
		bits := binary.BigEndian.Uint64(v.doc.data[v.off+1 : v.off+9])
		return math.Float64frombits(bits)
	case tagInt:
		return float64(v.AsInt())
	}
	return 0
}

func (v Value) AsString() string {
	if !v.valid || v.doc.data[v.off] != tagString {
		return ""
	}
	return string(v.payload())
}

// AsData returns the contents of a data value, or nil. The returned slice
// aliases the Doc's buffer and must not be modified.
func (v Value) AsData() []byte {
	if !v.valid || v.doc.data[v.off] != tagData {
		return nil
	}
	return v.payload()
}

func (v Value) payload() []byte {
	length, n := binary.Uvarint(v.doc.data[v.off+1:])
	start := v.off + 1 + n
	return v.doc.data[start : start+int(length)]
}

func (v Value) AsDict() Dict {
	if !v.valid || v.doc.data[v.off] != tagDict {
		return Dict{}
	}
	return Dict{val: v}
}

func (v Value) AsArray() Array {
	if !v.valid || v.doc.data[v.off] != tagArray {
		return Array{}
	}
	return Array{val: v}
}

// Dict is an immutable dictionary view. The zero Dict is absent.
type Dict struct {
	val Value
}

func (d Dict) Exists() bool {
	return d.val.valid
}

func (d Dict) Value() Value {
	return d.val
}

func (d Dict) Count() int {
	if !d.val.valid {
		return 0
	}
	count, _, _ := d.val.doc.readCount(d.val.off)
	return count
}

func (d Dict) IsEmpty() bool {
	return d.Count() == 0
}

// Get returns the value for key, or an undefined Value.
func (d Dict) Get(key string) Value {
	found := Value{}
	d.Each(func(k string, v Value) bool {
		if k == key {
			found = v
			return false
		}
		return true
	})
	return found
}

// Each calls fn for every entry until fn returns false.
func (d Dict) Each(fn func(key string, v Value) bool) {
	if !d.val.valid {
		return
	}
	doc := d.val.doc
	count, pos, _ := doc.readCount(d.val.off)
	for i := 0; i < count; i++ {
		keyOff, n := binary.Uvarint(doc.data[pos:])
		pos += n
		valOff, n := binary.Uvarint(doc.data[pos:])
		pos += n
		key := Value{doc: doc, off: int(keyOff), valid: true}
		if !fn(key.AsString(), Value{doc: doc, off: int(valOff), valid: true}) {
			return
		}
	}
}

// Array is an immutable array view. The zero Array is absent.
type Array struct {
	val Value
}

func (a Array) Exists() bool {
	return a.val.valid
}

func (a Array) Value() Value {
	return a.val
}

func (a Array) Count() int {
	if !a.val.valid {
		return 0
	}
	count, _, _ := a.val.doc.readCount(a.val.off)
	return count
}

// Get returns the i'th element, or an undefined Value when out of range.
func (a Array) Get(i int) Value {
	if !a.val.valid || i < 0 {
		return Value{}
	}
	doc := a.val.doc
	count, pos, _ := doc.readCount(a.val.off)
	if i >= count {
		return Value{}
	}
	for j := 0; j < i; j++ {
		_, n := binary.Uvarint(doc.data[pos:])
		pos += n
	}
	off, _ := binary.Uvarint(doc.data[pos:])
	return Value{doc: doc, off: int(off), valid: true}
}

// Each calls fn for every element until fn returns false.
func (a Array) Each(fn func(i int, v Value) bool) {
	if !a.val.valid {
		return
	}
	doc := a.val.doc
	count, pos, _ := doc.readCount(a.val.off)
	for i := 0; i < count; i++ {
		off, n := binary.Uvarint(doc.data[pos:])
		pos += n
		if !fn(i, Value{doc: doc, off: int(off), valid: true}) {
			return
		}
	}
}
