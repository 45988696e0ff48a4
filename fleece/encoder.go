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
	"fmt"
	"math"
	"sort"
)

// Encoder serializes values into the encoded format. Containers can be
// built either by passing a whole value to WriteValue, or incrementally
// with BeginArray/BeginDict. Identical strings are written once and
// shared; broader de-duplication is the DeDuplicateEncoder's job.
type Encoder struct {
	buf         []byte
	containers  []*pendingContainer
	strings     map[string]int
	lastWritten int
	root        int
	err         error
}

type pendingContainer struct {
	isDict  bool
	keys    []string
	keyOffs []int
	valOffs []int
}

func NewEncoder() *Encoder {
	e := &Encoder{}
	e.Reset()
	return e
}

func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
	e.containers = nil
	e.strings = map[string]int{}
	e.lastWritten = -1
	e.root = -1
	e.err = nil
}

// LastValueWritten returns the offset of the most recently completed
// value, for later re-use via WriteValueAgain.
func (e *Encoder) LastValueWritten() int {
	return e.lastWritten
}

// WriteValueAgain registers an already-written value as the next element
// of the open container, producing a shared reference.
func (e *Encoder) WriteValueAgain(off int) {
	e.addValue(off)
}

func (e *Encoder) WriteValue(v interface{}) error {
	off := e.writeAny(v)
	if e.err != nil {
		return e.err
	}
	e.addValue(off)
	return nil
}

func (e *Encoder) BeginArray() {
	e.containers = append(e.containers, &pendingContainer{})
}

func (e *Encoder) BeginDict() {
	e.containers = append(e.containers, &pendingContainer{isDict: true})
}

// WriteKey writes the key of the next dict entry.
func (e *Encoder) WriteKey(key string) {
	c := e.top()
	if c == nil || !c.isDict {
		e.fail("WriteKey outside of a dict")
		return
	}
	c.keys = append(c.keys, key)
	c.keyOffs = append(c.keyOffs, e.writeString(key))
}

func (e *Encoder) EndArray() {
	c := e.pop()
	if c == nil || c.isDict {
		e.fail("EndArray without BeginArray")
		return
	}
	e.addValue(e.writeArrayHeader(c.valOffs))
}

func (e *Encoder) EndDict() {
	c := e.pop()
	if c == nil || !c.isDict {
		e.fail("EndDict without BeginDict")
		return
	}
	if len(c.keys) != len(c.valOffs) {
		e.fail("dict key without a value")
		return
	}
	e.addValue(e.writeDictHeader(c.keys, c.keyOffs, c.valOffs))
}

// Finish appends the root-offset trailer and returns the encoded buffer,
// leaving the encoder reset for re-use.
func (e *Encoder) Finish() ([]byte, error) {
	if e.err == nil && len(e.containers) > 0 {
		e.fail("Finish with an open container")
	}
	if e.err == nil && e.root < 0 {
		e.fail("Finish with nothing written")
	}
	if e.err != nil {
		err := e.err
		e.Reset()
		return nil, err
	}
	out := make([]byte, len(e.buf)+trailerSize)
	copy(out, e.buf)
	binary.BigEndian.PutUint32(out[len(e.buf):], uint32(e.root))
	e.Reset()
	return out, nil
}

func (e *Encoder) fail(msg string) {
	if e.err == nil {
		e.err = fmt.Errorf("fleece encoder: %s", msg)
	}
}

func (e *Encoder) top() *pendingContainer {
	if len(e.containers) == 0 {
		return nil
	}
	return e.containers[len(e.containers)-1]
}

func (e *Encoder) pop() *pendingContainer {
	c := e.top()
	if c != nil {
		e.containers = e.containers[:len(e.containers)-1]
	}
	return c
}

// addValue records off as the next element of the open container, or as
// the root when no container is open.
func (e *Encoder) addValue(off int) {
	e.lastWritten = off
	if c := e.top(); c != nil {
		c.valOffs = append(c.valOffs, off)
	} else {
		e.root = off
	}
}

// writeAny serializes v and returns its offset, without registering it in
// any container.
func (e *Encoder) writeAny(v interface{}) int {
	switch x := v.(type) {
	case nil:
		return e.writeTag(tagNull)
	case bool:
		if x {
			return e.writeTag(tagTrue)
		}
		return e.writeTag(tagFalse)
	case int:
		return e.writeInt(int64(x))
	case int64:
		return e.writeInt(x)
	case uint64:
		return e.writeInt(int64(x))
	case float64:
		off := len(e.buf)
		e.buf = append(e.buf, tagFloat)
		var scratch [8]byte
		binary.BigEndian.PutUint64(scratch[:], math.Float64bits(x))
		e.buf = append(e.buf, scratch[:]...)
		return off
	case string:
		return e.writeString(x)
	case []byte:
		return e.writeData(x)
	case Value:
		return e.writeImmutable(x)
	case Dict:
		return e.writeImmutable(x.Value())
	case Array:
		return e.writeImmutable(x.Value())
	case *MutableDict:
		keys := x.Keys()
		keyOffs := make([]int, len(keys))
		valOffs := make([]int, len(keys))
		for i, k := range keys {
			keyOffs[i] = e.writeString(k)
			valOffs[i] = e.writeAny(x.Get(k))
		}
		return e.writeDictHeader(keys, keyOffs, valOffs)
	case *MutableArray:
		offs := make([]int, x.Count())
		for i := range offs {
			offs[i] = e.writeAny(x.Get(i))
		}
		return e.writeArrayHeader(offs)
	default:
		e.fail(fmt.Sprintf("unsupported value kind %T", v))
		return 0
	}
}

func (e *Encoder) writeImmutable(v Value) int {
	switch v.Type() {
	case TypeUndefined, TypeNull:
		return e.writeTag(tagNull)
	case TypeBool:
		if v.AsBool() {
			return e.writeTag(tagTrue)
		}
		return e.writeTag(tagFalse)
	case TypeInt:
		return e.writeInt(v.AsInt())
	case TypeFloat:
		return e.writeAny(v.AsFloat())
	case TypeString:
		return e.writeString(v.AsString())
	case TypeData:
		return e.writeData(v.AsData())
	case TypeArray:
		a := v.AsArray()
		offs := make([]int, 0, a.Count())
		a.Each(func(_ int, child Value) bool {
			offs = append(offs, e.writeImmutable(child))
			return true
		})
		return e.writeArrayHeader(offs)
	case TypeDict:
		d := v.AsDict()
		w := immutableDict{d}
		keys := w.dictKeys()
		keyOffs := make([]int, len(keys))
		valOffs := make([]int, len(keys))
		for i, k := range keys {
			keyOffs[i] = e.writeString(k)
			valOffs[i] = e.writeImmutable(d.Get(k))
		}
		return e.writeDictHeader(keys, keyOffs, valOffs)
	}
	return e.writeTag(tagNull)
}

func (e *Encoder) writeTag(tag byte) int {
	off := len(e.buf)
	e.buf = append(e.buf, tag)
	return off
}

func (e *Encoder) writeInt(i int64) int {
	off := len(e.buf)
	e.buf = append(e.buf, tagInt)
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutVarint(scratch[:], i)
	e.buf = append(e.buf, scratch[:n]...)
	return off
}

func (e *Encoder) writeString(s string) int {
	if off, ok := e.strings[s]; ok {
		return off
	}
	off := len(e.buf)
	e.buf = append(e.buf, tagString)
	e.appendUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
	e.strings[s] = off
	return off
}

func (e *Encoder) writeData(b []byte) int {
	off := len(e.buf)
	e.buf = append(e.buf, tagData)
	e.appendUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
	return off
}

func (e *Encoder) writeArrayHeader(offs []int) int {
	off := len(e.buf)
	e.buf = append(e.buf, tagArray)
	e.appendUvarint(uint64(len(offs)))
	for _, o := range offs {
		e.appendUvarint(uint64(o))
	}
	return off
}

// writeDictHeader writes a dict over already-written keys and values,
// ordering entries by key.
func (e *Encoder) writeDictHeader(keys []string, keyOffs, valOffs []int) int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })
	off := len(e.buf)
	e.buf = append(e.buf, tagDict)
	e.appendUvarint(uint64(len(keys)))
	for _, i := range idx {
		e.appendUvarint(uint64(keyOffs[i]))
		e.appendUvarint(uint64(valOffs[i]))
	}
	return off
}

func (e *Encoder) appendUvarint(u uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], u)
	e.buf = append(e.buf, scratch[:n]...)
}

// DeDuplicateEncoder wraps an Encoder and detects repeated array, dict
// and data values, writing them only once. Subsequent appearances become
// shared references. Arrays and dicts are compared by identity, data
// values byte-by-byte; the plain Encoder already de-duplicates strings.
type DeDuplicateEncoder struct {
	enc         *Encoder
	written     map[interface{}]int
	writtenData map[string]int
}

func NewDeDuplicateEncoder(enc *Encoder) *DeDuplicateEncoder {
	return &DeDuplicateEncoder{
		enc:         enc,
		written:     map[interface{}]int{},
		writtenData: map[string]int{},
	}
}

// WriteValue writes v, substituting a reference if the same value has
// been written before. depth is how many levels of nesting to check for
// duplicates: 0 means just this value, 1 includes its children, etc.
func (dd *DeDuplicateEncoder) WriteValue(v interface{}, depth int) error {
	switch TypeOf(v) {
	case TypeUndefined, TypeNull, TypeBool, TypeInt, TypeFloat, TypeString:
		return dd.enc.WriteValue(v)
	case TypeData:
		dd.writeData(AsDataBytes(v))
		return dd.enc.err
	}
	if off, ok := dd.written[identityOf(v)]; ok {
		dd.enc.WriteValueAgain(off)
		return nil
	}
	switch TypeOf(v) {
	case TypeArray:
		a, _ := asAnyArray(v)
		dd.enc.BeginArray()
		for i := 0; i < a.arrayCount(); i++ {
			dd.writeChild(a.arrayGet(i), depth)
		}
		dd.enc.EndArray()
		dd.written[identityOf(v)] = dd.enc.LastValueWritten()
	case TypeDict:
		d, _ := asAnyDict(v)
		dd.enc.BeginDict()
		for _, k := range d.dictKeys() {
			dd.enc.WriteKey(k)
			dd.writeChild(d.dictGet(k), depth)
		}
		dd.enc.EndDict()
		dd.written[identityOf(v)] = dd.enc.LastValueWritten()
	}
	return dd.enc.err
}

func (dd *DeDuplicateEncoder) writeData(data []byte) {
	if off, ok := dd.writtenData[string(data)]; ok {
		dd.enc.WriteValueAgain(off)
		return
	}
	dd.enc.WriteValue(data)
	dd.writtenData[string(data)] = dd.enc.LastValueWritten()
}

func (dd *DeDuplicateEncoder) writeChild(v interface{}, depth int) {
	if depth > 0 {
		dd.WriteValue(v, depth-1)
	} else {
		dd.enc.WriteValue(v)
	}
}

// identityOf returns a comparable identity for containers: the encoded
// location for immutable values, the pointer for mutable ones.
func identityOf(v interface{}) interface{} {
	switch x := v.(type) {
	case Dict:
		return x.Value()
	case Array:
		return x.Value()
	default:
		return v
	}
}
