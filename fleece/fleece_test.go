// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package fleece

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchbase/golitecore/base"
)

func encodeValue(t *testing.T, v interface{}) []byte {
	enc := NewEncoder()
	assert.Nil(t, enc.WriteValue(v))
	data, err := enc.Finish()
	assert.Nil(t, err)
	return data
}

func Test_ScalarRoundTrip(t *testing.T) {
	a := assert.New(t)

	md := NewMutableDict()
	md.Set("null", nil)
	md.Set("true", true)
	md.Set("false", false)
	md.Set("int", int64(-42))
	md.Set("big", int64(1<<60))
	md.Set("float", 3.25)
	md.Set("str", "hello")
	md.Set("data", []byte{1, 2, 3})

	doc, err := NewDoc(encodeValue(t, md))
	a.Nil(err)
	d := doc.AsDict()
	a.Equal(8, d.Count())
	a.Equal(TypeNull, d.Get("null").Type())
	a.True(d.Get("true").AsBool())
	a.False(d.Get("false").AsBool())
	a.Equal(int64(-42), d.Get("int").AsInt())
	a.Equal(int64(1<<60), d.Get("big").AsInt())
	a.Equal(3.25, d.Get("float").AsFloat())
	a.Equal("hello", d.Get("str").AsString())
	a.Equal([]byte{1, 2, 3}, d.Get("data").AsData())
	a.False(d.Get("missing").Exists())
}

func Test_NestedContainers(t *testing.T) {
	a := assert.New(t)

	inner := NewMutableDict()
	inner.Set("x", int64(1))
	arr := NewMutableArray()
	arr.Append("a")
	arr.Append(inner)
	root := NewMutableDict()
	root.Set("list", arr)

	doc, err := NewDoc(encodeValue(t, root))
	a.Nil(err)
	list := doc.AsDict().Get("list").AsArray()
	a.Equal(2, list.Count())
	a.Equal("a", list.Get(0).AsString())
	a.Equal(int64(1), list.Get(1).AsDict().Get("x").AsInt())
	a.False(list.Get(5).Exists())
}

func Test_DocValidation(t *testing.T) {
	a := assert.New(t)

	for _, bad := range [][]byte{nil, {1}, {1, 2, 3, 4}, {0xff, 0, 0, 0, 0}} {
		_, err := NewDoc(bad)
		a.ErrorIs(err, base.ErrorCorruptRevisionData)
	}

	// valid buffer with a corrupted root offset
	data := encodeValue(t, "x")
	data[len(data)-1] = 0xff
	_, err := NewDoc(data)
	a.ErrorIs(err, base.ErrorCorruptRevisionData)
}

func Test_MutableOverlay(t *testing.T) {
	a := assert.New(t)

	base1 := NewMutableDict()
	base1.Set("keep", "old")
	base1.Set("drop", "gone")
	sub := NewMutableDict()
	sub.Set("n", int64(7))
	base1.Set("sub", sub)

	doc, err := NewDoc(encodeValue(t, base1))
	a.Nil(err)

	md := MutableDictFrom(doc.AsDict())
	a.False(md.IsChanged())
	a.Equal("old", AsString(md.Get("keep")))

	md.Set("keep", "new")
	md.Remove("drop")
	a.True(md.IsChanged())
	a.Equal("new", AsString(md.Get("keep")))
	a.Nil(md.Get("drop"))
	a.Equal([]string{"keep", "sub"}, md.Keys())

	// promoting a child doesn't latch the parent's changed bit
	md2 := MutableDictFrom(doc.AsDict())
	child := md2.GetMutableDict("sub")
	a.NotNil(child)
	a.False(md2.IsChanged())
	a.False(child.IsChanged())
	child.Set("n", int64(8))
	a.True(child.IsChanged())
	a.Equal(int64(8), AsInt(child.Get("n")))
}

func Test_DeepIteratorFindsDirtyContainers(t *testing.T) {
	a := assert.New(t)

	inner := NewMutableDict()
	inner.Set("n", int64(1))
	root := NewMutableDict()
	root.Set("inner", inner)
	doc, err := NewDoc(encodeValue(t, root))
	a.Nil(err)

	dirty := func(props interface{}) bool {
		it := NewDeepIterator(props)
		for it.Next() {
			switch v := it.Value().(type) {
			case *MutableDict:
				if v.IsChanged() {
					return true
				}
			case *MutableArray:
				if v.IsChanged() {
					return true
				}
			default:
				it.SkipChildren()
			}
		}
		return false
	}

	md := MutableDictFrom(doc.AsDict())
	a.False(dirty(md))
	child := md.GetMutableDict("inner")
	a.False(dirty(md))
	child.Set("n", int64(2))
	a.True(dirty(md))
	child.SetChanged(false)
	a.False(dirty(md))
}

func Test_EqualsAndSame(t *testing.T) {
	a := assert.New(t)

	m1 := NewMutableDict()
	m1.Set("a", int64(1))
	m2 := NewMutableDict()
	m2.Set("a", int64(1))
	a.True(Equals(m1, m2))
	a.False(Same(m1, m2))
	a.True(Same(m1, m1))

	m2.Set("a", int64(2))
	a.False(Equals(m1, m2))

	doc, err := NewDoc(encodeValue(t, m1))
	a.Nil(err)
	a.True(Equals(doc.AsDict(), m1))
	a.True(Same(doc.AsDict().Value(), doc.AsDict().Value()))
}

func Test_DeDuplicateEncoder(t *testing.T) {
	a := assert.New(t)

	shared := NewMutableDict()
	shared.Set("payload", "a long enough string that sharing pays off")

	plain := NewEncoder()
	plain.BeginArray()
	a.Nil(plain.WriteValue(shared))
	a.Nil(plain.WriteValue(shared))
	plain.EndArray()
	plainData, err := plain.Finish()
	a.Nil(err)

	enc := NewEncoder()
	dd := NewDeDuplicateEncoder(enc)
	enc.BeginArray()
	a.Nil(dd.WriteValue(shared, 2))
	a.Nil(dd.WriteValue(shared, 2))
	enc.EndArray()
	dedupData, err := enc.Finish()
	a.Nil(err)

	// both decode to the same structure, the de-duplicated one is smaller
	// (the plain encoder still shares strings, so compare whole buffers)
	a.Less(len(dedupData), len(plainData))
	doc, err := NewDoc(dedupData)
	a.Nil(err)
	arr := doc.AsArray()
	a.Equal(2, arr.Count())
	a.True(Equals(arr.Get(0), arr.Get(1)))

	// shared data values are also written once
	enc2 := NewEncoder()
	dd2 := NewDeDuplicateEncoder(enc2)
	blob := []byte("0123456789abcdef0123456789abcdef")
	enc2.BeginArray()
	a.Nil(dd2.WriteValue(blob, 0))
	a.Nil(dd2.WriteValue(append([]byte(nil), blob...), 0))
	enc2.EndArray()
	dedupData2, err := enc2.Finish()
	a.Nil(err)
	doc2, err := NewDoc(dedupData2)
	a.Nil(err)
	a.Equal(doc2.AsArray().Get(0).AsData(), doc2.AsArray().Get(1).AsData())
	a.Less(len(dedupData2), 2*len(blob))
}

func Test_CanonicalJSON(t *testing.T) {
	a := assert.New(t)

	md := NewMutableDict()
	md.Set("b", int64(2))
	md.Set("a", "x")
	arr := NewMutableArray()
	arr.Append(true)
	arr.Append(nil)
	arr.Append(1.5)
	md.Set("c", arr)

	a.Equal(`{"a":"x","b":2,"c":[true,null,1.5]}`, string(CanonicalJSON(md)))

	// identical bytes for the immutable decoding of the same value
	doc, err := NewDoc(encodeValue(t, md))
	a.Nil(err)
	a.Equal(CanonicalJSON(md), CanonicalJSON(doc.AsDict()))

	// integral floats render as integers
	a.Equal("3", string(CanonicalJSON(3.0)))
	a.Equal("{}", string(CanonicalJSON(EmptyDict())))
}

func Test_OwnerBacklink(t *testing.T) {
	a := assert.New(t)

	inner := NewMutableDict()
	inner.Set("n", int64(1))
	root := NewMutableDict()
	root.Set("inner", inner)

	doc, err := NewDoc(encodeValue(t, root))
	a.Nil(err)
	type owner struct{ name string }
	o := &owner{"doc1"}
	doc.SetOwner(o)

	a.Equal(o, OwnerOf(doc.AsDict()))
	a.Equal(o, OwnerOf(doc.AsDict().Get("inner")))

	// a mutable overlay resolves through its immutable source
	md := MutableDictFrom(doc.AsDict())
	a.Equal(o, OwnerOf(md))
	child := md.GetMutableDict("inner")
	a.Equal(o, OwnerOf(child))

	// a heap-only value has no owner
	a.Nil(OwnerOf(NewMutableDict()))
}
