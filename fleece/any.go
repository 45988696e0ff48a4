// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package fleece

// Kind-generic accessors over interface{} values, for callers that hold a
// mix of immutable and mutable containers.

// AsInt returns the integer value of any int-kind value.
func AsInt(v interface{}) int64 {
	return asInt(v)
}

// AsString returns the string contents of any string-kind value.
func AsString(v interface{}) string {
	return asString(v)
}

// IsDict reports whether v is a dict of either kind.
func IsDict(v interface{}) bool {
	_, ok := asAnyDict(v)
	return ok
}

// DictGet reads key from a dict of either kind; nil if v is no dict or
// the key is absent.
func DictGet(v interface{}, key string) interface{} {
	if d, ok := asAnyDict(v); ok {
		return d.dictGet(key)
	}
	return nil
}

// DictCount returns the entry count of a dict of either kind.
func DictCount(v interface{}) int {
	if d, ok := asAnyDict(v); ok {
		return len(d.dictKeys())
	}
	return 0
}

// ArrayCount returns the element count of an array of either kind.
func ArrayCount(v interface{}) int {
	if a, ok := asAnyArray(v); ok {
		return a.arrayCount()
	}
	return 0
}

// ArrayGet reads element i from an array of either kind; nil when out of
// range.
func ArrayGet(v interface{}, i int) interface{} {
	if a, ok := asAnyArray(v); ok {
		return a.arrayGet(i)
	}
	return nil
}

var emptyDictDoc *Doc

func init() {
	enc := NewEncoder()
	enc.BeginDict()
	enc.EndDict()
	data, err := enc.Finish()
	if err != nil {
		panic(err)
	}
	emptyDictDoc, err = NewDoc(data)
	if err != nil {
		panic(err)
	}
}

// EmptyDict returns a shared immutable dict with no entries.
func EmptyDict() Dict {
	return emptyDictDoc.AsDict()
}
