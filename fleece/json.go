// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package fleece

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
)

// CanonicalJSON renders any accepted value kind as deterministic JSON:
// dict keys sorted, integral floats written as integers, data values as
// base64 strings. Two structurally equal values always produce identical
// bytes, which makes the output suitable as digest input.
func CanonicalJSON(v interface{}) []byte {
	return appendJSON(nil, v)
}

func appendJSON(buf []byte, v interface{}) []byte {
	switch TypeOf(v) {
	case TypeUndefined, TypeNull:
		return append(buf, "null"...)
	case TypeBool:
		if asBoolAny(v) {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case TypeInt:
		return strconv.AppendInt(buf, asInt(v), 10)
	case TypeFloat:
		f := asFloat(v)
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.AppendInt(buf, int64(f), 10)
		}
		return strconv.AppendFloat(buf, f, 'g', -1, 64)
	case TypeString:
		return appendJSONString(buf, asString(v))
	case TypeData:
		return appendJSONString(buf, base64.StdEncoding.EncodeToString(AsDataBytes(v)))
	case TypeArray:
		a, _ := asAnyArray(v)
		buf = append(buf, '[')
		for i := 0; i < a.arrayCount(); i++ {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendJSON(buf, a.arrayGet(i))
		}
		return append(buf, ']')
	case TypeDict:
		d, _ := asAnyDict(v)
		buf = append(buf, '{')
		for i, k := range d.dictKeys() {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendJSONString(buf, k)
			buf = append(buf, ':')
			buf = appendJSON(buf, d.dictGet(k))
		}
		return append(buf, '}')
	}
	return buf
}

func appendJSONString(buf []byte, s string) []byte {
	// encoding/json produces stable escaping for strings
	b, _ := json.Marshal(s)
	return append(buf, b...)
}
