// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package vv

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/couchbase/golitecore/base"
)

// RevID is an opaque revision identifier. Two shapes coexist:
//   - tree form: a varint generation followed by a digest; the leading
//     byte is never 0 because the generation is at least 1.
//   - version-vector form: a leading 0x00 byte followed by the binary
//     vector.
type RevID []byte

// NewTreeRevID builds the binary tree form from a generation and digest.
func NewTreeRevID(gen uint64, digest []byte) RevID {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], gen)
	r := make(RevID, 0, n+len(digest))
	r = append(r, scratch[:n]...)
	return append(r, digest...)
}

// IsVersionVector reports whether the revID carries a version vector.
func (r RevID) IsVersionVector() bool {
	return len(r) > 0 && r[0] == 0
}

// Generation returns the leading generation of a tree revID, or the
// generation of the first version of a vector revID. 0 means malformed or
// empty.
func (r RevID) Generation() uint64 {
	if len(r) == 0 {
		return 0
	}
	if r.IsVersionVector() {
		v, err := CurrentVersionFromBinary(r)
		if err != nil {
			return 0
		}
		return v.Gen
	}
	gen, n := binary.Uvarint(r)
	if n <= 0 {
		return 0
	}
	return gen
}

// Digest returns the digest bytes of a tree revID, or nil.
func (r RevID) Digest() []byte {
	if len(r) == 0 || r.IsVersionVector() {
		return nil
	}
	_, n := binary.Uvarint(r)
	if n <= 0 {
		return nil
	}
	return r[n:]
}

// AsVersion decodes the current version of a vector revID.
func (r RevID) AsVersion() (Version, error) {
	return CurrentVersionFromBinary(r)
}

// AsVersionVector decodes the full vector of a vector revID.
func (r RevID) AsVersionVector() (VersionVector, error) {
	return VersionVectorFromBinary(r)
}

// ASCII renders a tree revID as "gen-digest" (both hex) and a vector
// revID in the comma-separated vector form.
func (r RevID) ASCII() string {
	if len(r) == 0 {
		return ""
	}
	if r.IsVersionVector() {
		vec, err := r.AsVersionVector()
		if err != nil {
			return ""
		}
		return vec.AsASCII(base.MePeerID)
	}
	gen := r.Generation()
	if gen == 0 {
		return ""
	}
	return fmt.Sprintf("%x-%s", gen, hex.EncodeToString(r.Digest()))
}

func (r RevID) String() string {
	return r.ASCII()
}

// RevIDFromASCII parses either revID shape from its ASCII form.
func RevIDFromASCII(str string) (RevID, error) {
	if dash := strings.IndexByte(str, '-'); dash > 0 {
		gen, err := strconv.ParseUint(str[:dash], 16, 64)
		if err != nil || gen == 0 {
			return nil, errors.Wrapf(base.ErrorBadRevisionID, "invalid revision ID '%s'", str)
		}
		digest, err := hex.DecodeString(str[dash+1:])
		if err != nil || len(digest) == 0 {
			return nil, errors.Wrapf(base.ErrorBadRevisionID, "invalid revision ID '%s'", str)
		}
		return NewTreeRevID(gen, digest), nil
	}
	vec, err := VersionVectorFromASCII(str)
	if err != nil {
		return nil, err
	}
	return RevID(vec.AsBinary(base.MePeerID)), nil
}
