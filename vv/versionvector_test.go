// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package vv

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchbase/golitecore/base"
)

func mustVector(t *testing.T, str string) VersionVector {
	vec, err := VersionVectorFromASCII(str)
	assert.Nil(t, err)
	return vec
}

func Test_VersionASCII(t *testing.T) {
	a := assert.New(t)

	v, err := VersionFromASCII("3@a")
	a.Nil(err)
	a.Equal(uint64(3), v.Gen)
	a.Equal(base.PeerID(0xa), v.Author)
	a.Equal("3@a", v.AsASCII(base.MePeerID))

	v, err = VersionFromASCII("1f@*")
	a.Nil(err)
	a.Equal(uint64(0x1f), v.Gen)
	a.Equal(base.MePeerID, v.Author)
	a.Equal("1f@*", v.AsASCII(base.MePeerID))
	a.Equal("1f@1234", v.AsASCII(base.PeerID(0x1234)))

	for _, bad := range []string{"", "@", "3@", "@a", "0@a", "3@0", "3a", "z@a", "3@zz"} {
		_, err = VersionFromASCII(bad)
		a.ErrorIs(err, base.ErrorBadRevisionID, "input %q", bad)
	}
}

func Test_VersionBinaryRoundTrip(t *testing.T) {
	a := assert.New(t)

	v := Version{Gen: 0x1234, Author: base.PeerID(0xbeef)}
	buf := v.appendBinary(nil, base.MePeerID)
	cursor := buf
	v2, err := readVersionBinary(&cursor)
	a.Nil(err)
	a.Equal(v, v2)
	a.Equal(0, len(cursor))

	// local-peer substitution on write
	local := Version{Gen: 7, Author: base.MePeerID}
	buf = local.appendBinary(nil, base.PeerID(0x99))
	cursor = buf
	v2, err = readVersionBinary(&cursor)
	a.Nil(err)
	a.Equal(base.PeerID(0x99), v2.Author)

	// arbitrary bytes must fail, not panic
	for _, bad := range [][]byte{{}, {0x80}, {0x01, 0x80}, {0x00, 0x02}} {
		cursor = bad
		_, err = readVersionBinary(&cursor)
		a.ErrorIs(err, base.ErrorBadRevisionID)
	}
}

func Test_VersionVectorCompare(t *testing.T) {
	a := assert.New(t)

	v1 := mustVector(t, "3@a,1@b")
	v2 := mustVector(t, "3@a,2@b")
	v3 := mustVector(t, "2@a,2@b")

	// equal position-0 versions short-circuit to Same regardless of tails
	a.Equal(Same, v1.CompareTo(v2))
	a.Equal(Same, v2.CompareTo(v1))
	a.Equal(Conflicting, v1.CompareTo(v3))
	a.Equal(Conflicting, v3.CompareTo(v1))
	a.Equal(Same, v1.CompareTo(v1))

	// size difference with containment
	v4 := mustVector(t, "3@a")
	a.Equal(Newer, v1.CompareTo(v4))
	a.Equal(Older, v4.CompareTo(v1))

	// disjoint authors conflict
	v5 := mustVector(t, "1@c")
	a.Equal(Conflicting, v1.CompareTo(v5))

	// missing author on one side with a newer gen on the other
	v6 := mustVector(t, "4@a")
	a.Equal(Conflicting, v1.CompareTo(v6))
}

func Test_VersionVectorCompareInverse(t *testing.T) {
	a := assert.New(t)

	inverse := func(o Order) Order {
		switch o {
		case Older:
			return Newer
		case Newer:
			return Older
		}
		return o
	}
	vectors := []VersionVector{
		mustVector(t, "3@a,1@b"),
		mustVector(t, "3@a,2@b"),
		mustVector(t, "2@a,2@b"),
		mustVector(t, "1@c"),
		mustVector(t, "5@b,2@a,7@d"),
	}
	for _, v := range vectors {
		for _, w := range vectors {
			a.Equal(inverse(w.CompareTo(v)), v.CompareTo(w), "%s vs %s", v, w)
		}
	}
}

func Test_VersionVectorCompareToVersion(t *testing.T) {
	a := assert.New(t)

	vec := mustVector(t, "3@a,1@b")
	a.Equal(Same, vec.CompareToVersion(Version{Gen: 3, Author: 0xa}))
	a.Equal(Newer, vec.CompareToVersion(Version{Gen: 2, Author: 0xa}))
	a.Equal(Older, vec.CompareToVersion(Version{Gen: 4, Author: 0xa}))
	a.Equal(Older, vec.CompareToVersion(Version{Gen: 1, Author: 0xc}))
	// matches a non-head entry: Newer, not Same
	a.Equal(Newer, vec.CompareToVersion(Version{Gen: 1, Author: 0xb}))

	// version-side view is the mirror
	a.Equal(Older, Version{Gen: 2, Author: 0xa}.CompareTo(vec))
	a.Equal(Newer, Version{Gen: 4, Author: 0xa}.CompareTo(vec))
	a.Equal(Same, Version{Gen: 3, Author: 0xa}.CompareTo(vec))
}

func Test_VersionVectorMerge(t *testing.T) {
	a := assert.New(t)

	v1 := mustVector(t, "3@a,1@b")
	v2 := mustVector(t, "2@a,2@c")
	merged := v1.MergedWith(v2)

	a.Equal(3, merged.Count())
	a.Equal(Version{Gen: 3, Author: 0xa}, merged.Get(0))
	a.Equal(uint64(3), merged.GenOfAuthor(0xa))
	a.Equal(uint64(1), merged.GenOfAuthor(0xb))
	a.Equal(uint64(2), merged.GenOfAuthor(0xc))

	// merged result dominates both inputs
	a.Contains([]Order{Same, Newer}, merged.CompareTo(v1))
	a.Contains([]Order{Same, Newer}, merged.CompareTo(v2))

	// merging with self is identity
	self := v1.MergedWith(v1)
	a.Equal(Same, self.CompareTo(v1))
}

func Test_VersionVectorIncrementGen(t *testing.T) {
	a := assert.New(t)

	vec := mustVector(t, "3@a,1@b")
	vec.IncrementGen(0xb)
	a.Equal(Version{Gen: 2, Author: 0xb}, vec.Get(0))
	a.Equal(2, vec.Count())
	a.Equal(uint64(3), vec.GenOfAuthor(0xa))

	vec.IncrementGen(0xc)
	a.Equal(Version{Gen: 1, Author: 0xc}, vec.Get(0))
	a.Equal(3, vec.Count())
	a.Nil(vec.validate())
}

func Test_VersionVectorRoundTrip(t *testing.T) {
	a := assert.New(t)

	for _, str := range []string{"3@a,1@b", "1@*", "ff@1234,2@b,9@c"} {
		vec := mustVector(t, str)
		bin := vec.AsBinary(base.MePeerID)
		a.Equal(byte(0), bin[0])
		vec2, err := VersionVectorFromBinary(bin)
		a.Nil(err)
		a.Equal(vec, vec2)
		a.Equal(str, vec2.AsASCII(base.MePeerID))
	}

	// local-peer substitution applies on both renderings
	vec := mustVector(t, "2@*,1@b")
	myID := base.PeerID(0xdead)
	bin := vec.AsBinary(myID)
	vec2, err := VersionVectorFromBinary(bin)
	a.Nil(err)
	a.Equal(uint64(2), vec2.GenOfAuthor(myID))
	a.Equal("2@dead,1@b", vec.AsASCII(myID))
}

func Test_VersionVectorParseErrors(t *testing.T) {
	a := assert.New(t)

	_, err := VersionVectorFromASCII("")
	a.ErrorIs(err, base.ErrorBadRevisionID)
	_, err = VersionVectorFromASCII("3@a,3@a")
	a.ErrorIs(err, base.ErrorBadRevisionID)
	_, err = VersionVectorFromASCII("3@a,,1@b")
	a.ErrorIs(err, base.ErrorBadRevisionID)

	_, err = VersionVectorFromBinary(nil)
	a.ErrorIs(err, base.ErrorBadRevisionID)
	_, err = VersionVectorFromBinary([]byte{1, 2, 3})
	a.ErrorIs(err, base.ErrorBadRevisionID)
	_, err = VersionVectorFromBinary([]byte{0, 0x80})
	a.ErrorIs(err, base.ErrorBadRevisionID)
	// duplicate author in binary form
	dup := mustVector(t, "3@a").AsBinary(base.MePeerID)
	dup = append(dup, mustVector(t, "1@a").AsBinary(base.MePeerID)[1:]...)
	_, err = VersionVectorFromBinary(dup)
	a.ErrorIs(err, base.ErrorBadRevisionID)
}

func Test_VersionVectorCompactExpand(t *testing.T) {
	a := assert.New(t)

	myID := base.PeerID(0x42)
	vec := mustVector(t, "3@42,1@b")
	vec.CompactMyPeerID(myID)
	a.Equal(base.MePeerID, vec.Get(0).Author)
	a.False(vec.IsExpanded())

	vec.ExpandMyPeerID(myID)
	a.Equal(myID, vec.Get(0).Author)
	a.True(vec.IsExpanded())
}

func Test_VersionVectorLimitCount(t *testing.T) {
	a := assert.New(t)

	vec := mustVector(t, "5@a,4@b,3@c,2@d")
	vec.LimitCount(2)
	a.Equal(2, vec.Count())
	a.Equal("5@a,4@b", vec.AsASCII(base.MePeerID))

	vec.LimitCount(10)
	a.Equal(2, vec.Count())
}

func Test_RevID(t *testing.T) {
	a := assert.New(t)

	digest := []byte{0xde, 0xad, 0xbe, 0xef}
	r := NewTreeRevID(3, digest)
	a.False(r.IsVersionVector())
	a.Equal(uint64(3), r.Generation())
	a.Equal(digest, r.Digest())
	a.Equal("3-deadbeef", r.ASCII())

	parsed, err := RevIDFromASCII("3-deadbeef")
	a.Nil(err)
	a.Equal(r, parsed)

	vec := mustVector(t, "3@a,1@b")
	vr := RevID(vec.AsBinary(base.MePeerID))
	a.True(vr.IsVersionVector())
	a.Equal(uint64(3), vr.Generation())
	a.Nil(vr.Digest())
	got, err := vr.AsVersionVector()
	a.Nil(err)
	a.Equal(vec, got)
	a.Equal("3@a,1@b", vr.ASCII())

	parsed, err = RevIDFromASCII("3@a,1@b")
	a.Nil(err)
	a.Equal(vr, parsed)

	_, err = RevIDFromASCII("0-deadbeef")
	a.ErrorIs(err, base.ErrorBadRevisionID)
	_, err = RevIDFromASCII("nonsense")
	a.ErrorIs(err, base.ErrorBadRevisionID)
}
