// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package vv

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/couchbase/golitecore/base"
)

// VersionVector is an ordered list of Versions with unique authors.
// Position 0 is the current (most recently changed) version. The binary
// form starts with a 0x00 byte, which distinguishes it from a tree
// revision ID.
type VersionVector struct {
	vers []Version
}

// NewVersionVector builds a vector from versions in order, rejecting
// duplicate authors.
func NewVersionVector(versions ...Version) (VersionVector, error) {
	vec := VersionVector{vers: append([]Version(nil), versions...)}
	if err := vec.validate(); err != nil {
		return VersionVector{}, err
	}
	return vec, nil
}

func (vv *VersionVector) validate() error {
	authors := mapset.NewThreadUnsafeSet[base.PeerID]()
	for _, v := range vv.vers {
		if v.Gen == 0 {
			return errors.Wrap(base.ErrorBadRevisionID, "version vector has generation 0")
		}
		if !authors.Add(v.Author) {
			return errors.Wrapf(base.ErrorBadRevisionID, "version vector repeats author %s", v.Author)
		}
	}
	return nil
}

// VersionVectorFromBinary parses the leading-0x00 binary form.
func VersionVectorFromBinary(data []byte) (VersionVector, error) {
	if len(data) < 1 || data[0] != 0 {
		return VersionVector{}, errors.Wrap(base.ErrorBadRevisionID, "invalid binary version vector")
	}
	data = data[1:]
	var vec VersionVector
	for len(data) > 0 {
		v, err := readVersionBinary(&data)
		if err != nil {
			return VersionVector{}, err
		}
		vec.vers = append(vec.vers, v)
	}
	if err := vec.validate(); err != nil {
		return VersionVector{}, err
	}
	return vec, nil
}

// CurrentVersionFromBinary reads just the first version of a binary
// vector, without parsing the rest.
func CurrentVersionFromBinary(data []byte) (Version, error) {
	if len(data) < 1 || data[0] != 0 {
		return Version{}, errors.Wrap(base.ErrorBadRevisionID, "invalid binary version vector")
	}
	data = data[1:]
	return readVersionBinary(&data)
}

// VersionVectorFromASCII parses the comma-separated ASCII form. The empty
// string is not a valid vector.
func VersionVectorFromASCII(str string) (VersionVector, error) {
	if len(str) == 0 {
		return VersionVector{}, errors.Wrap(base.ErrorBadRevisionID, "empty version vector string")
	}
	var vec VersionVector
	for _, part := range strings.Split(str, ",") {
		v, err := VersionFromASCII(part)
		if err != nil {
			return VersionVector{}, err
		}
		vec.vers = append(vec.vers, v)
	}
	if err := vec.validate(); err != nil {
		return VersionVector{}, err
	}
	return vec, nil
}

func (vv VersionVector) Count() int {
	return len(vv.vers)
}

func (vv VersionVector) IsEmpty() bool {
	return len(vv.vers) == 0
}

// Get returns the i'th version; position 0 is the current one.
func (vv VersionVector) Get(i int) Version {
	return vv.vers[i]
}

// Current returns position 0, or a zero Version for an empty vector.
func (vv VersionVector) Current() Version {
	if len(vv.vers) == 0 {
		return Version{}
	}
	return vv.vers[0]
}

// AsBinary renders the vector with myID substituted for the local-peer
// placeholder.
func (vv VersionVector) AsBinary(myID base.PeerID) []byte {
	buf := make([]byte, 1, 1+len(vv.vers)*20)
	buf[0] = 0
	for _, v := range vv.vers {
		buf = v.appendBinary(buf, myID)
	}
	return buf
}

// AsASCII renders the comma-separated form; an empty vector yields the
// empty string.
func (vv VersionVector) AsASCII(myID base.PeerID) string {
	if len(vv.vers) == 0 {
		return ""
	}
	parts := make([]string, len(vv.vers))
	for i, v := range vv.vers {
		parts[i] = v.AsASCII(myID)
	}
	return strings.Join(parts, ",")
}

func (vv VersionVector) String() string {
	return vv.AsASCII(base.MePeerID)
}

func (vv VersionVector) findPeerIndex(author base.PeerID) int {
	for i, v := range vv.vers {
		if v.Author == author {
			return i
		}
	}
	return -1
}

// GenOfAuthor returns the generation recorded for author, or 0 if the
// author is absent.
func (vv VersionVector) GenOfAuthor(author base.PeerID) uint64 {
	if i := vv.findPeerIndex(author); i >= 0 {
		return vv.vers[i].Gen
	}
	return 0
}

// CompareToVersion orders the vector against a single version: Older if
// the author is absent or ahead of us, Same only if the version matches
// position 0 exactly.
func (vv VersionVector) CompareToVersion(v Version) Order {
	i := vv.findPeerIndex(v.Author)
	switch {
	case i < 0:
		return Older
	case vv.vers[i].Gen < v.Gen:
		return Older
	case vv.vers[i].Gen == v.Gen && i == 0:
		return Same
	default:
		return Newer
	}
}

// CompareTo computes the partial order between two vectors.
func (vv VersionVector) CompareTo(other VersionVector) Order {
	o := Same
	countDiff := len(vv.vers) - len(other.vers)
	if countDiff < 0 {
		o = Older // other must have versions from authors I don't have
	} else if countDiff > 0 {
		o = Newer // I must have versions from authors other doesn't have
	} else if len(vv.vers) > 0 && vv.vers[0] == other.vers[0] {
		return Same // first versions are identical so vectors are equal
	}

	for _, v := range vv.vers {
		otherGen := other.GenOfAuthor(v.Author)
		if v.Gen < otherGen {
			o |= Older
		} else if v.Gen > otherGen {
			o |= Newer
			if otherGen == 0 {
				// other doesn't have this author, which makes its remaining
				// entries more likely to have authors I don't have; when that
				// becomes certainty, set the older flag too:
				countDiff--
				if countDiff < 0 {
					o |= Older
				}
			}
		}
		if o == Conflicting {
			break
		}
	}
	return o
}

// IncrementGen bumps author's generation and moves it to position 0,
// starting at 1 for a new author.
func (vv *VersionVector) IncrementGen(author base.PeerID) {
	gen := uint64(1)
	if i := vv.findPeerIndex(author); i >= 0 {
		gen += vv.vers[i].Gen
		vv.vers = append(vv.vers[:i], vv.vers[i+1:]...)
	}
	vv.vers = append([]Version{{Gen: gen, Author: author}}, vv.vers...)
}

// LimitCount truncates the vector to at most maxCount versions.
func (vv *VersionVector) LimitCount(maxCount int) {
	if len(vv.vers) > maxCount {
		vv.vers = vv.vers[:maxCount]
	}
}

// CompactMyPeerID replaces myID with the local-peer placeholder, so the
// stored form survives renaming of the local peer.
func (vv *VersionVector) CompactMyPeerID(myID base.PeerID) {
	if i := vv.findPeerIndex(myID); i >= 0 {
		vv.vers[i] = Version{Gen: vv.vers[i].Gen, Author: base.MePeerID}
	}
}

// ExpandMyPeerID replaces the local-peer placeholder with myID.
func (vv *VersionVector) ExpandMyPeerID(myID base.PeerID) {
	if i := vv.findPeerIndex(base.MePeerID); i >= 0 {
		vv.vers[i] = Version{Gen: vv.vers[i].Gen, Author: myID}
	}
}

// IsExpanded reports whether no version carries the local-peer
// placeholder.
func (vv VersionVector) IsExpanded() bool {
	return vv.findPeerIndex(base.MePeerID) < 0
}

// MergedWith walks the two vectors in parallel, keeping each version
// whose generation is at least the other side's for the same author. The
// result covers every author from either side at the maximum generation,
// in approximately producer order with the local side first.
func (vv VersionVector) MergedWith(other VersionVector) VersionVector {
	myMap := genMap(vv.vers)
	otherMap := genMap(other.vers)
	var result VersionVector
	mySize, itsSize := len(vv.vers), len(other.vers)
	maxSize := mySize
	if itsSize > maxSize {
		maxSize = itsSize
	}
	for i := 0; i < maxSize; i++ {
		if i < mySize {
			if v := vv.vers[i]; v.Gen >= otherMap[v.Author] {
				result.vers = append(result.vers, v)
			}
		}
		if i < itsSize {
			if v := other.vers[i]; v.Gen > myMap[v.Author] {
				result.vers = append(result.vers, v)
			}
		}
	}
	return result
}

func genMap(vers []Version) map[base.PeerID]uint64 {
	m := make(map[base.PeerID]uint64, len(vers))
	for _, v := range vers {
		m[v.Author] = v.Gen
	}
	return m
}
