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
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/couchbase/golitecore/base"
)

// Order is the partial order on versions and version vectors. Older and
// Newer are independent bits; both set means the operands conflict.
type Order uint32

const (
	Same        Order = 0
	Older       Order = 1
	Newer       Order = 2
	Conflicting Order = Older | Newer
)

func (o Order) String() string {
	switch o {
	case Same:
		return "Same"
	case Older:
		return "Older"
	case Newer:
		return "Newer"
	case Conflicting:
		return "Conflicting"
	}
	return fmt.Sprintf("Order(%d)", uint32(o))
}

// Version is a single (generation, author) pair. A well-formed Version
// has Gen >= 1.
type Version struct {
	Gen    uint64
	Author base.PeerID
}

// CompareGen orders two generations of the same author.
func CompareGen(a, b uint64) Order {
	if a > b {
		return Newer
	} else if a < b {
		return Older
	}
	return Same
}

// VersionFromASCII parses "hex(gen)@hex(author)" with "*" denoting the
// local peer.
func VersionFromASCII(str string) (Version, error) {
	bad := func() (Version, error) {
		return Version{}, errors.Wrapf(base.ErrorBadRevisionID, "invalid version string '%s'", str)
	}
	at := strings.IndexByte(str, '@')
	if at <= 0 {
		return bad()
	}
	gen, err := strconv.ParseUint(str[:at], 16, 64)
	if err != nil || gen == 0 {
		return bad()
	}
	authorStr := str[at+1:]
	var author base.PeerID
	if authorStr == "*" {
		author = base.MePeerID
	} else {
		id, err := strconv.ParseUint(authorStr, 16, 64)
		if err != nil || base.PeerID(id) == base.MePeerID {
			return bad()
		}
		author = base.PeerID(id)
	}
	return Version{Gen: gen, Author: author}, nil
}

// readVersionBinary consumes two uvarints from *data.
func readVersionBinary(data *[]byte) (Version, error) {
	gen, n := binary.Uvarint(*data)
	if n <= 0 {
		return Version{}, errors.Wrap(base.ErrorBadRevisionID, "invalid binary version ID")
	}
	rest := (*data)[n:]
	author, n := binary.Uvarint(rest)
	if n <= 0 {
		return Version{}, errors.Wrap(base.ErrorBadRevisionID, "invalid binary version ID")
	}
	*data = rest[n:]
	v := Version{Gen: gen, Author: base.PeerID(author)}
	if gen == 0 {
		return Version{}, errors.Wrap(base.ErrorBadRevisionID, "version has generation 0")
	}
	return v, nil
}

// appendBinary writes the version as two uvarints, substituting myID for
// the local-peer placeholder.
func (v Version) appendBinary(buf []byte, myID base.PeerID) []byte {
	id := v.Author
	if id == base.MePeerID {
		id = myID
	}
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v.Gen)
	buf = append(buf, scratch[:n]...)
	n = binary.PutUvarint(scratch[:], uint64(id))
	return append(buf, scratch[:n]...)
}

// AsASCII renders the version, substituting myID for the local-peer
// placeholder; pass base.MePeerID to keep the "*" form.
func (v Version) AsASCII(myID base.PeerID) string {
	author := v.Author
	if author == base.MePeerID {
		author = myID
	}
	if author == base.MePeerID {
		return fmt.Sprintf("%x@*", v.Gen)
	}
	return fmt.Sprintf("%x@%x", v.Gen, uint64(author))
}

func (v Version) String() string {
	return v.AsASCII(base.MePeerID)
}

// CompareTo orders this version against a whole vector.
func (v Version) CompareTo(vec VersionVector) Order {
	o := vec.CompareToVersion(v)
	switch o {
	case Older:
		return Newer
	case Newer:
		return Older
	default:
		return o
	}
}
