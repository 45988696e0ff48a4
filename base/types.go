// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package base

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// DocumentFlags describes a revision or a whole document.
type DocumentFlags uint8

const (
	DocFlagNone           DocumentFlags = 0x00
	DocFlagDeleted        DocumentFlags = 0x01
	DocFlagConflicted     DocumentFlags = 0x02
	DocFlagHasAttachments DocumentFlags = 0x04
	// DocFlagSynced is set on a record when its current revision has been
	// pushed to remote #1 without rewriting the record body; the document
	// layer repairs the revision table lazily on the next load.
	DocFlagSynced DocumentFlags = 0x08
)

func (f DocumentFlags) Has(flag DocumentFlags) bool {
	return f&flag != 0
}

func (f DocumentFlags) With(flag DocumentFlags) DocumentFlags {
	return f | flag
}

func (f DocumentFlags) Without(flag DocumentFlags) DocumentFlags {
	return f &^ flag
}

func (f DocumentFlags) String() string {
	if f == DocFlagNone {
		return "-"
	}
	str := ""
	if f.Has(DocFlagDeleted) {
		str += "D"
	}
	if f.Has(DocFlagConflicted) {
		str += "C"
	}
	if f.Has(DocFlagHasAttachments) {
		str += "A"
	}
	if f.Has(DocFlagSynced) {
		str += "S"
	}
	return str
}

// ContentOption says how much of a record has been, or should be, loaded.
// The values are ordered; a larger option strictly includes a smaller one.
type ContentOption int

const (
	MetaOnly ContentOption = iota
	CurrentRevOnly
	EntireBody
)

func (c ContentOption) String() string {
	switch c {
	case MetaOnly:
		return "MetaOnly"
	case CurrentRevOnly:
		return "CurrentRevOnly"
	case EntireBody:
		return "EntireBody"
	}
	return fmt.Sprintf("ContentOption(%d)", int(c))
}

// RemoteID identifies a slot in a document's revision table.
// 0 is the local revision, >= 1 are indexed remote peers.
type RemoteID int

const RemoteLocal RemoteID = 0

// PeerID identifies the author of a Version. MePeerID is the reserved
// value for the local database; it must never appear on disk, an explicit
// peer ID is substituted at serialization time.
type PeerID uint64

const MePeerID PeerID = 0

// NewPeerID returns a random non-zero peer identity for a database
// instance.
func NewPeerID() PeerID {
	for {
		u := uuid.New()
		id := PeerID(binary.BigEndian.Uint64(u[:8]))
		if id != MePeerID {
			return id
		}
	}
}

func (p PeerID) String() string {
	if p == MePeerID {
		return "*"
	}
	return fmt.Sprintf("%x", uint64(p))
}
