// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package tracker

import (
	"github.com/couchbase/golitecore/base"
	"github.com/couchbase/golitecore/vv"
)

// entry is a node in the tracker's change list: either a document entry
// (docID non-empty) or a placeholder marking a database observer's read
// position. Entries are referenced by pointer and never copied.
type entry struct {
	docID    string
	sequence uint64

	// document entry fields:
	committedSequence uint64
	revID             vv.RevID
	flags             base.DocumentFlags
	documentObservers []*DocChangeNotifier
	idle              bool
	external          bool

	// placeholder entry field:
	databaseObserver *DatabaseChangeNotifier
}

func newDocEntry(docID string, revID vv.RevID, sequence uint64, flags base.DocumentFlags) *entry {
	if docID == "" {
		panic("document entry with empty docID")
	}
	return &entry{docID: docID, revID: revID, sequence: sequence, flags: flags}
}

func newPlaceholder(observer *DatabaseChangeNotifier) *entry {
	if observer == nil {
		panic("placeholder with no database observer")
	}
	return &entry{databaseObserver: observer}
}

func (e *entry) isPlaceholder() bool {
	return e.docID == ""
}

func (e *entry) isPurge() bool {
	return e.sequence == 0 && !e.isPlaceholder()
}

func (e *entry) isIdle() bool {
	return e.idle && !e.isPlaceholder()
}

// Change is one document mutation as reported to a database observer.
type Change struct {
	DocID    string
	RevID    vv.RevID
	Sequence uint64
	Flags    base.DocumentFlags
}
