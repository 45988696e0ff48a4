// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package store

import (
	"github.com/couchbase/golitecore/base"
)

// Record is a document row as read from a key-value store. Body holds the
// encoded current-revision properties, Extra the encoded revision table.
// Either may be empty. ContentLoaded says which of them were actually
// fetched.
type Record struct {
	Key           string
	Version       []byte
	Sequence      uint64
	Flags         base.DocumentFlags
	Body          []byte
	Extra         []byte
	Exists        bool
	ContentLoaded base.ContentOption
}

// RecordLite is the write-side projection of a Record. Sequence is the
// sequence the writer read the document at (0 for a new document);
// UpdateSequence asks the store to allocate a fresh one.
type RecordLite struct {
	Key            string
	Version        []byte
	Body           []byte
	Extra          []byte
	Sequence       uint64
	UpdateSequence bool
	Flags          base.DocumentFlags
}

// Transaction is passed through to the store untouched; the caller owns
// transaction scoping.
type Transaction interface{}

// KeyStore is the contract the document layer consumes. Get on a missing
// document returns a non-existent Record, not an error. Set returns the
// record's sequence after the write, or 0 when the write loses a conflict
// (the stored sequence no longer matches RecordLite.Sequence).
type KeyStore interface {
	Get(docID string, content base.ContentOption) (Record, error)
	GetBySequence(sequence uint64, content base.ContentOption) (Record, error)
	Set(rec RecordLite, txn Transaction) (uint64, error)
}
