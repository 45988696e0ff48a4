// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package base

import (
	"errors"
)

// Error taxonomy of the document core. These are the only failures callers
// are expected to handle; invariant violations inside the core panic
// instead.
var (
	// ErrorBadRevisionID - a version, version vector or revision ID failed
	// to parse from its binary or ASCII form.
	ErrorBadRevisionID = errors.New("Invalid revision ID")

	// ErrorCorruptRevisionData - a stored record body or extra decoded to a
	// shape that violates the revision-table invariants (non-dict root,
	// missing revID on a non-null slot, ...).
	ErrorCorruptRevisionData = errors.New("Revision data is corrupted")

	// ErrorConflict - the store rejected a write because of a stale
	// sequence, or a record faulted in by sequence no longer exists.
	ErrorConflict = errors.New("Document update conflict")

	// ErrorUnsupportedOperation - the operation needs more of the record
	// than has been loaded.
	ErrorUnsupportedOperation = errors.New("Operation not supported with the loaded document content")

	ErrorInvalidParameter = errors.New("Invalid parameter")

	ErrorNotFound = errors.New("Specified entity is not found")
)
