// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package document

import (
	"github.com/couchbase/golitecore/base"
	"github.com/couchbase/golitecore/vv"
)

// Revision is one revision of a document: its properties (a dict of
// either fleece kind), its revision ID, and its flags. Identity is the
// revision ID.
type Revision struct {
	Properties interface{}
	RevID      vv.RevID
	Flags      base.DocumentFlags
}

// Version returns the current version of the revision's version vector.
func (r Revision) Version() (vv.Version, error) {
	return r.RevID.AsVersion()
}

// VersionVector decodes the revision's full version vector.
func (r Revision) VersionVector() (vv.VersionVector, error) {
	return r.RevID.AsVersionVector()
}

func (r Revision) IsDeleted() bool {
	return r.Flags.Has(base.DocFlagDeleted)
}

func (r Revision) IsConflicted() bool {
	return r.Flags.Has(base.DocFlagConflicted)
}

func (r Revision) HasAttachments() bool {
	return r.Flags.Has(base.DocFlagHasAttachments)
}
