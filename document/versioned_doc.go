// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package document

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/couchbase/golitecore/base"
	"github.com/couchbase/golitecore/fleece"
	"github.com/couchbase/golitecore/log"
	"github.com/couchbase/golitecore/store"
	"github.com/couchbase/golitecore/vv"
)

/*
RECORD FORMAT:

A record's `body` column holds the encoded properties dict of the current
(local) revision. The `extra` column holds an encoded array of revision
dicts indexed by remote ID. Slot 0 belongs to the local revision but is
always written as null: the local revision is not copied into `extra`, it
lives only in the body and the record's version and flags. Each
revision dict has keys:
  - "{" : properties dict (optional)
  - "@" : revision ID, binary (required for non-null slots)
  - "&" : flags int (omitted when zero)
It's very common for two or more revisions to be identical, or at least
share most property values, so the extra column is written with a
de-duplicating encoder that stores repeated values once.
*/

// Keys in revision dicts (deliberately short and ineligible for shared
// keys.)
const (
	metaProperties = "{"
	metaRevID      = "@"
	metaFlags      = "&"
)

// SaveResult is the outcome of VersionedDocument.Save.
type SaveResult int

const (
	SaveConflict SaveResult = iota
	SaveNoSave
	SaveNoNewSequence
	SaveNewSequence
)

func (r SaveResult) String() string {
	switch r {
	case SaveConflict:
		return "Conflict"
	case SaveNoSave:
		return "NoSave"
	case SaveNoNewSequence:
		return "NoNewSequence"
	case SaveNewSequence:
		return "NewSequence"
	}
	return fmt.Sprintf("SaveResult(%d)", int(r))
}

// VersionedDocument is the in-memory form of a document record: the
// current revision plus the table of revisions known at remote peers.
// Mutations accumulate in mutable overlays until Save encodes and writes
// a new record, then the document re-seats itself on the freshly encoded
// bytes while keeping caller-held mutable references valid.
//
// A VersionedDocument belongs to a single database connection and is not
// safe for concurrent use.
type VersionedDocument struct {
	store  store.KeyStore
	logger *log.CommonLogger

	docID        string
	sequence     uint64
	revID        vv.RevID
	docFlags     base.DocumentFlags
	exists       bool
	whichContent base.ContentOption

	bodyDoc  *fleece.Doc
	extraDoc *fleece.Doc

	current           Revision
	currentProperties interface{} // retained handle to current.Properties

	revisions        interface{} // fleece.Array or *fleece.MutableArray
	mutatedRevisions *fleece.MutableArray
	changed          bool
	revIDChanged     bool
}

// NewVersionedDocument builds a document over a record previously read
// from ks. A non-existent record yields a new empty document.
func NewVersionedDocument(ks store.KeyStore, rec store.Record, loggerCtx *log.LoggerContext) (*VersionedDocument, error) {
	d := &VersionedDocument{
		store:        ks,
		logger:       log.NewLogger("Document", loggerCtx),
		docID:        rec.Key,
		sequence:     rec.Sequence,
		revID:        vv.RevID(rec.Version),
		docFlags:     rec.Flags,
		exists:       rec.Exists,
		whichContent: rec.ContentLoaded,
	}
	d.current.RevID = d.revID
	d.current.Flags = rec.Flags.Without(base.DocFlagConflicted).Without(base.DocFlagSynced)
	if rec.Exists {
		if err := d.readRecordBody(rec.Body); err != nil {
			return nil, err
		}
		if err := d.readRecordExtra(rec.Extra); err != nil {
			return nil, err
		}
	} else {
		// "Untitled" empty state: create an empty local properties dict.
		d.whichContent = base.EntireBody
		if _, err := d.MutableProperties(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewVersionedDocumentByID looks up docID in ks and builds a document
// over the result.
func NewVersionedDocumentByID(ks store.KeyStore, docID string, content base.ContentOption, loggerCtx *log.LoggerContext) (*VersionedDocument, error) {
	rec, err := ks.Get(docID, content)
	if err != nil {
		return nil, err
	}
	return NewVersionedDocument(ks, rec, loggerCtx)
}

func (d *VersionedDocument) DocID() string {
	return d.docID
}

func (d *VersionedDocument) Sequence() uint64 {
	return d.sequence
}

func (d *VersionedDocument) RevID() vv.RevID {
	return d.revID
}

func (d *VersionedDocument) Flags() base.DocumentFlags {
	return d.docFlags
}

func (d *VersionedDocument) Exists() bool {
	return d.exists
}

func (d *VersionedDocument) ContentAvailable() base.ContentOption {
	return d.whichContent
}

func (d *VersionedDocument) readRecordBody(body []byte) error {
	if len(body) > 0 {
		doc, err := fleece.NewDoc(body)
		if err != nil {
			return err
		}
		doc.SetOwner(d)
		dict := doc.AsDict()
		if !dict.Exists() {
			return errors.Wrapf(base.ErrorCorruptRevisionData, "record body of '%s' is not a dict", d.docID)
		}
		d.bodyDoc = doc
		d.current.Properties = dict
	} else {
		d.bodyDoc = nil
		if d.whichContent != base.MetaOnly {
			d.current.Properties = fleece.EmptyDict()
		} else {
			d.current.Properties = nil
		}
	}
	d.currentProperties = d.current.Properties
	return nil
}

func (d *VersionedDocument) readRecordExtra(extra []byte) error {
	if len(extra) > 0 {
		doc, err := fleece.NewDoc(extra)
		if err != nil {
			return err
		}
		arr := doc.AsArray()
		if !arr.Exists() {
			return errors.Wrapf(base.ErrorCorruptRevisionData, "record extra of '%s' is not an array", d.docID)
		}
		d.extraDoc = doc
		d.revisions = arr
	} else {
		d.extraDoc = nil
		d.revisions = nil
	}
	d.mutatedRevisions = nil

	// The Synced flag is set when the current revision has been pushed to
	// remote #1, instead of rewriting the record body at push time. Detect
	// it here and belatedly update remote #1's slot.
	if d.docFlags.Has(base.DocFlagSynced) {
		cur := d.CurrentRevision()
		if err := d.SetRemoteRevision(base.RemoteID(1), &cur); err != nil {
			return err
		}
		d.docFlags = d.docFlags.Without(base.DocFlagSynced)
		d.changed = false
	}
	return nil
}

// LoadData faults in more of the record by sequence number. Returns false
// if the record no longer exists at this document's sequence.
func (d *VersionedDocument) LoadData(which base.ContentOption) (bool, error) {
	if !d.exists {
		return false, nil
	}
	if which <= d.whichContent {
		return true, nil
	}
	rec, err := d.store.GetBySequence(d.sequence, which)
	if err != nil {
		return false, err
	}
	if !rec.Exists {
		return false, nil
	}
	d.logger.Debugf("loading more data (%v) of '%v'", which, d.docID)
	oldWhich := d.whichContent
	d.whichContent = which
	if which >= base.CurrentRevOnly && oldWhich < base.CurrentRevOnly {
		if err = d.readRecordBody(rec.Body); err != nil {
			return false, err
		}
	}
	if which == base.EntireBody && oldWhich < base.EntireBody {
		if err = d.readRecordExtra(rec.Extra); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (d *VersionedDocument) requireBody() error {
	if d.whichContent < base.CurrentRevOnly {
		return errors.Wrap(base.ErrorUnsupportedOperation, "document's body is not loaded")
	}
	return nil
}

func (d *VersionedDocument) requireRemotes() error {
	if d.whichContent < base.EntireBody {
		return errors.Wrap(base.ErrorUnsupportedOperation, "document's other revisions are not loaded")
	}
	return nil
}

func (d *VersionedDocument) mustLoadRemotes() error {
	if !d.exists {
		return nil
	}
	ok, err := d.LoadData(base.EntireBody)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(base.ErrorConflict, "document is outdated, revisions can't be loaded")
	}
	return nil
}

// revisionValue returns the raw value of revision slot i, or nil.
func (d *VersionedDocument) revisionValue(i int) interface{} {
	return fleece.ArrayGet(d.revisions, i)
}

func (d *VersionedDocument) revisionCount() int {
	return fleece.ArrayCount(d.revisions)
}

// CurrentRevision returns the local revision.
func (d *VersionedDocument) CurrentRevision() Revision {
	return d.current
}

// RemoteRevision returns the revision stored for a remote, nil if the
// slot is empty. Requires the full record to be loaded for remotes.
func (d *VersionedDocument) RemoteRevision(remote base.RemoteID) (*Revision, error) {
	if remote == base.RemoteLocal {
		cur := d.CurrentRevision()
		return &cur, nil
	}
	if err := d.requireRemotes(); err != nil {
		return nil, err
	}
	slot := d.revisionValue(int(remote))
	if !fleece.IsDict(slot) {
		return nil, nil
	}
	revID := vv.RevID(fleece.AsDataBytes(fleece.DictGet(slot, metaRevID)))
	if len(revID) == 0 {
		return nil, errors.Wrapf(base.ErrorCorruptRevisionData, "remote %d of '%s' has no revID", int(remote), d.docID)
	}
	props := fleece.DictGet(slot, metaProperties)
	if !fleece.IsDict(props) {
		props = fleece.EmptyDict()
	}
	return &Revision{
		Properties: props,
		RevID:      revID,
		Flags:      base.DocumentFlags(fleece.AsInt(fleece.DictGet(slot, metaFlags))),
	}, nil
}

// LoadRemoteRevision is RemoteRevision with on-demand faulting.
func (d *VersionedDocument) LoadRemoteRevision(remote base.RemoteID) (*Revision, error) {
	if remote != base.RemoteLocal {
		if err := d.mustLoadRemotes(); err != nil {
			return nil, err
		}
	}
	return d.RemoteRevision(remote)
}

// NextRemoteID scans forward for the next occupied revision slot. The
// returned ID equals the revision count when there is none.
func (d *VersionedDocument) NextRemoteID(remote base.RemoteID) base.RemoteID {
	i := int(remote)
	n := d.revisionCount()
	for i++; i < n; i++ {
		if fleece.IsDict(d.revisionValue(i)) {
			break
		}
	}
	return base.RemoteID(i)
}

// LoadNextRemoteID is NextRemoteID with on-demand faulting.
func (d *VersionedDocument) LoadNextRemoteID(remote base.RemoteID) (base.RemoteID, error) {
	if err := d.mustLoadRemotes(); err != nil {
		return 0, err
	}
	return d.NextRemoteID(remote), nil
}

// mutateRevisions makes the revisions array mutable if it isn't yet.
func (d *VersionedDocument) mutateRevisions() error {
	if err := d.requireRemotes(); err != nil {
		return err
	}
	if d.mutatedRevisions == nil {
		if arr, ok := d.revisions.(fleece.Array); ok && arr.Exists() {
			d.mutatedRevisions = fleece.MutableArrayFrom(arr)
		} else {
			d.mutatedRevisions = fleece.NewMutableArray()
		}
		d.revisions = d.mutatedRevisions
	}
	return nil
}

// mutableRevisionDict returns the mutable dict for a remote slot,
// growing the array and creating the dict as needed.
func (d *VersionedDocument) mutableRevisionDict(remote base.RemoteID) (*fleece.MutableDict, error) {
	if remote <= base.RemoteLocal {
		panic("mutableRevisionDict on the local revision")
	}
	if err := d.mutateRevisions(); err != nil {
		return nil, err
	}
	if d.mutatedRevisions.Count() <= int(remote) {
		d.mutatedRevisions.Resize(int(remote) + 1)
	}
	revDict := d.mutatedRevisions.GetMutableDict(int(remote))
	if revDict == nil {
		revDict = fleece.NewMutableDict()
		d.mutatedRevisions.Set(int(remote), revDict)
	}
	return revDict, nil
}

// SetRemoteRevision updates or clears a remote revision slot. Local
// updates (SetRevID, SetFlags, SetProperties) go through this too when
// remote is RemoteLocal.
func (d *VersionedDocument) SetRemoteRevision(remote base.RemoteID, optRev *Revision) error {
	if remote == base.RemoteLocal {
		if optRev == nil {
			panic("cannot remove the local revision")
		}
		return d.SetCurrentRevision(*optRev)
	}

	if err := d.mustLoadRemotes(); err != nil {
		return err
	}
	changedFlags := false
	if optRev != nil {
		// Creating or updating a revision:
		revDict, err := d.mutableRevisionDict(remote)
		if err != nil {
			return err
		}
		if oldRevID := fleece.AsDataBytes(revDict.Get(metaRevID)); !bytes.Equal(optRev.RevID, oldRevID) {
			if len(optRev.RevID) == 0 {
				return errors.Wrapf(base.ErrorCorruptRevisionData, "remote %d of '%s' given no revID", int(remote), d.docID)
			}
			revDict.Set(metaRevID, []byte(optRev.RevID))
			d.changed = true
		}
		if !fleece.Same(optRev.Properties, revDict.Get(metaProperties)) {
			if optRev.Properties != nil {
				revDict.Set(metaProperties, optRev.Properties)
			} else {
				revDict.Remove(metaProperties)
			}
			d.changed = true
		}
		if int64(optRev.Flags) != fleece.AsInt(revDict.Get(metaFlags)) {
			if optRev.Flags != base.DocFlagNone {
				revDict.Set(metaFlags, int64(optRev.Flags))
			} else {
				revDict.Remove(metaFlags)
			}
			d.changed = true
			changedFlags = true
		}
	} else if fleece.IsDict(d.revisionValue(int(remote))) {
		// Removing a remote revision: replace its dict with null, then trim
		// trailing nulls from the array.
		if err := d.mutateRevisions(); err != nil {
			return err
		}
		d.mutatedRevisions.Set(int(remote), nil)
		n := d.mutatedRevisions.Count()
		for n > 0 && !fleece.IsDict(d.mutatedRevisions.Get(n-1)) {
			n--
		}
		d.mutatedRevisions.Resize(n)
		d.changed = true
		changedFlags = true
	}

	if changedFlags {
		d.updateDocFlags()
	}
	return nil
}

// updateDocFlags recomputes the document flags from the local flags plus
// the Conflicted/HasAttachments flags of every remote. It never sets
// Synced.
func (d *VersionedDocument) updateDocFlags() {
	newFlags := d.docFlags.Without(base.DocFlagConflicted).Without(base.DocFlagHasAttachments)
	newFlags |= d.current.Flags
	for i, n := 0, d.revisionCount(); i < n; i++ {
		slot := d.revisionValue(i)
		if !fleece.IsDict(slot) {
			continue
		}
		flags := base.DocumentFlags(fleece.AsInt(fleece.DictGet(slot, metaFlags)))
		if flags.Has(base.DocFlagConflicted) {
			newFlags = newFlags.With(base.DocFlagConflicted)
		}
		if flags.Has(base.DocFlagHasAttachments) {
			newFlags = newFlags.With(base.DocFlagHasAttachments)
		}
	}
	d.docFlags = newFlags
}

// OriginalProperties returns the properties as stored, without overlays.
func (d *VersionedDocument) OriginalProperties() (fleece.Dict, error) {
	if err := d.requireBody(); err != nil {
		return fleece.Dict{}, err
	}
	return d.bodyDoc.AsDict(), nil
}

// CurrentRevisionData returns the encoded body bytes.
func (d *VersionedDocument) CurrentRevisionData() ([]byte, error) {
	if err := d.requireBody(); err != nil {
		return nil, err
	}
	if d.bodyDoc == nil {
		return nil, nil
	}
	return d.bodyDoc.Data(), nil
}

// Properties returns the current revision's properties, which may be a
// mutable overlay.
func (d *VersionedDocument) Properties() interface{} {
	return d.current.Properties
}

// MutableProperties returns the current properties as a mutable dict,
// promoting them in place on first call.
func (d *VersionedDocument) MutableProperties() (*fleece.MutableDict, error) {
	if err := d.requireBody(); err != nil {
		return nil, err
	}
	if md, ok := d.current.Properties.(*fleece.MutableDict); ok {
		return md, nil
	}
	var md *fleece.MutableDict
	if dict, ok := d.current.Properties.(fleece.Dict); ok && dict.Exists() {
		md = fleece.MutableDictFrom(dict)
	} else {
		md = fleece.NewMutableDict()
	}
	d.current.Properties = md
	d.currentProperties = md
	return md, nil
}

func (d *VersionedDocument) SetProperties(newProperties interface{}) error {
	if err := d.requireBody(); err != nil {
		return err
	}
	if !fleece.Same(newProperties, d.current.Properties) {
		d.currentProperties = newProperties
		d.current.Properties = newProperties
		d.changed = true
	}
	return nil
}

func (d *VersionedDocument) SetRevID(newRevID vv.RevID) error {
	if err := d.requireBody(); err != nil {
		return err
	}
	if len(newRevID) == 0 {
		return errors.Wrap(base.ErrorInvalidParameter, "empty revID")
	}
	if !bytes.Equal(newRevID, d.current.RevID) {
		d.revID = append(vv.RevID(nil), newRevID...)
		d.current.RevID = d.revID
		d.changed = true
		d.revIDChanged = true
	}
	return nil
}

func (d *VersionedDocument) SetFlags(newFlags base.DocumentFlags) error {
	if err := d.requireBody(); err != nil {
		return err
	}
	if newFlags != d.current.Flags {
		d.current.Flags = newFlags
		d.changed = true
		d.updateDocFlags()
	}
	return nil
}

func (d *VersionedDocument) SetCurrentRevision(rev Revision) error {
	if err := d.SetRevID(rev.RevID); err != nil {
		return err
	}
	if err := d.SetProperties(rev.Properties); err != nil {
		return err
	}
	return d.SetFlags(rev.Flags)
}

// Changed reports whether there is anything to save: an explicit change,
// or a dirty mutable overlay somewhere in the current properties.
func (d *VersionedDocument) Changed() bool {
	return d.changed || d.PropertiesChanged()
}

// PropertiesChanged deep-scans the current properties for dirty mutable
// containers. Immutable subtrees cannot hold mutables and are skipped.
func (d *VersionedDocument) PropertiesChanged() bool {
	it := fleece.NewDeepIterator(d.current.Properties)
	for it.Next() {
		switch v := it.Value().(type) {
		case *fleece.MutableDict:
			if v.IsChanged() {
				return true
			}
		case *fleece.MutableArray:
			if v.IsChanged() {
				return true
			}
		default:
			it.SkipChildren()
		}
	}
	return false
}

func (d *VersionedDocument) clearPropertiesChanged() {
	it := fleece.NewDeepIterator(d.current.Properties)
	for it.Next() {
		switch v := it.Value().(type) {
		case *fleece.MutableDict:
			v.SetChanged(false)
		case *fleece.MutableArray:
			v.SetChanged(false)
		default:
			it.SkipChildren()
		}
	}
}

// Save encodes and persists the document if it has changed. A new revID
// is generated when the properties changed but the caller did not supply
// one. On success the in-memory view re-seats onto the freshly encoded
// bytes, keeping caller-held mutable references valid.
func (d *VersionedDocument) Save(txn store.Transaction) (SaveResult, error) {
	if err := d.requireRemotes(); err != nil {
		return SaveConflict, err
	}
	revID := d.current.RevID
	newRevision := len(revID) == 0 || d.PropertiesChanged()
	if !newRevision && !d.changed {
		return SaveNoSave, nil
	}

	// If the revID hasn't been changed but the local properties have,
	// generate a new revID:
	if newRevision && !d.revIDChanged {
		generated := GenerateRevID(d.current.Properties, revID, d.current.Flags)
		if err := d.SetRevID(generated); err != nil {
			return SaveConflict, err
		}
		revID = generated
		d.logger.Debugf("generated revID '%v' for '%v'", generated, d.docID)
	}

	body, extra, err := d.encodeBody()
	if err != nil {
		return SaveConflict, err
	}

	updateSequence := d.sequence == 0 || d.revIDChanged
	if len(revID) == 0 {
		panic("saving a document with no revID")
	}
	rec := store.RecordLite{
		Key:            d.docID,
		Version:        revID,
		Body:           body,
		Extra:          extra,
		Sequence:       d.sequence,
		UpdateSequence: updateSequence,
		Flags:          d.docFlags,
	}
	seq, err := d.store.Set(rec, txn)
	if err != nil {
		return SaveConflict, err
	}
	if seq == 0 {
		return SaveConflict, nil
	}

	d.sequence = seq
	d.exists = true
	d.changed = false
	d.revIDChanged = false

	// Re-seat the in-memory view on the newly saved data:
	mutableProps, _ := d.current.Properties.(*fleece.MutableDict)
	if err = d.readRecordBody(body); err != nil {
		return SaveConflict, err
	}
	if err = d.readRecordExtra(extra); err != nil {
		return SaveConflict, err
	}
	if mutableProps != nil {
		// The caller might still hold references to mutable objects under
		// the properties, so keep the mutable dict as the current
		// properties:
		d.current.Properties = mutableProps
		d.currentProperties = mutableProps
		d.clearPropertiesChanged()
	}

	if updateSequence {
		return SaveNewSequence, nil
	}
	return SaveNoNewSequence, nil
}

// encodeBody encodes the current properties and the revision table.
func (d *VersionedDocument) encodeBody() (body, extra []byte, err error) {
	enc := fleece.NewEncoder()

	if fleece.DictCount(d.current.Properties) > 0 {
		if err = enc.WriteValue(d.current.Properties); err != nil {
			return nil, nil, err
		}
		if body, err = enc.Finish(); err != nil {
			return nil, nil, err
		}
	}

	nRevs := d.revisionCount()
	if nRevs > 0 {
		enc.Reset()
		if nRevs == 1 {
			if err = enc.WriteValue(d.revisions); err != nil {
				return nil, nil, err
			}
		} else {
			// With multiple revisions, de-duplicate as much as possible:
			// whole revision dicts, and top-level property values in each.
			// Revision dicts won't be identity-equal once revisions have
			// been edited, so compare them by revID.
			enc.BeginArray()
			ddenc := fleece.NewDeDuplicateEncoder(enc)
			for i := 0; i < nRevs; i++ {
				rev := d.revisionValue(i)
				if fleece.IsDict(rev) {
					revID := fleece.AsDataBytes(fleece.DictGet(rev, metaRevID))
					for j := 0; j < i; j++ {
						revj := d.revisionValue(j)
						if fleece.Same(revj, rev) ||
							(fleece.IsDict(revj) && bytes.Equal(fleece.AsDataBytes(fleece.DictGet(revj, metaRevID)), revID)) {
							if !fleece.Equals(revj, rev) {
								panic("revIDs match but revisions don't")
							}
							rev = revj
							break
						}
					}
				}
				// De-duplicate the revision dict itself, and the properties
				// dict in it (depth 2):
				if err = ddenc.WriteValue(rev, 2); err != nil {
					return nil, nil, err
				}
			}
			enc.EndArray()
		}
		if extra, err = enc.Finish(); err != nil {
			return nil, nil, err
		}
	}
	return body, extra, nil
}

// GenerateRevID derives a deterministic tree revID for a new revision:
// the SHA-1 of the length-prefixed parent revID, a deletion byte, and the
// canonical JSON of the body, at the parent's generation plus one.
func GenerateRevID(body interface{}, parentRevID vv.RevID, flags base.DocumentFlags) vv.RevID {
	json := fleece.CanonicalJSON(body)
	if len(parentRevID) > 255 {
		parentRevID = parentRevID[:255]
	}
	delByte := byte(0)
	if flags.Has(base.DocFlagDeleted) {
		delByte = 1
	}
	h := sha1.New()
	h.Write([]byte{byte(len(parentRevID))})
	h.Write(parentRevID)
	h.Write([]byte{delByte})
	h.Write(json)
	digest := h.Sum(nil)
	generation := uint64(1)
	if len(parentRevID) > 0 {
		generation = parentRevID.Generation() + 1
	}
	return vv.NewTreeRevID(generation, digest)
}

// Containing resolves a live value (possibly a mutable overlay) to the
// document whose record body it was parsed from, or nil.
func Containing(value interface{}) *VersionedDocument {
	doc, _ := fleece.OwnerOf(value).(*VersionedDocument)
	return doc
}

// ForAllRevIDs enumerates every revision ID in a raw record, without
// constructing a document.
func ForAllRevIDs(rec store.RecordLite, callback func(revID vv.RevID, remote base.RemoteID)) error {
	callback(vv.RevID(rec.Version), base.RemoteLocal)
	if len(rec.Extra) == 0 {
		return nil
	}
	doc, err := fleece.NewDoc(rec.Extra)
	if err != nil {
		return err
	}
	remotes := doc.AsArray()
	remotes.Each(func(n int, slot fleece.Value) bool {
		if n > 0 {
			if revID := slot.AsDict().Get(metaRevID).AsData(); len(revID) > 0 {
				callback(vv.RevID(revID), base.RemoteID(n))
			}
		}
		return true
	})
	return nil
}

// Dump renders the revision table for debugging.
func (d *VersionedDocument) Dump() string {
	var out strings.Builder
	fmt.Fprintf(&out, "%q #%d ", d.docID, d.sequence)
	nRevs := d.revisionCount()
	if nRevs == 0 {
		nRevs = 1
	}
	for i := 0; i < nRevs; i++ {
		rev, err := d.RemoteRevision(base.RemoteID(i))
		if err != nil || rev == nil {
			continue
		}
		if i > 0 {
			fmt.Fprintf(&out, "; R%d@", i)
		}
		if len(rev.RevID) > 0 {
			out.WriteString(rev.RevID.ASCII())
		} else {
			out.WriteString("--")
		}
		if rev.Flags != base.DocFlagNone {
			fmt.Fprintf(&out, "(%v)", rev.Flags)
		}
	}
	return out.String()
}
