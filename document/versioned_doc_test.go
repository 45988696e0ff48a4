// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package document

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchbase/golitecore/base"
	"github.com/couchbase/golitecore/fleece"
	"github.com/couchbase/golitecore/log"
	"github.com/couchbase/golitecore/store"
	"github.com/couchbase/golitecore/vv"
)

var testLoggerCtx = &log.LoggerContext{Log_file: testLogSink{}, Log_level: log.LogLevelError}

type testLogSink struct{}

func (testLogSink) Write(p []byte) (int, error) { return len(p), nil }

func newTestDoc(t *testing.T, ks *store.MemKeyStore, docID string) *VersionedDocument {
	d, err := NewVersionedDocumentByID(ks, docID, base.EntireBody, testLoggerCtx)
	assert.Nil(t, err)
	return d
}

func expectedRevID(gen uint64, parent vv.RevID, deleted bool, props interface{}) vv.RevID {
	delByte := byte(0)
	if deleted {
		delByte = 1
	}
	h := sha1.New()
	h.Write([]byte{byte(len(parent))})
	h.Write(parent)
	h.Write([]byte{delByte})
	h.Write(fleece.CanonicalJSON(props))
	return vv.NewTreeRevID(gen, h.Sum(nil))
}

func Test_NewDocumentSaveGeneratesRevID(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	a.False(d.Exists())
	a.False(d.Changed())

	props, err := d.MutableProperties()
	a.Nil(err)
	props.Set("greeting", "hello")
	a.True(d.Changed())

	res, err := d.Save(nil)
	a.Nil(err)
	a.Equal(SaveNewSequence, res)
	a.True(d.Exists())
	a.Equal(uint64(1), d.Sequence())
	a.False(d.Changed())

	a.Equal(uint64(1), d.RevID().Generation())
	a.Equal(expectedRevID(1, nil, false, d.Properties()), d.RevID())

	// nothing to save now
	res, err = d.Save(nil)
	a.Nil(err)
	a.Equal(SaveNoSave, res)
}

func Test_SaveExistingIncrementsGeneration(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("greeting", "hello")
	_, err := d.Save(nil)
	a.Nil(err)
	parent := d.RevID()

	d2 := newTestDoc(t, ks, "doc1")
	a.True(d2.Exists())
	a.Equal(parent, d2.RevID())
	a.Equal("hello", fleece.AsString(fleece.DictGet(d2.Properties(), "greeting")))

	props2, err := d2.MutableProperties()
	a.Nil(err)
	props2.Set("greeting", "goodbye")
	a.True(d2.PropertiesChanged())

	res, err := d2.Save(nil)
	a.Nil(err)
	a.Equal(SaveNewSequence, res)
	a.Equal(uint64(2), d2.Sequence())
	a.Equal(parent.Generation()+1, d2.RevID().Generation())
	a.Equal(expectedRevID(2, parent, false, d2.Properties()), d2.RevID())
}

func Test_ExplicitRevIDIsKept(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	vec, err := vv.VersionVectorFromASCII("1@*")
	a.Nil(err)
	myRev := vv.RevID(vec.AsBinary(base.MePeerID))
	a.Nil(d.SetRevID(myRev))

	res, err := d.Save(nil)
	a.Nil(err)
	a.Equal(SaveNewSequence, res)
	a.Equal(myRev, d.RevID())
	a.True(d.RevID().IsVersionVector())

	a.ErrorIs(d.SetRevID(nil), base.ErrorInvalidParameter)
}

func Test_RemoteRevisions(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	_, err := d.Save(nil)
	a.Nil(err)

	cur := d.CurrentRevision()
	a.Nil(d.SetRemoteRevision(1, &Revision{Properties: cur.Properties, RevID: cur.RevID}))

	otherRev := vv.NewTreeRevID(1, []byte{0xaa, 0xbb})
	a.Nil(d.SetRemoteRevision(2, &Revision{RevID: otherRev, Flags: base.DocFlagConflicted}))
	a.True(d.Flags().Has(base.DocFlagConflicted))

	res, err := d.Save(nil)
	a.Nil(err)
	// remote table changes alone don't make a new revision
	a.Equal(SaveNoNewSequence, res)

	d2 := newTestDoc(t, ks, "doc1")
	a.True(d2.Flags().Has(base.DocFlagConflicted))
	a.Equal(base.RemoteID(1), d2.NextRemoteID(base.RemoteLocal))
	a.Equal(base.RemoteID(2), d2.NextRemoteID(1))

	r1, err := d2.RemoteRevision(1)
	a.Nil(err)
	a.NotNil(r1)
	a.Equal(cur.RevID, r1.RevID)
	a.Equal(int64(1), fleece.AsInt(fleece.DictGet(r1.Properties, "n")))

	r2, err := d2.RemoteRevision(2)
	a.Nil(err)
	a.NotNil(r2)
	a.Equal(otherRev, r2.RevID)
	a.True(r2.IsConflicted())

	// removing the conflicting remote trims the table and the doc flag
	a.Nil(d2.SetRemoteRevision(2, nil))
	a.False(d2.Flags().Has(base.DocFlagConflicted))
	gone, err := d2.RemoteRevision(2)
	a.Nil(err)
	a.Nil(gone)
	_, err = d2.Save(nil)
	a.Nil(err)

	d3 := newTestDoc(t, ks, "doc1")
	a.False(d3.Flags().Has(base.DocFlagConflicted))
	r2, err = d3.RemoteRevision(2)
	a.Nil(err)
	a.Nil(r2)
}

func Test_SyncedFlagRepair(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	_, err := d.Save(nil)
	a.Nil(err)

	// a replication push marks the record Synced without rewriting it
	rec, err := ks.Get("doc1", base.EntireBody)
	a.Nil(err)
	_, err = ks.Set(store.RecordLite{
		Key:      rec.Key,
		Version:  rec.Version,
		Body:     rec.Body,
		Extra:    rec.Extra,
		Sequence: rec.Sequence,
		Flags:    rec.Flags.With(base.DocFlagSynced),
	}, nil)
	a.Nil(err)

	d2 := newTestDoc(t, ks, "doc1")
	a.False(d2.Flags().Has(base.DocFlagSynced))
	a.False(d2.Changed())
	r1, err := d2.RemoteRevision(1)
	a.Nil(err)
	a.NotNil(r1)
	a.Equal(d2.RevID(), r1.RevID)
}

func Test_FaultingAndContentOptions(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	_, err := d.Save(nil)
	a.Nil(err)
	cur := d.CurrentRevision()
	a.Nil(d.SetRemoteRevision(1, &Revision{Properties: cur.Properties, RevID: cur.RevID}))
	_, err = d.Save(nil)
	a.Nil(err)

	meta, err := NewVersionedDocumentByID(ks, "doc1", base.MetaOnly, testLoggerCtx)
	a.Nil(err)
	a.Equal(base.MetaOnly, meta.ContentAvailable())
	a.Nil(meta.Properties())
	_, err = meta.MutableProperties()
	a.ErrorIs(err, base.ErrorUnsupportedOperation)
	_, err = meta.RemoteRevision(1)
	a.ErrorIs(err, base.ErrorUnsupportedOperation)

	// faulting in by sequence upgrades the loaded content
	r1, err := meta.LoadRemoteRevision(1)
	a.Nil(err)
	a.NotNil(r1)
	a.Equal(base.EntireBody, meta.ContentAvailable())
	a.Equal(cur.RevID, r1.RevID)

	// a document outdated by a concurrent writer can't fault in anymore
	stale, err := NewVersionedDocumentByID(ks, "doc1", base.MetaOnly, testLoggerCtx)
	a.Nil(err)
	writer := newTestDoc(t, ks, "doc1")
	wprops, _ := writer.MutableProperties()
	wprops.Set("n", int64(2))
	res, err := writer.Save(nil)
	a.Nil(err)
	a.Equal(SaveNewSequence, res)

	_, err = stale.LoadRemoteRevision(1)
	a.ErrorIs(err, base.ErrorConflict)
}

func Test_SaveConflict(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	_, err := d.Save(nil)
	a.Nil(err)

	d1 := newTestDoc(t, ks, "doc1")
	d2 := newTestDoc(t, ks, "doc1")

	p1, _ := d1.MutableProperties()
	p1.Set("n", int64(2))
	res, err := d1.Save(nil)
	a.Nil(err)
	a.Equal(SaveNewSequence, res)

	p2, _ := d2.MutableProperties()
	p2.Set("n", int64(3))
	res, err = d2.Save(nil)
	a.Nil(err)
	a.Equal(SaveConflict, res)
}

func Test_OverlayPreservedAcrossSave(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	sub := fleece.NewMutableDict()
	sub.Set("x", int64(1))
	props.Set("sub", sub)
	_, err := d.Save(nil)
	a.Nil(err)

	// the handle obtained before the save still reads and writes the doc
	a.False(d.Changed())
	a.Equal(int64(1), fleece.AsInt(fleece.DictGet(props.Get("sub"), "x")))
	sub.Set("x", int64(2))
	a.True(d.Changed())

	res, err := d.Save(nil)
	a.Nil(err)
	a.Equal(SaveNewSequence, res)
	a.Equal(uint64(2), d.RevID().Generation())

	d2 := newTestDoc(t, ks, "doc1")
	a.Equal(int64(2), fleece.AsInt(fleece.DictGet(fleece.DictGet(d2.Properties(), "sub"), "x")))
}

func Test_Containing(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	sub := fleece.NewMutableDict()
	sub.Set("x", int64(1))
	props.Set("sub", sub)
	_, err := d.Save(nil)
	a.Nil(err)

	d2 := newTestDoc(t, ks, "doc1")
	orig, err := d2.OriginalProperties()
	a.Nil(err)
	a.Equal(d2, Containing(orig))
	a.Equal(d2, Containing(orig.Get("sub")))

	md, err := d2.MutableProperties()
	a.Nil(err)
	a.Equal(d2, Containing(md))
	a.Equal(d2, Containing(md.GetMutableDict("sub")))

	// a heap-only dict belongs to no document
	a.Nil(Containing(fleece.NewMutableDict()))
}

func Test_ForAllRevIDs(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	_, err := d.Save(nil)
	a.Nil(err)
	cur := d.CurrentRevision()
	otherRev := vv.NewTreeRevID(4, []byte{0x01, 0x02})
	a.Nil(d.SetRemoteRevision(1, &Revision{Properties: cur.Properties, RevID: cur.RevID}))
	a.Nil(d.SetRemoteRevision(3, &Revision{RevID: otherRev}))
	_, err = d.Save(nil)
	a.Nil(err)

	rec, err := ks.Get("doc1", base.EntireBody)
	a.Nil(err)
	found := map[base.RemoteID]vv.RevID{}
	err = ForAllRevIDs(store.RecordLite{Key: rec.Key, Version: rec.Version, Extra: rec.Extra}, func(revID vv.RevID, remote base.RemoteID) {
		found[remote] = revID
	})
	a.Nil(err)
	a.Equal(vv.RevID(rec.Version), found[base.RemoteLocal])
	a.Equal(cur.RevID, found[1])
	a.Equal(otherRev, found[3])
	a.Equal(3, len(found))
}

func Test_GenerateRevIDDeterminism(t *testing.T) {
	a := assert.New(t)

	md := fleece.NewMutableDict()
	md.Set("b", int64(2))
	md.Set("a", "x")

	enc := fleece.NewEncoder()
	a.Nil(enc.WriteValue(md))
	data, err := enc.Finish()
	a.Nil(err)
	doc, err := fleece.NewDoc(data)
	a.Nil(err)

	parent := vv.NewTreeRevID(3, []byte{0xde, 0xad})
	r1 := GenerateRevID(md, parent, base.DocFlagNone)
	r2 := GenerateRevID(doc.AsDict(), parent, base.DocFlagNone)
	a.Equal(r1, r2)
	a.Equal(uint64(4), r1.Generation())

	// deletion is part of the digest
	r3 := GenerateRevID(md, parent, base.DocFlagDeleted)
	a.NotEqual(r1, r3)
	a.Equal(r1.Generation(), r3.Generation())

	// no parent starts at generation 1
	a.Equal(uint64(1), GenerateRevID(md, nil, base.DocFlagNone).Generation())
}

func Test_DeletedRevision(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	_, err := d.Save(nil)
	a.Nil(err)

	a.Nil(d.SetFlags(base.DocFlagDeleted))
	a.True(d.Flags().Has(base.DocFlagDeleted))
	a.Nil(d.SetProperties(fleece.EmptyDict()))
	res, err := d.Save(nil)
	a.Nil(err)
	a.Equal(SaveNoNewSequence, res)

	d2 := newTestDoc(t, ks, "doc1")
	a.True(d2.CurrentRevision().IsDeleted())
}

func Test_Dump(t *testing.T) {
	a := assert.New(t)
	ks := store.NewMemKeyStore(testLoggerCtx)

	d := newTestDoc(t, ks, "doc1")
	props, _ := d.MutableProperties()
	props.Set("n", int64(1))
	_, err := d.Save(nil)
	a.Nil(err)

	out := d.Dump()
	a.Contains(out, `"doc1" #1`)
	a.Contains(out, d.RevID().ASCII())
}
