// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package store

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/couchbase/golitecore/base"
	"github.com/couchbase/golitecore/log"
)

// MemKeyStore is an in-memory KeyStore. Record bodies are kept
// snappy-compressed at rest. It allocates sequences monotonically and
// detects write conflicts by comparing the caller's sequence against the
// stored one.
type MemKeyStore struct {
	logger       *log.CommonLogger
	docs         map[string]*memRecord
	bySeq        map[uint64]string
	lastSequence uint64
}

type memRecord struct {
	version  []byte
	sequence uint64
	flags    base.DocumentFlags
	body     []byte // snappy
	extra    []byte // snappy
}

func NewMemKeyStore(loggerCtx *log.LoggerContext) *MemKeyStore {
	return &MemKeyStore{
		logger: log.NewLogger("MemKeyStore", loggerCtx),
		docs:   map[string]*memRecord{},
		bySeq:  map[uint64]string{},
	}
}

func (s *MemKeyStore) LastSequence() uint64 {
	return s.lastSequence
}

func (s *MemKeyStore) Get(docID string, content base.ContentOption) (Record, error) {
	rec, ok := s.docs[docID]
	if !ok {
		return Record{Key: docID, ContentLoaded: content}, nil
	}
	return s.project(docID, rec, content)
}

func (s *MemKeyStore) GetBySequence(sequence uint64, content base.ContentOption) (Record, error) {
	docID, ok := s.bySeq[sequence]
	if !ok {
		return Record{ContentLoaded: content}, nil
	}
	return s.project(docID, s.docs[docID], content)
}

func (s *MemKeyStore) project(docID string, rec *memRecord, content base.ContentOption) (Record, error) {
	out := Record{
		Key:           docID,
		Version:       rec.version,
		Sequence:      rec.sequence,
		Flags:         rec.flags,
		Exists:        true,
		ContentLoaded: content,
	}
	var err error
	if content >= base.CurrentRevOnly {
		if out.Body, err = decompress(rec.body); err != nil {
			return Record{}, errors.Wrapf(err, "record body of '%s'", docID)
		}
	}
	if content >= base.EntireBody {
		if out.Extra, err = decompress(rec.extra); err != nil {
			return Record{}, errors.Wrapf(err, "record extra of '%s'", docID)
		}
	}
	return out, nil
}

func (s *MemKeyStore) Set(rec RecordLite, txn Transaction) (uint64, error) {
	if rec.Key == "" || len(rec.Version) == 0 {
		return 0, base.ErrorInvalidParameter
	}
	existing := s.docs[rec.Key]
	if existing != nil && existing.sequence != rec.Sequence {
		s.logger.Debugf("conflict writing '%v': stored seq %v, caller seq %v",
			rec.Key, existing.sequence, rec.Sequence)
		return 0, nil
	}
	if existing == nil && rec.Sequence != 0 {
		return 0, nil
	}

	sequence := rec.Sequence
	if rec.UpdateSequence || sequence == 0 {
		s.lastSequence++
		sequence = s.lastSequence
	}
	if existing != nil && existing.sequence != sequence {
		delete(s.bySeq, existing.sequence)
	}
	s.docs[rec.Key] = &memRecord{
		version:  append([]byte(nil), rec.Version...),
		sequence: sequence,
		flags:    rec.Flags,
		body:     compress(rec.Body),
		extra:    compress(rec.Extra),
	}
	s.bySeq[sequence] = rec.Key
	return sequence, nil
}

// Delete removes a document outright, modelling a purge.
func (s *MemKeyStore) Delete(docID string) error {
	rec, ok := s.docs[docID]
	if !ok {
		return base.ErrorNotFound
	}
	delete(s.bySeq, rec.sequence)
	delete(s.docs, docID)
	return nil
}

func compress(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return snappy.Encode(nil, data)
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return snappy.Decode(nil, data)
}
