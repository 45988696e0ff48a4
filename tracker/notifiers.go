// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package tracker

import (
	"container/list"
)

// DocChangeCallback runs synchronously during the mutation that changed
// the observed document. It may call back into the tracker.
type DocChangeCallback func(notifier *DocChangeNotifier, docID string, sequence uint64)

// DocChangeNotifier observes a single document. It registers itself on
// construction and must be Closed before the tracker goes away.
type DocChangeNotifier struct {
	tracker  *SequenceTracker
	callback DocChangeCallback
	docEntry *entry
	closed   bool
}

func NewDocChangeNotifier(t *SequenceTracker, docID string, callback DocChangeCallback) *DocChangeNotifier {
	n := &DocChangeNotifier{tracker: t, callback: callback}
	n.docEntry = t.addDocChangeNotifier(docID, n)
	t.logger.Debugf("added doc change notifier for '%v'", docID)
	return n
}

// Close deregisters the notifier. Safe to call more than once.
func (n *DocChangeNotifier) Close() {
	if n.closed {
		return
	}
	n.closed = true
	n.tracker.logger.Debugf("removing doc change notifier from '%v'", n.docEntry.docID)
	n.tracker.removeDocChangeNotifier(n.docEntry, n)
}

func (n *DocChangeNotifier) DocID() string {
	return n.docEntry.docID
}

func (n *DocChangeNotifier) Sequence() uint64 {
	return n.docEntry.sequence
}

func (n *DocChangeNotifier) notify(e *entry) {
	if n.callback != nil {
		n.callback(n, e.docID, e.sequence)
	}
}

// DatabaseChangeCallback is posted at most once per quiet interval: the
// first time a change lands after the notifier's placeholder. It fires
// again only after ReadChanges has advanced the placeholder.
type DatabaseChangeCallback func(notifier *DatabaseChangeNotifier)

// DatabaseChangeNotifier observes all changes on a tracker through a
// placeholder in the change list. It registers itself on construction and
// must be Closed before the tracker goes away.
type DatabaseChangeNotifier struct {
	tracker     *SequenceTracker
	callback    DatabaseChangeCallback
	placeholder *list.Element
	closed      bool
}

// NewDatabaseChangeNotifier starts observing after afterSeq; pass the
// tracker's LastSequence to observe only future changes.
func NewDatabaseChangeNotifier(t *SequenceTracker, callback DatabaseChangeCallback, afterSeq uint64) *DatabaseChangeNotifier {
	n := &DatabaseChangeNotifier{tracker: t, callback: callback}
	n.placeholder = t.addPlaceholderAfter(n, afterSeq)
	if callback != nil {
		t.logger.Infof("created database change notifier, starting after #%d", afterSeq)
	}
	return n
}

// Close deregisters the notifier. Safe to call more than once.
func (n *DatabaseChangeNotifier) Close() {
	if n.closed {
		return
	}
	n.closed = true
	n.tracker.removePlaceholder(n.placeholder)
}

func (n *DatabaseChangeNotifier) notify() {
	if n.callback != nil {
		n.tracker.logger.Infof("posting notification")
		n.callback(n)
	}
}

// ReadChanges drains up to maxChanges changes past the placeholder and
// advances it. All returned changes share the reported external flag; a
// batch cut short by a flag switch is picked up by the next call.
func (n *DatabaseChangeNotifier) ReadChanges(maxChanges int) ([]Change, bool) {
	changes, external := n.tracker.readChanges(n.placeholder, maxChanges)
	n.tracker.logger.Infof("readChanges(%d) -> %d changes", maxChanges, len(changes))
	return changes, external
}

// HasChanges reports whether any change is waiting past the placeholder.
func (n *DatabaseChangeNotifier) HasChanges() bool {
	return n.tracker.hasChangesAfterPlaceholder(n.placeholder)
}
