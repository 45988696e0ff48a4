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
	"fmt"
	"strings"

	"github.com/rcrowley/go-metrics"

	"github.com/couchbase/golitecore/base"
	"github.com/couchbase/golitecore/log"
	"github.com/couchbase/golitecore/vv"
)

/*
THEORY OF OPERATION:

Placeholders are interspersed with document entries in the changes list.
    Pl1 -> A -> Z -> Pl2 -> B -> F
If document A is changed, its entry's sequence is updated and it moves to
the end:
    Pl1 -> Z -> Pl2 -> B -> F -> A
A DatabaseChangeNotifier's ReadChanges moves its placeholder forward,
collecting the entries passed over until it reaches the end or the limit:
           Z -> Pl2 -> B -> F -> A -> Pl1       (ReadChanges -> [Z, B, F, A])
Any document entries before the first placeholder can then be removed:
                Pl2 -> B -> F -> A -> Pl1
After a document changes and its entry moves to the end, if the items
directly before it are placeholders, their notifiers post notifications.
Here document F changed and notifier 1 posts:
                Pl2 -> B -> A -> Pl1 -> F
Then document A changes, but no notifications are sent:
                Pl2 -> B -> Pl1 -> F -> A

Transactions:
 On begin, a special placeholder (the transaction's) is appended.
 On commit:
    * The owner is responsible for finding the other SequenceTrackers on
      the same file and calling their AddExternalTransaction.
    * Each entry after the transaction placeholder gets its
      committedSequence set to its sequence.
    * The placeholder is removed.
 On abort:
    * Each entry after the placeholder is re-announced with its old
      committed sequence, generating a synthetic reversion notification.
    * The placeholder is removed.
*/

// DefaultMinChangesToKeep bounds how much history survives eviction.
const DefaultMinChangesToKeep = 100

const (
	statChangesRecorded = "changes_recorded"
	statExternalChanges = "external_changes"
	statNotifications   = "notifications_posted"
	statEntriesEvicted  = "entries_evicted"
)

// SequenceTracker orders document mutations by sequence and multiplexes
// them to per-document and whole-database observers. It belongs to a
// single database connection and must not be used from other goroutines.
type SequenceTracker struct {
	logger *log.CommonLogger

	changes *list.List // of *entry; tail is newest
	idle    *list.List // of *entry kept alive only for document observers
	byDocID map[string]*list.Element

	lastSequence               uint64
	preTransactionLastSequence uint64
	transaction                *DatabaseChangeNotifier

	numPlaceholders  int
	numDocObservers  int
	minChangesToKeep int

	registry metrics.Registry
}

func NewSequenceTracker(loggerCtx *log.LoggerContext) *SequenceTracker {
	registry := metrics.NewRegistry()
	for _, name := range []string{statChangesRecorded, statExternalChanges, statNotifications, statEntriesEvicted} {
		registry.Register(name, metrics.NewCounter())
	}
	return &SequenceTracker{
		logger:           log.NewLogger("Changes", loggerCtx),
		changes:          list.New(),
		idle:             list.New(),
		byDocID:          map[string]*list.Element{},
		minChangesToKeep: DefaultMinChangesToKeep,
		registry:         registry,
	}
}

// Statistics exposes the tracker's metrics registry.
func (t *SequenceTracker) Statistics() metrics.Registry {
	return t.registry
}

func (t *SequenceTracker) count(name string, delta int64) {
	t.registry.Get(name).(metrics.Counter).Inc(delta)
}

func (t *SequenceTracker) LastSequence() uint64 {
	return t.lastSequence
}

func (t *SequenceTracker) InTransaction() bool {
	return t.transaction != nil
}

func (t *SequenceTracker) hasDBChangeNotifiers() bool {
	return t.numPlaceholders > 0
}

// BeginTransaction snapshots the last sequence and appends the
// transaction placeholder, owned by an internal notifier with no
// callback.
func (t *SequenceTracker) BeginTransaction() {
	if t.InTransaction() {
		panic("transaction already open")
	}
	t.logger.Infof("begin transaction at #%d", t.lastSequence)
	t.preTransactionLastSequence = t.lastSequence
	t.transaction = NewDatabaseChangeNotifier(t, nil, t.lastSequence)
}

// ChangedDuringTransaction reports whether any document changed since
// BeginTransaction.
func (t *SequenceTracker) ChangedDuringTransaction() bool {
	if !t.InTransaction() {
		panic("no open transaction")
	}
	if t.lastSequence > t.preTransactionLastSequence {
		return true
	}
	for el := t.transaction.placeholder.Next(); el != nil; el = el.Next() {
		if !el.Value.(*entry).isPlaceholder() {
			return true
		}
	}
	return false
}

// EndTransaction commits or aborts the open transaction.
func (t *SequenceTracker) EndTransaction(commit bool) {
	if !t.InTransaction() {
		panic("no open transaction")
	}

	housekeeping := false
	if commit {
		t.logger.Infof("commit: sequences #%d -- #%d", t.preTransactionLastSequence+1, t.lastSequence)
		// Bump their committedSequences:
		for el := t.transaction.placeholder.Next(); el != nil; el = el.Next() {
			if e := el.Value.(*entry); !e.isPlaceholder() {
				e.committedSequence = e.sequence
				housekeeping = true
			}
		}
	} else {
		t.logger.Infof("abort: from seq #%d back to #%d", t.lastSequence, t.preTransactionLastSequence)
		t.lastSequence = t.preTransactionLastSequence

		// Revert their committedSequences. The update routine moves
		// entries, so capture each successor before announcing, and stop
		// after the entry that was last when the walk began:
		lastEl := t.changes.Back()
		nextEl := t.transaction.placeholder
		for {
			el := nextEl
			nextEl = el.Next()
			if e := el.Value.(*entry); !e.isPlaceholder() {
				// moves the entry!
				t.documentChanged(e.docID, e.revID, e.committedSequence, e.flags)
			}
			if el == lastEl {
				break
			}
		}
		housekeeping = true
	}

	txn := t.transaction
	t.transaction = nil
	txn.Close()
	if housekeeping {
		t.removeObsoleteEntries()
	}
}

// DocumentChanged records a mutation. Must be called inside a
// transaction, with a sequence above every prior one.
func (t *SequenceTracker) DocumentChanged(docID string, revID vv.RevID, sequence uint64, flags base.DocumentFlags) {
	if !t.InTransaction() {
		panic("documentChanged outside a transaction")
	}
	if docID == "" || len(revID) == 0 || sequence <= t.lastSequence {
		panic(fmt.Sprintf("invalid change: docID=%q revID=%v sequence=%d lastSequence=%d",
			docID, revID, sequence, t.lastSequence))
	}
	t.lastSequence = sequence
	t.documentChanged(docID, revID, sequence, flags)
}

// DocumentPurged records the removal of a document without a successor
// revision; its entry carries sequence 0.
func (t *SequenceTracker) DocumentPurged(docID string) {
	if docID == "" {
		panic("purge with empty docID")
	}
	if !t.InTransaction() {
		panic("documentPurged outside a transaction")
	}
	t.documentChanged(docID, nil, 0, base.DocFlagNone)
}

// documentChanged is the internal update routine shared by local changes,
// purges, aborts and external fan-in.
func (t *SequenceTracker) documentChanged(docID string, revID vv.RevID, sequence uint64, flags base.DocumentFlags) {
	listChanged := true
	var e *entry
	if el, ok := t.byDocID[docID]; ok {
		// Move the existing entry to the end of the list:
		e = el.Value.(*entry)
		if e.isIdle() && !t.hasDBChangeNotifiers() {
			listChanged = false
		} else if e.isIdle() {
			t.idle.Remove(el)
			t.byDocID[docID] = t.changes.PushBack(e)
			e.idle = false
		} else if el.Next() != nil {
			t.changes.MoveToBack(el)
		} else {
			listChanged = false // it was already at the end
		}
		// Update its revID & sequence:
		e.revID = revID
		e.sequence = sequence
		e.flags = flags
	} else {
		// or create a new entry at the end:
		e = newDocEntry(docID, revID, sequence, flags)
		t.byDocID[docID] = t.changes.PushBack(e)
	}

	if !t.InTransaction() {
		e.committedSequence = sequence
		e.external = true // it must have come from AddExternalTransaction
		t.count(statExternalChanges, 1)
	}
	t.count(statChangesRecorded, 1)

	// Notify document observers; snapshot the list, a callback may
	// register or remove observers on this entry:
	for _, observer := range append([]*DocChangeNotifier(nil), e.documentObservers...) {
		observer.notify(e)
	}

	if listChanged && t.numPlaceholders > 0 {
		// Any placeholders right before this change were up to date and
		// should be notified. Walk backwards, skipping the just-moved
		// entry, precomputing each predecessor in case the callback moves
		// the placeholder:
		notified := false
		ph := t.changes.Back().Prev()
		for ph != nil && ph.Value.(*entry).isPlaceholder() {
			prevPh := ph.Prev()
			if observer := ph.Value.(*entry).databaseObserver; observer != nil {
				observer.notify()
				notified = true
				if observer.callback != nil {
					t.count(statNotifications, 1)
				}
			}
			ph = prevPh
		}
		if notified {
			t.removeObsoleteEntries()
		}
	}
}

// AddExternalTransaction replays a peer tracker's uncommitted transaction
// into this tracker, marking every change external. Called by the owner
// of both trackers while the peer is mid-commit.
func (t *SequenceTracker) AddExternalTransaction(other *SequenceTracker) {
	if t.InTransaction() {
		panic("addExternalTransaction inside a transaction")
	}
	if !other.InTransaction() {
		panic("peer tracker has no open transaction")
	}
	if t.changes.Len() == 0 && t.numDocObservers == 0 {
		return
	}
	t.logger.Infof("addExternalTransaction from peer at #%d", other.lastSequence)
	for el := other.transaction.placeholder.Next(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.isPlaceholder() {
			continue
		}
		if e.sequence != 0 {
			if e.sequence <= t.lastSequence {
				panic("external sequence out of order")
			}
			t.lastSequence = e.sequence
		}
		t.documentChanged(e.docID, e.revID, e.sequence, e.flags)
	}
	t.removeObsoleteEntries()
}

// since locates the insertion point for a placeholder that has seen
// everything up to sinceSeq: nil means append at the end, otherwise
// insert before the returned element.
func (t *SequenceTracker) since(sinceSeq uint64) *list.Element {
	if sinceSeq >= t.lastSequence {
		return nil
	}
	// Scan back to the latest entry with sequence <= sinceSeq that is not
	// a purge, and insert after it:
	result := t.changes.Back()
	for el := t.changes.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.sequence > sinceSeq || e.isPurge() {
			result = el
		} else if !e.isPlaceholder() {
			break
		}
	}
	return result
}

func (t *SequenceTracker) addPlaceholderAfter(observer *DatabaseChangeNotifier, sinceSeq uint64) *list.Element {
	t.numPlaceholders++
	ph := newPlaceholder(observer)
	if pos := t.since(sinceSeq); pos != nil {
		return t.changes.InsertBefore(ph, pos)
	}
	return t.changes.PushBack(ph)
}

func (t *SequenceTracker) removePlaceholder(el *list.Element) {
	t.changes.Remove(el)
	t.numPlaceholders--
	t.removeObsoleteEntries()
}

func (t *SequenceTracker) hasChangesAfterPlaceholder(el *list.Element) bool {
	for i := el.Next(); i != nil; i = i.Next() {
		if !i.Value.(*entry).isPlaceholder() {
			return true
		}
	}
	return false
}

// readChanges collects up to maxChanges entries after the placeholder.
// All collected changes share one external flag; the batch stops early at
// an entry whose flag differs, and a second call picks those up. If
// anything was collected the placeholder advances to just before the stop
// position.
func (t *SequenceTracker) readChanges(placeholder *list.Element, maxChanges int) (changes []Change, external bool) {
	el := placeholder.Next()
	for el != nil && len(changes) < maxChanges {
		if e := el.Value.(*entry); !e.isPlaceholder() {
			// Collect only changes with the same value for external:
			if len(changes) == 0 {
				external = e.external
			} else if e.external != external {
				break
			}
			changes = append(changes, Change{DocID: e.docID, RevID: e.revID, Sequence: e.sequence, Flags: e.flags})
		}
		el = el.Next()
	}
	if len(changes) > 0 {
		// Move the placeholder to just before el:
		if el != nil {
			t.changes.MoveBefore(placeholder, el)
		} else {
			t.changes.MoveToBack(placeholder)
		}
		t.removeObsoleteEntries()
	}
	return changes, external
}

// removeObsoleteEntries drops entries from the head that no placeholder
// can reach anymore, keeping a minimum of history. Entries with document
// observers move to the idle list instead of being dropped.
func (t *SequenceTracker) removeObsoleteEntries() {
	if t.InTransaction() {
		return
	}
	nRemoved := 0
	for t.changes.Len() > t.minChangesToKeep+t.numPlaceholders {
		el := t.changes.Front()
		e := el.Value.(*entry)
		if e.isPlaceholder() {
			break
		}
		if len(e.documentObservers) == 0 {
			delete(t.byDocID, e.docID)
			t.changes.Remove(el)
		} else {
			t.changes.Remove(el)
			t.byDocID[e.docID] = t.idle.PushBack(e)
			e.idle = true
		}
		nRemoved++
	}
	if nRemoved > 0 {
		t.count(statEntriesEvicted, int64(nRemoved))
	}
	t.logger.Debugf("removed %d old entries (%d left; idle has %d, byDocID has %d)",
		nRemoved, t.changes.Len(), t.idle.Len(), len(t.byDocID))
}

func (t *SequenceTracker) addDocChangeNotifier(docID string, notifier *DocChangeNotifier) *entry {
	if docID == "" {
		panic("doc change notifier with empty docID")
	}
	var e *entry
	if el, ok := t.byDocID[docID]; ok {
		e = el.Value.(*entry)
	} else {
		// Document isn't known yet; create an entry on the idle list
		e = newDocEntry(docID, nil, 0, base.DocFlagNone)
		e.idle = true
		t.byDocID[docID] = t.idle.PushBack(e)
	}
	e.documentObservers = append(e.documentObservers, notifier)
	t.numDocObservers++
	return e
}

func (t *SequenceTracker) removeDocChangeNotifier(e *entry, notifier *DocChangeNotifier) {
	found := -1
	for i, observer := range e.documentObservers {
		if observer == notifier {
			found = i
			break
		}
	}
	if found < 0 {
		panic("unknown DocChangeNotifier")
	}
	e.documentObservers = append(e.documentObservers[:found], e.documentObservers[found+1:]...)
	t.numDocObservers--
	if len(e.documentObservers) == 0 && e.isIdle() {
		el := t.byDocID[e.docID]
		delete(t.byDocID, e.docID)
		t.idle.Remove(el)
	}
}

// Dump renders the change list for debugging: placeholders as "*", the
// open transaction as parentheses, external changes with a quote.
func (t *SequenceTracker) Dump(verbose bool) string {
	var s strings.Builder
	s.WriteByte('[')
	first := true
	for el := t.changes.Front(); el != nil; el = el.Next() {
		if first {
			first = false
		} else {
			s.WriteString(", ")
		}
		e := el.Value.(*entry)
		if !e.isPlaceholder() {
			fmt.Fprintf(&s, "%s@%d", e.docID, e.sequence)
			if verbose && e.flags != base.DocFlagNone {
				fmt.Fprintf(&s, "#%x", int(e.flags))
			}
			if e.external {
				s.WriteByte('\'')
			}
		} else if t.transaction != nil && el == t.transaction.placeholder {
			s.WriteByte('(')
			first = true
		} else {
			s.WriteByte('*')
		}
	}
	if t.transaction != nil {
		s.WriteByte(')')
	}
	s.WriteByte(']')
	return s.String()
}
