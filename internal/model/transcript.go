// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind classifies a transcript mutation.
type ChangeKind int

const (
	// ChangeAppend adds messages at their sorted position (local turns).
	ChangeAppend ChangeKind = iota
	// ChangeDelta concatenates text onto an existing message.
	ChangeDelta
	// ChangeReplace swaps the whole transcript for a first history page.
	ChangeReplace
	// ChangePrepend merges an older history page.
	ChangePrepend
	// ChangeClear empties the transcript.
	ChangeClear
)

// String returns the name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAppend:
		return "append"
	case ChangeDelta:
		return "delta"
	case ChangeReplace:
		return "replace"
	case ChangePrepend:
		return "prepend"
	case ChangeClear:
		return "clear"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change describes one transcript mutation.
type Change struct {
	Kind ChangeKind
	// MessageID is the target of a delta, or the last appended message.
	MessageID string
	// Count is the number of messages added by the mutation.
	Count int
}

// Subscriber receives transcript changes in mutation order.
// Subscribers are called outside the transcript lock and may read the
// transcript, but must not mutate it synchronously.
type Subscriber func(Change)

// ErrDuplicateID is returned when appending a message whose id is already
// present in the transcript.
var ErrDuplicateID = errors.New("duplicate message id")

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is the ordered, observable message list of one conversation.
//
// Invariants: messages are sorted ascending by CreatedAt with ties kept in
// insertion order, and ids are unique.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	index    map[string]int

	// notifyMu serializes mutate-then-notify so subscribers observe changes
	// in the order they were applied.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     map[int]Subscriber
	nextSub  int
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		index: make(map[string]int),
		subs:  make(map[int]Subscriber),
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes the subscription.
func (t *Transcript) Subscribe(fn Subscriber) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

func (t *Transcript) notify(c Change) {
	t.subMu.Lock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, t.subs[id])
	}
	t.subMu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Append inserts msgs at their sorted positions. Messages with equal
// timestamps keep the order they were appended in.
func (t *Transcript) Append(msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if _, ok := t.index[m.ID]; ok || seen[m.ID] {
			t.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
		seen[m.ID] = true
	}
	for _, m := range msgs {
		pos := sort.Search(len(t.messages), func(i int) bool {
			return t.messages[i].CreatedAt > m.CreatedAt
		})
		t.messages = append(t.messages, Message{})
		copy(t.messages[pos+1:], t.messages[pos:])
		t.messages[pos] = m
	}
	t.reindexLocked()
	last := msgs[len(msgs)-1].ID
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeAppend, MessageID: last, Count: len(msgs)})
	return nil
}

// AppendDelta concatenates delta onto the content of the message with the
// given id. It reports false when no such message exists.
func (t *Transcript) AppendDelta(id, delta string) bool {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	t.messages[i].Content += delta
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeDelta, MessageID: id})
	return true
}

// Merge folds batch into the transcript as a union keyed by message id,
// then stable-sorts by CreatedAt. When an id is present on both sides the
// batch value wins but the message keeps its original position among ties.
// Merging the same batch twice leaves the transcript unchanged.
//
// kind must be ChangeReplace, which drops the current contents first, or
// ChangePrepend. Merge returns the number of ids that were not present before.
func (t *Transcript) Merge(batch []Message, kind ChangeKind) (int, error) {
	if kind != ChangeReplace && kind != ChangePrepend {
		return 0, fmt.Errorf("merge: unsupported change kind %s", kind)
	}

	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	var base []Message
	if kind == ChangePrepend {
		base = t.messages
	}
	merged, added := union(base, batch)
	t.messages = merged
	t.reindexLocked()
	t.mu.Unlock()

	t.notify(Change{Kind: kind, Count: added})
	return added, nil
}

// Clear removes every message.
func (t *Transcript) Clear() {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	t.messages = nil
	t.index = make(map[string]int)
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeClear})
}

// union returns base ∪ batch keyed by id, stable-sorted by CreatedAt, and the
// number of batch ids absent from base.
func union(base, batch []Message) ([]Message, int) {
	out := make([]Message, 0, len(base)+len(batch))
	pos := make(map[string]int, len(base)+len(batch))
	for _, m := range base {
		if i, ok := pos[m.ID]; ok {
			out[i] = m
			continue
		}
		pos[m.ID] = len(out)
		out = append(out, m)
	}
	added := 0
	for _, m := range batch {
		if i, ok := pos[m.ID]; ok {
			out[i] = m
			continue
		}
		pos[m.ID] = len(out)
		out = append(out, m)
		added++
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out, added
}

func (t *Transcript) reindexLocked() {
	t.index = make(map[string]int, len(t.messages))
	for i, m := range t.messages {
		t.index[m.ID] = i
	}
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns a copy of the messages in order.
func (t *Transcript) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Get returns the message with the given id.
func (t *Transcript) Get(id string) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[id]
	if !ok {
		return Message{}, false
	}
	return t.messages[i], true
}

// LastByRole returns the most recent message with the given role.
func (t *Transcript) LastByRole(role Role) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == role {
			return t.messages[i], true
		}
	}
	return Message{}, false
}
