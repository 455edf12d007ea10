// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"sync"
	"time"

	clustererrors "github.com/gridwork/cluster/pkg/errors"
)

// Message is a fully-reassembled logical message: every fragment's
// payload concatenated in index order.
type Message struct {
	MsgID   MsgID
	Type    Type
	Payload []byte
}

type reassemblyEntry struct {
	fragments  []*Fragment
	lastSeenAt time.Time
}

// Reassembler maintains a mapping from msg_id to a sparse sequence of
// fragments. Add is called from a single receiver goroutine; a mutex
// serializes it with the periodic GC sweep run from a different
// goroutine.
type Reassembler struct {
	mu      sync.Mutex
	entries map[MsgID]*reassemblyEntry
}

// NewReassembler creates an empty reassembly table.
func NewReassembler() *Reassembler {
	return &Reassembler{entries: make(map[MsgID]*reassemblyEntry)}
}

// Add ingests one fragment. It returns the completed Message and true
// once every fragment of its msg_id has arrived; otherwise it returns
// (nil, false) and the fragment is held pending the rest. It fails
// with NonTerminalLastFragment if a fragment claims the last-fragment
// flag while a higher-indexed fragment of the same msg_id already
// arrived, since the invariant that only the highest index carries the
// flag would otherwise be violated.
func (r *Reassembler) Add(f *Fragment) (*Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[f.MsgID]
	if !exists {
		entry = &reassemblyEntry{}
		r.entries[f.MsgID] = entry
	}
	entry.lastSeenAt = time.Now()

	idx := int(f.FragIndex)
	priorLen := len(entry.fragments)

	if idx >= priorLen {
		grown := make([]*Fragment, idx+1)
		copy(grown, entry.fragments)
		entry.fragments = grown
	}
	entry.fragments[idx] = f

	if f.Last && idx < priorLen-1 {
		delete(r.entries, f.MsgID)
		return nil, false, clustererrors.NewNonTerminalLastFragmentError(f.MsgID.String(), idx, priorLen)
	}

	for _, frag := range entry.fragments {
		if frag == nil {
			return nil, false, nil
		}
	}
	if !entry.fragments[len(entry.fragments)-1].Last {
		return nil, false, nil
	}

	var buf bytes.Buffer
	for _, frag := range entry.fragments {
		buf.Write(frag.Payload)
	}

	msg := &Message{MsgID: f.MsgID, Type: f.Type, Payload: buf.Bytes()}
	delete(r.entries, f.MsgID)

	return msg, true, nil
}

// GC removes reassembly entries whose most recent fragment arrived
// more than maxAge ago, bounding the reassembly table growth that a
// lost last fragment would otherwise cause indefinitely. It returns the
// msg_ids of entries reaped this sweep, each reported as a
// MissingFragment classification error for the caller to log.
func (r *Reassembler) GC(maxAge time.Duration) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var reaped []error
	for id, entry := range r.entries {
		if entry.lastSeenAt.Before(cutoff) {
			missingIndex := 0
			for i, frag := range entry.fragments {
				if frag == nil {
					missingIndex = i
					break
				}
			}
			reaped = append(reaped, clustererrors.NewMissingFragmentError(id.String(), missingIndex))
			delete(r.entries, id)
		}
	}
	return reaped
}

// Len reports the number of incomplete logical messages currently
// pending reassembly.
func (r *Reassembler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
