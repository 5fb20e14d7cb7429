/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package raftlog persists the replicated log, the per-term voting
metadata, and compaction snapshots to disk.

On-disk formats:

	entry:    { u64 index, u64 term, u32 len, bytes payload }
	metadata: { u64 currentTerm, u32 votedForLen, bytes votedForUri }
	snapshot: { u64 lastIncludedIndex, u64 lastIncludedTerm, u32 len, bytes blob }
*/
package raftlog

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Entry is one durable record of the replicated log.
type Entry struct {
	Index   uint64
	Term    uint64
	Payload []byte
}

const entryHeaderSize = 8 + 8 + 4

// encodeEntry writes one entry in the on-disk format and returns the
// number of bytes written.
func encodeEntry(w io.Writer, e Entry) (int, error) {
	buf := make([]byte, entryHeaderSize+len(e.Payload))
	binary.BigEndian.PutUint64(buf[0:8], e.Index)
	binary.BigEndian.PutUint64(buf[8:16], e.Term)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(e.Payload)))
	copy(buf[20:], e.Payload)
	if _, err := w.Write(buf); err != nil {
		return 0, fmt.Errorf("raftlog: write entry: %w", err)
	}
	return len(buf), nil
}

// decodeEntry reads one entry from r, returning the entry and its
// encoded size in bytes.
func decodeEntry(r io.Reader) (Entry, int, error) {
	head := make([]byte, entryHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return Entry{}, 0, err
	}
	e := Entry{
		Index: binary.BigEndian.Uint64(head[0:8]),
		Term:  binary.BigEndian.Uint64(head[8:16]),
	}
	plen := binary.BigEndian.Uint32(head[16:20])
	if plen > 0 {
		e.Payload = make([]byte, plen)
		if _, err := io.ReadFull(r, e.Payload); err != nil {
			return Entry{}, 0, err
		}
	}
	return e, entryHeaderSize + int(plen), nil
}

// Metadata is the durable per-term voting record: currentTerm and
// votedFor.
type Metadata struct {
	CurrentTerm uint64
	VotedFor    string // empty means no vote cast this term
}

func encodeMetadata(m Metadata) []byte {
	buf := make([]byte, 8+4+len(m.VotedFor))
	binary.BigEndian.PutUint64(buf[0:8], m.CurrentTerm)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(m.VotedFor)))
	copy(buf[12:], m.VotedFor)
	return buf
}

func decodeMetadata(buf []byte) (Metadata, error) {
	if len(buf) < 12 {
		return Metadata{}, fmt.Errorf("raftlog: metadata file truncated")
	}
	m := Metadata{CurrentTerm: binary.BigEndian.Uint64(buf[0:8])}
	vlen := binary.BigEndian.Uint32(buf[8:12])
	if len(buf) < 12+int(vlen) {
		return Metadata{}, fmt.Errorf("raftlog: metadata file truncated")
	}
	m.VotedFor = string(buf[12 : 12+vlen])
	return m, nil
}

// Snapshot is the durable compaction record.
type Snapshot struct {
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Blob              []byte
}

func encodeSnapshot(s Snapshot) []byte {
	buf := make([]byte, 8+8+4+len(s.Blob))
	binary.BigEndian.PutUint64(buf[0:8], s.LastIncludedIndex)
	binary.BigEndian.PutUint64(buf[8:16], s.LastIncludedTerm)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(s.Blob)))
	copy(buf[20:], s.Blob)
	return buf
}

func decodeSnapshot(buf []byte) (Snapshot, error) {
	if len(buf) < 20 {
		return Snapshot{}, fmt.Errorf("raftlog: snapshot file truncated")
	}
	s := Snapshot{
		LastIncludedIndex: binary.BigEndian.Uint64(buf[0:8]),
		LastIncludedTerm:  binary.BigEndian.Uint64(buf[8:16]),
	}
	blen := binary.BigEndian.Uint32(buf[16:20])
	if len(buf) < 20+int(blen) {
		return Snapshot{}, fmt.Errorf("raftlog: snapshot file truncated")
	}
	s.Blob = buf[20 : 20+blen]
	return s, nil
}
