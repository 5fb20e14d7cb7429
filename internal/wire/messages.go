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

package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortBuffer is returned by decoder reads that run past the end of
// the underlying buffer.
var ErrShortBuffer = errors.New("wire: short buffer")

// BinaryEncoder builds a length-prefixed binary payload incrementally.
type BinaryEncoder struct {
	buf []byte
}

// NewBinaryEncoder returns an empty encoder.
func NewBinaryEncoder() *BinaryEncoder {
	return &BinaryEncoder{}
}

func (e *BinaryEncoder) WriteString(s string) {
	e.WriteUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *BinaryEncoder) WriteBytes(b []byte) {
	e.WriteUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *BinaryEncoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *BinaryEncoder) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *BinaryEncoder) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *BinaryEncoder) WriteInt64(v int64) {
	e.WriteUint64(uint64(v))
}

func (e *BinaryEncoder) WriteFloat64(v float64) {
	e.WriteUint64(math.Float64bits(v))
}

func (e *BinaryEncoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// Bytes returns the accumulated payload.
func (e *BinaryEncoder) Bytes() []byte {
	return e.buf
}

// BinaryDecoder reads values written by BinaryEncoder, in order.
type BinaryDecoder struct {
	buf []byte
	pos int
}

// NewBinaryDecoder wraps buf for sequential reads.
func NewBinaryDecoder(buf []byte) *BinaryDecoder {
	return &BinaryDecoder{buf: buf}
}

func (d *BinaryDecoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *BinaryDecoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, ErrShortBuffer
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *BinaryDecoder) ReadByte() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, ErrShortBuffer
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *BinaryDecoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *BinaryDecoder) ReadUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *BinaryDecoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

func (d *BinaryDecoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (d *BinaryDecoder) ReadBool() (bool, error) {
	if d.pos+1 > len(d.buf) {
		return false, ErrShortBuffer
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}

// LogEntry is the wire representation of one replicated log entry,
// mirroring the persisted log entry format.
type LogEntry struct {
	Index   uint64
	Term    uint64
	Payload []byte
}

func encodeEntries(e *BinaryEncoder, entries []LogEntry) {
	e.WriteUint32(uint32(len(entries)))
	for _, ent := range entries {
		e.WriteUint64(ent.Index)
		e.WriteUint64(ent.Term)
		e.WriteBytes(ent.Payload)
	}
}

func decodeEntries(d *BinaryDecoder) ([]LogEntry, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		idx, err := d.ReadUint64()
		if err != nil {
			return nil, err
		}
		term, err := d.ReadUint64()
		if err != nil {
			return nil, err
		}
		payload, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		entries = append(entries, LogEntry{Index: idx, Term: term, Payload: payload})
	}
	return entries, nil
}

// PingMessage is the liveness heartbeat: no entries, no log-matching
// check, just the leader announcing itself.
type PingMessage struct {
	Term         uint64
	LeaderURI    string
	LastLogIndex uint64
	LastLogTerm  uint64
	CommitIndex  uint64
}

func (m *PingMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteString(m.LeaderURI)
	e.WriteUint64(m.LastLogIndex)
	e.WriteUint64(m.LastLogTerm)
	e.WriteUint64(m.CommitIndex)
	return e.Bytes(), nil
}

func DecodePingMessage(buf []byte) (*PingMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &PingMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LeaderURI, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.LastLogIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LastLogTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.CommitIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	return m, nil
}

// PingResultMessage is the heartbeat response.
type PingResultMessage struct {
	Term    uint64
	Success bool
}

func (m *PingResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteBool(m.Success)
	return e.Bytes(), nil
}

func DecodePingResultMessage(buf []byte) (*PingResultMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &PingResultMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Success, err = d.ReadBool(); err != nil {
		return nil, err
	}
	return m, nil
}

// PollMessage is the RequestVote RPC. PreVote supplements plain
// RequestVote with the standard pre-vote refinement: a candidate probes
// for a would-be majority before incrementing its term, avoiding
// needless term inflation during a partition.
type PollMessage struct {
	Term         uint64
	CandidateURI string
	LastLogIndex uint64
	LastLogTerm  uint64
	PreVote      bool
}

func (m *PollMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteString(m.CandidateURI)
	e.WriteUint64(m.LastLogIndex)
	e.WriteUint64(m.LastLogTerm)
	e.WriteBool(m.PreVote)
	return e.Bytes(), nil
}

func DecodePollMessage(buf []byte) (*PollMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &PollMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.CandidateURI, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.LastLogIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LastLogTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.PreVote, err = d.ReadBool(); err != nil {
		return nil, err
	}
	return m, nil
}

// PollResultMessage is the RequestVote response.
type PollResultMessage struct {
	Term        uint64
	VoteGranted bool
}

func (m *PollResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteBool(m.VoteGranted)
	return e.Bytes(), nil
}

func DecodePollResultMessage(buf []byte) (*PollResultMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &PollResultMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.VoteGranted, err = d.ReadBool(); err != nil {
		return nil, err
	}
	return m, nil
}

// AppendMessage is AppendEntries: a replication request carrying zero or
// more log entries.
type AppendMessage struct {
	Term         uint64
	LeaderURI    string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

func (m *AppendMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteString(m.LeaderURI)
	e.WriteUint64(m.PrevLogIndex)
	e.WriteUint64(m.PrevLogTerm)
	encodeEntries(e, m.Entries)
	e.WriteUint64(m.LeaderCommit)
	return e.Bytes(), nil
}

func DecodeAppendMessage(buf []byte) (*AppendMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &AppendMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LeaderURI, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.PrevLogIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.PrevLogTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Entries, err = decodeEntries(d); err != nil {
		return nil, err
	}
	if m.LeaderCommit, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	return m, nil
}

// AppendResultMessage is the AppendEntries response. ConflictIndex and
// ConflictTerm supplement a bare logIndex hint with the standard
// fast-backtrack optimization: on mismatch the follower reports
// the term at the conflicting index and its first index in that term, so
// the leader can jump nextIndex back by more than one per round trip.
type AppendResultMessage struct {
	Term          uint64
	Success       bool
	LogIndexHint  uint64
	ConflictIndex uint64
	ConflictTerm  uint64
}

func (m *AppendResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteBool(m.Success)
	e.WriteUint64(m.LogIndexHint)
	e.WriteUint64(m.ConflictIndex)
	e.WriteUint64(m.ConflictTerm)
	return e.Bytes(), nil
}

func DecodeAppendResultMessage(buf []byte) (*AppendResultMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &AppendResultMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Success, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.LogIndexHint, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.ConflictIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.ConflictTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	return m, nil
}

// Consistency selects how a Query is served.
type Consistency byte

const (
	ConsistencyStrong Consistency = iota
	ConsistencyLease
	ConsistencyWeak
)

// QueryMessage is a read request at a chosen consistency level.
type QueryMessage struct {
	Consistency Consistency
	Payload     []byte
}

func (m *QueryMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteByte(byte(m.Consistency))
	e.WriteBytes(m.Payload)
	return e.Bytes(), nil
}

func DecodeQueryMessage(buf []byte) (*QueryMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &QueryMessage{}
	b, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	m.Consistency = Consistency(b)
	if m.Payload, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// QueryResultMessage is the response to a QueryMessage.
type QueryResultMessage struct {
	Success    bool
	Result     []byte
	LeaderHint string
	ErrMessage string
}

func (m *QueryResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteBool(m.Success)
	e.WriteBytes(m.Result)
	e.WriteString(m.LeaderHint)
	e.WriteString(m.ErrMessage)
	return e.Bytes(), nil
}

func DecodeQueryResultMessage(buf []byte) (*QueryResultMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &QueryResultMessage{}
	var err error
	if m.Success, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.Result, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	if m.LeaderHint, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.ErrMessage, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

// CommitMessage is a client command submitted for replication.
type CommitMessage struct {
	Payload []byte
}

func (m *CommitMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteBytes(m.Payload)
	return e.Bytes(), nil
}

func DecodeCommitMessage(buf []byte) (*CommitMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &CommitMessage{}
	var err error
	if m.Payload, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// CommitResultMessage reports the outcome of a submitted command once it
// has been committed and applied (or definitively failed).
type CommitResultMessage struct {
	Success    bool
	Result     []byte
	LeaderHint string
	ErrMessage string
}

func (m *CommitResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteBool(m.Success)
	e.WriteBytes(m.Result)
	e.WriteString(m.LeaderHint)
	e.WriteString(m.ErrMessage)
	return e.Bytes(), nil
}

func DecodeCommitResultMessage(buf []byte) (*CommitResultMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &CommitResultMessage{}
	var err error
	if m.Success, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.Result, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	if m.LeaderHint, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.ErrMessage, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

// SyncMessage carries one chunk of a snapshot transfer.
type SyncMessage struct {
	Term              uint64
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Offset            uint64
	Data              []byte
	Done              bool
}

func (m *SyncMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteUint64(m.LastIncludedIndex)
	e.WriteUint64(m.LastIncludedTerm)
	e.WriteUint64(m.Offset)
	e.WriteBytes(m.Data)
	e.WriteBool(m.Done)
	return e.Bytes(), nil
}

func DecodeSyncMessage(buf []byte) (*SyncMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &SyncMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LastIncludedIndex, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LastIncludedTerm, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Offset, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Data, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	if m.Done, err = d.ReadBool(); err != nil {
		return nil, err
	}
	return m, nil
}

// SyncResultMessage acknowledges receipt of a SyncMessage chunk.
type SyncResultMessage struct {
	Term    uint64
	Success bool
}

func (m *SyncResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.Term)
	e.WriteBool(m.Success)
	return e.Bytes(), nil
}

func DecodeSyncResultMessage(buf []byte) (*SyncResultMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &SyncResultMessage{}
	var err error
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Success, err = d.ReadBool(); err != nil {
		return nil, err
	}
	return m, nil
}

// ErrorMessage is a structured error carried in place of a normal reply.
type ErrorMessage struct {
	Code    int
	Message string
}

func (m *ErrorMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteInt64(int64(m.Code))
	e.WriteString(m.Message)
	return e.Bytes(), nil
}

func DecodeErrorMessage(buf []byte) (*ErrorMessage, error) {
	d := NewBinaryDecoder(buf)
	m := &ErrorMessage{}
	code, err := d.ReadInt64()
	if err != nil {
		return nil, err
	}
	m.Code = int(code)
	if m.Message, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}
