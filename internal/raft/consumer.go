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

package raft

import "context"

// Consumer applies committed log entries to the caller's state machine
// in index order. It must be total: it may return an error (which fails
// the submission's future with a CommitError) but it must not panic and
// must always return, so the apply loop can advance lastApplied past the
// entry regardless of outcome.
//
// Read serves a Query directly against the consumer's current in-memory
// state, bypassing the log entirely — this is what lets WEAK and LEASE
// consistency answer without a replication round trip.
type Consumer interface {
	Apply(index uint64, payload []byte) ([]byte, error)
	Read(payload []byte) ([]byte, error)
}

// Snapshotter produces and installs opaque state-machine snapshots.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	Install(blob []byte) error
}

// Peer is the outbound RPC surface StateContext uses to talk to one
// remote member. Concrete implementations live in pkg/transport; this
// package only depends on the interface.
type Peer interface {
	SendPing(ctx context.Context, req *PingRequest) (*PingReply, error)
	SendPoll(ctx context.Context, req *PollRequest) (*PollReply, error)
	SendAppend(ctx context.Context, req *AppendRequest) (*AppendReply, error)
	SendSync(ctx context.Context, req *SyncRequest) (*SyncReply, error)
}

// PeerDialer resolves a member URI to a Peer, reusing connections for
// MEMBER members and opening/closing lazily for LISTENER members.
type PeerDialer interface {
	Peer(id MemberID) (Peer, error)
}

// PingRequest/PingReply mirror internal/wire's PingMessage/PingResultMessage
// at the transport boundary, keeping this package decoupled from the wire
// encoding.
type PingRequest struct {
	Term         uint64
	LeaderURI    MemberID
	LastLogIndex uint64
	LastLogTerm  uint64
	CommitIndex  uint64
}

type PingReply struct {
	Term    uint64
	Success bool
}

type PollRequest struct {
	Term         uint64
	CandidateURI MemberID
	LastLogIndex uint64
	LastLogTerm  uint64
}

type PollReply struct {
	Term        uint64
	VoteGranted bool
}

type LogEntry struct {
	Index   uint64
	Term    uint64
	Payload []byte
}

type AppendRequest struct {
	Term         uint64
	LeaderURI    MemberID
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

type AppendReply struct {
	Term          uint64
	Success       bool
	LogIndexHint  uint64
	ConflictIndex uint64
	ConflictTerm  uint64
}

type SyncRequest struct {
	Term              uint64
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Offset            uint64
	Data              []byte
	Done              bool
}

type SyncReply struct {
	Term    uint64
	Success bool
}
