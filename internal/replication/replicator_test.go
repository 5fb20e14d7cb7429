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

package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ravel/internal/raft"
)

type fakeSyncPeer struct {
	mu      sync.Mutex
	chunks  []raft.SyncRequest
	failN   int // SendSync fails this many times before succeeding
	tries   int
	pingFn  func(context.Context, *raft.PingRequest) (*raft.PingReply, error)
	pollFn  func(context.Context, *raft.PollRequest) (*raft.PollReply, error)
	appendF func(context.Context, *raft.AppendRequest) (*raft.AppendReply, error)
}

func (p *fakeSyncPeer) SendPing(ctx context.Context, req *raft.PingRequest) (*raft.PingReply, error) {
	return &raft.PingReply{Term: req.Term, Success: true}, nil
}
func (p *fakeSyncPeer) SendPoll(ctx context.Context, req *raft.PollRequest) (*raft.PollReply, error) {
	return &raft.PollReply{Term: req.Term, VoteGranted: true}, nil
}
func (p *fakeSyncPeer) SendAppend(ctx context.Context, req *raft.AppendRequest) (*raft.AppendReply, error) {
	return &raft.AppendReply{Term: req.Term, Success: true}, nil
}

func (p *fakeSyncPeer) SendSync(ctx context.Context, req *raft.SyncRequest) (*raft.SyncReply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tries++
	if p.tries <= p.failN {
		return nil, errors.New("simulated transient failure")
	}
	p.chunks = append(p.chunks, *req)
	return &raft.SyncReply{Term: req.Term, Success: true}, nil
}

func TestSnapshotSenderSplitsIntoChunks(t *testing.T) {
	peer := &fakeSyncPeer{}
	cfg := DefaultTransferConfig()
	cfg.ChunkSize = 4
	s := NewSnapshotSender(peer, cfg)

	blob := []byte("0123456789") // 3 chunks: 4, 4, 2
	if err := s.Send(context.Background(), 7, 100, 3, blob); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(peer.chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(peer.chunks))
	}
	var reassembled []byte
	for i, c := range peer.chunks {
		if c.Term != 7 || c.LastIncludedIndex != 100 || c.LastIncludedTerm != 3 {
			t.Fatalf("chunk %d carries wrong snapshot boundary: %+v", i, c)
		}
		reassembled = append(reassembled, c.Data...)
	}
	if string(reassembled) != "0123456789" {
		t.Fatalf("reassembled blob = %q, want %q", reassembled, "0123456789")
	}
	if !peer.chunks[2].Done {
		t.Fatal("expected the final chunk to be flagged Done")
	}
	if peer.chunks[0].Done || peer.chunks[1].Done {
		t.Fatal("only the final chunk should be flagged Done")
	}
}

func TestSnapshotSenderEmptyBlobSendsOneDoneChunk(t *testing.T) {
	peer := &fakeSyncPeer{}
	s := NewSnapshotSender(peer, DefaultTransferConfig())

	if err := s.Send(context.Background(), 1, 0, 0, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(peer.chunks) != 1 || !peer.chunks[0].Done {
		t.Fatalf("expected exactly one Done chunk for an empty blob, got %+v", peer.chunks)
	}
}

func TestSnapshotSenderRetriesTransientFailures(t *testing.T) {
	peer := &fakeSyncPeer{failN: 2}
	cfg := DefaultTransferConfig()
	cfg.RetryInterval = time.Millisecond
	cfg.MaxRetries = 5
	s := NewSnapshotSender(peer, cfg)

	if err := s.Send(context.Background(), 1, 0, 0, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(peer.chunks) != 1 {
		t.Fatalf("expected the chunk to eventually succeed, got %d delivered", len(peer.chunks))
	}
}

func TestSnapshotSenderGivesUpAfterMaxRetries(t *testing.T) {
	peer := &fakeSyncPeer{failN: 100}
	cfg := DefaultTransferConfig()
	cfg.RetryInterval = time.Millisecond
	cfg.MaxRetries = 3
	s := NewSnapshotSender(peer, cfg)

	err := s.Send(context.Background(), 1, 0, 0, []byte("hi"))
	if err == nil {
		t.Fatal("expected Send to give up and return an error")
	}
}
