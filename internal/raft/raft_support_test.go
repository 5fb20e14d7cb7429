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

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ravel/internal/raftlog"
)

// memConsumer is an in-memory Consumer for tests: Apply just records the
// payload it was given and Read reports how many entries have applied.
type memConsumer struct {
	mu      sync.Mutex
	applied [][]byte
	failAt  uint64 // if non-zero, Apply at this index returns an error
}

func (c *memConsumer) Apply(index uint64, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, payload)
	if c.failAt != 0 && index == c.failAt {
		return nil, errors.New("simulated apply failure")
	}
	return []byte(fmt.Sprintf("ok:%d", index)), nil
}

func (c *memConsumer) Read(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []byte(fmt.Sprintf("applied:%d", len(c.applied))), nil
}

func (c *memConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.applied)
}

// memSnapshotter is an in-memory Snapshotter for tests.
type memSnapshotter struct {
	mu   sync.Mutex
	blob []byte
}

func (s *memSnapshotter) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.blob...), nil
}

func (s *memSnapshotter) Install(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = append([]byte(nil), blob...)
	return nil
}

// scriptedPeer is a Peer whose replies are supplied by test-provided
// functions; any unset function returns a zero-value success reply.
type scriptedPeer struct {
	pingFn   func(context.Context, *PingRequest) (*PingReply, error)
	pollFn   func(context.Context, *PollRequest) (*PollReply, error)
	appendFn func(context.Context, *AppendRequest) (*AppendReply, error)
	syncFn   func(context.Context, *SyncRequest) (*SyncReply, error)
}

func (p *scriptedPeer) SendPing(ctx context.Context, req *PingRequest) (*PingReply, error) {
	if p.pingFn != nil {
		return p.pingFn(ctx, req)
	}
	return &PingReply{Term: req.Term, Success: true}, nil
}

func (p *scriptedPeer) SendPoll(ctx context.Context, req *PollRequest) (*PollReply, error) {
	if p.pollFn != nil {
		return p.pollFn(ctx, req)
	}
	return &PollReply{Term: req.Term, VoteGranted: true}, nil
}

func (p *scriptedPeer) SendAppend(ctx context.Context, req *AppendRequest) (*AppendReply, error) {
	if p.appendFn != nil {
		return p.appendFn(ctx, req)
	}
	return &AppendReply{Term: req.Term, Success: true, LogIndexHint: req.PrevLogIndex + uint64(len(req.Entries))}, nil
}

func (p *scriptedPeer) SendSync(ctx context.Context, req *SyncRequest) (*SyncReply, error) {
	if p.syncFn != nil {
		return p.syncFn(ctx, req)
	}
	return &SyncReply{Term: req.Term, Success: true}, nil
}

// scriptedDialer resolves each MemberID to a pre-registered Peer.
type scriptedDialer struct {
	mu    sync.Mutex
	peers map[MemberID]Peer
}

func newScriptedDialer() *scriptedDialer {
	return &scriptedDialer{peers: make(map[MemberID]Peer)}
}

func (d *scriptedDialer) set(id MemberID, p Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[id] = p
}

func (d *scriptedDialer) Peer(id MemberID) (Peer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[id]
	if !ok {
		return nil, fmt.Errorf("no peer registered for %s", id)
	}
	return p, nil
}

// newTestContext builds an unopened StateContext backed by a real FileLog
// rooted at dir, wired to dialer/consumer/snap.
func newTestContext(dir string, local MemberID, members []MemberID, dialer PeerDialer, consumer Consumer, snap Snapshotter) *StateContext {
	cfg := Config{
		Local:             local,
		Members:           members,
		ElectionTimeout:   20 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
	}
	log := raftlog.NewFileLog(dir, string(local), 1<<20)
	return NewStateContext(cfg, log, dialer, consumer, snap)
}

func waitFor(t interface{ Fatalf(string, ...any) }, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}
