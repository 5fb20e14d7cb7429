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
	"testing"
	"time"
)

func becomeLeader(t *testing.T, ctx *StateContext) {
	t.Helper()
	done := make(chan struct{})
	ctx.exec.Post(func() {
		ctx.transition(RoleLeader)
		close(done)
	})
	<-done
}

func TestLeaderSingleNodeCommitsImmediately(t *testing.T) {
	consumer := &memConsumer{}
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), consumer, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeLeader(t, ctx)

	result, err := ctx.Commit(&CommitRequest{Payload: []byte("v1")}).Wait(background)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected a single-node cluster to commit immediately, got %+v", result)
	}
	if consumer.count() != 1 {
		t.Fatalf("expected the consumer to have applied 1 entry, got %d", consumer.count())
	}
}

func TestLeaderMultiNodeCommitsOnQuorumAck(t *testing.T) {
	dialer := newScriptedDialer()
	dialer.set("p1", &scriptedPeer{})

	consumer := &memConsumer{}
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, dialer, consumer, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeLeader(t, ctx)

	deadline, cancel := context.WithTimeout(background, 2*time.Second)
	defer cancel()
	result, err := ctx.Commit(&CommitRequest{Payload: []byte("v1")}).Wait(deadline)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected commit to succeed once the sole peer acks, got %+v", result)
	}
}

func TestLeaderCommitNeverAcknowledgedStaysPending(t *testing.T) {
	dialer := newScriptedDialer()
	dialer.set("p1", &scriptedPeer{appendFn: func(_ context.Context, req *AppendRequest) (*AppendReply, error) {
		return &AppendReply{Term: req.Term, Success: false, ConflictIndex: 1}, nil
	}})

	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, dialer, &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeLeader(t, ctx)

	deadline, cancel := context.WithTimeout(background, 100*time.Millisecond)
	defer cancel()
	_, err := ctx.Commit(&CommitRequest{Payload: []byte("v1")}).Wait(deadline)
	if err == nil {
		t.Fatal("expected the commit to remain pending when the only peer never acks success")
	}
}

func TestLeaderStrongQuerySingleNode(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeLeader(t, ctx)

	result, err := ctx.Query(&QueryRequest{Consistency: STRONG}).Wait(background)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Fatalf("a lone leader is its own quorum, expected success, got %+v", result)
	}
}

func TestLeaderStrongQueryWaitsForHeartbeatQuorum(t *testing.T) {
	dialer := newScriptedDialer()
	dialer.set("p1", &scriptedPeer{})

	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, dialer, &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeLeader(t, ctx)

	deadline, cancel := context.WithTimeout(background, 2*time.Second)
	defer cancel()
	result, err := ctx.Query(&QueryRequest{Consistency: STRONG}).Wait(deadline)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected STRONG query to succeed once the heartbeat round confirms leadership, got %+v", result)
	}
}

func TestLeaderStepsDownOnHigherTermAppend(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeLeader(t, ctx)

	reply, err := ctx.Append(background, &AppendRequest{Term: 999, LeaderURI: "new-leader"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !reply.Success {
		t.Fatalf("expected the deposed leader to step down and accept the Append, got %+v", reply)
	}
	kind, _ := ctx.RoleKind(background)
	if kind != RoleFollower {
		t.Fatalf("expected Follower after observing a higher-term leader, got %v", kind)
	}
}

func TestLeaderRejectsPollAtSameTerm(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeLeader(t, ctx)

	var term uint64
	done := make(chan struct{})
	ctx.exec.Post(func() {
		term = ctx.persistent.CurrentTerm
		close(done)
	})
	<-done

	reply, err := ctx.Poll(background, &PollRequest{Term: term, CandidateURI: "p1"})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if reply.VoteGranted {
		t.Fatal("an acting leader must never grant a vote in its own term")
	}
}

func TestLeaderOnCloseFailsPendingStrongQueries(t *testing.T) {
	dialer := newScriptedDialer()
	dialer.set("p1", &scriptedPeer{appendFn: func(_ context.Context, req *AppendRequest) (*AppendReply, error) {
		// Never succeeds, so the STRONG query can never confirm before Close.
		return &AppendReply{Term: req.Term, Success: false, ConflictIndex: 1}, nil
	}})

	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, dialer, &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	becomeLeader(t, ctx)

	fut := ctx.Query(&QueryRequest{Consistency: STRONG})
	time.Sleep(10 * time.Millisecond)
	if err := ctx.Close(background); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err := fut.Wait(background)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Success {
		t.Fatal("expected the pending STRONG query to fail once the resource closes")
	}
}
