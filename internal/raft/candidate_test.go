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

func becomeCandidate(t *testing.T, ctx *StateContext) {
	t.Helper()
	done := make(chan struct{})
	ctx.exec.Post(func() {
		ctx.transition(RoleCandidate)
		close(done)
	})
	<-done
}

func TestCandidateBecomesLeaderOnQuorum(t *testing.T) {
	dialer := newScriptedDialer()
	dialer.set("p1", &scriptedPeer{})
	dialer.set("p2", &scriptedPeer{})

	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1", "p2"}, dialer, &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)

	becomeCandidate(t, ctx)
	waitFor(t, time.Second, func() bool {
		kind, _ := ctx.RoleKind(background)
		return kind == RoleLeader
	})
}

func TestCandidateSingleNodeBecomesLeaderImmediately(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)

	// With no peers, the self-vote alone is a quorum: requestVotes would
	// dispatch no RPCs, so waiting on a peer reply would hang forever.
	becomeCandidate(t, ctx)
	waitFor(t, time.Second, func() bool {
		kind, _ := ctx.RoleKind(background)
		return kind == RoleLeader
	})
}

func TestCandidateStaysCandidateWithoutQuorum(t *testing.T) {
	dialer := newScriptedDialer()
	dialer.set("p1", &scriptedPeer{pollFn: func(_ context.Context, req *PollRequest) (*PollReply, error) {
		return &PollReply{Term: req.Term, VoteGranted: false}, nil
	}})
	dialer.set("p2", &scriptedPeer{pollFn: func(_ context.Context, req *PollRequest) (*PollReply, error) {
		return &PollReply{Term: req.Term, VoteGranted: false}, nil
	}})

	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1", "p2"}, dialer, &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)

	becomeCandidate(t, ctx)
	time.Sleep(50 * time.Millisecond)

	kind, _ := ctx.RoleKind(background)
	if kind != RoleCandidate {
		t.Fatalf("expected to remain Candidate without a quorum of votes, got %v", kind)
	}
}

func TestCandidateStepsDownOnHigherTermPollReply(t *testing.T) {
	dialer := newScriptedDialer()
	dialer.set("p1", &scriptedPeer{pollFn: func(_ context.Context, req *PollRequest) (*PollReply, error) {
		return &PollReply{Term: req.Term + 10, VoteGranted: false}, nil
	}})

	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, dialer, &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)

	becomeCandidate(t, ctx)
	waitFor(t, time.Second, func() bool {
		kind, _ := ctx.RoleKind(background)
		return kind == RoleFollower
	})
}

func TestCandidateDeniesVoteAtSameTerm(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeCandidate(t, ctx)

	var term uint64
	done := make(chan struct{})
	ctx.exec.Post(func() {
		term = ctx.persistent.CurrentTerm
		close(done)
	})
	<-done

	reply, err := ctx.Poll(background, &PollRequest{Term: term, CandidateURI: "other"})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if reply.VoteGranted {
		t.Fatal("a candidate that already voted for itself this term must deny other requests")
	}
}

func TestCandidateStepsDownOnHigherTermAppend(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeCandidate(t, ctx)

	reply, err := ctx.Append(background, &AppendRequest{Term: 1000, LeaderURI: "new-leader"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !reply.Success {
		t.Fatalf("expected the candidate to step down and accept the Append, got %+v", reply)
	}

	kind, _ := ctx.RoleKind(background)
	if kind != RoleFollower {
		t.Fatalf("expected Follower after observing a higher-term leader, got %v", kind)
	}
}

func TestCandidateQueryWeakStillServed(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeCandidate(t, ctx)

	result, err := ctx.Query(&QueryRequest{Consistency: WEAK}).Wait(background)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected WEAK query to succeed mid-election, got %+v", result)
	}
}

func TestCandidateCommitAlwaysFails(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"p1"}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)
	becomeCandidate(t, ctx)

	result, err := ctx.Commit(&CommitRequest{Payload: []byte("x")}).Wait(background)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Success {
		t.Fatal("a candidate must never accept a commit")
	}
}
