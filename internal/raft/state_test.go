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

	ravelerrors "ravel/internal/errors"
)

func TestStateContextOpenTransitionsToFollower(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()

	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)

	kind, err := ctx.RoleKind(background)
	if err != nil {
		t.Fatalf("RoleKind: %v", err)
	}
	if kind != RoleFollower {
		t.Fatalf("got role %v, want Follower", kind)
	}
}

func TestStateContextCloseFailsPendingCommits(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}

	fut := NewFuture[*CommitResult]()
	done := make(chan struct{})
	ctx.exec.Post(func() {
		ctx.pending[99] = fut
		close(done)
	})
	<-done

	if err := ctx.Close(background); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err := fut.Wait(background)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Success {
		t.Fatal("expected pending commit to fail on Close")
	}
	rerr, ok := result.Err.(*ravelerrors.RavelError)
	if !ok || rerr.Category != ravelerrors.CategoryIllegalState {
		t.Fatalf("expected IllegalState category, got %v", result.Err)
	}
}

func TestSetTermClearsVoteAndLeader(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	ctx.persistent.VotedFor = "somebody"
	ctx.leader = "somebody"

	if !ctx.setTerm(5) {
		t.Fatal("expected setTerm to adopt a higher term")
	}
	if ctx.persistent.VotedFor != "" || ctx.leader != "" {
		t.Fatalf("setTerm should clear vote and leader, got VotedFor=%q leader=%q", ctx.persistent.VotedFor, ctx.leader)
	}
	if ctx.setTerm(5) {
		t.Fatal("setTerm should not adopt a term that is not strictly higher")
	}
}

func TestSetLastVotedForRejectsDoubleVote(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	if err := ctx.setLastVotedFor("a"); err != nil {
		t.Fatalf("first vote should succeed: %v", err)
	}
	err := ctx.setLastVotedFor("b")
	if err == nil {
		t.Fatal("expected double vote to be rejected")
	}
	rerr, ok := err.(*ravelerrors.RavelError)
	if !ok || rerr.Category != ravelerrors.CategoryIllegalState {
		t.Fatalf("expected IllegalState category error, got %v", err)
	}
	// Re-voting for the same candidate in the same term is idempotent.
	if err := ctx.setLastVotedFor("a"); err != nil {
		t.Fatalf("re-voting for the same candidate should succeed: %v", err)
	}
}

func TestSetCommitIndexRejectsDecrease(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	if err := ctx.setCommitIndex(10); err != nil {
		t.Fatalf("setCommitIndex(10): %v", err)
	}
	if err := ctx.setCommitIndex(5); err == nil {
		t.Fatal("expected commitIndex decrease to be rejected")
	}
}

func TestSetLastAppliedRejectsExceedingCommitIndex(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	if err := ctx.setCommitIndex(3); err != nil {
		t.Fatalf("setCommitIndex: %v", err)
	}
	if err := ctx.setLastApplied(4); err == nil {
		t.Fatal("expected lastApplied beyond commitIndex to be rejected")
	}
	if err := ctx.setLastApplied(3); err != nil {
		t.Fatalf("setLastApplied(3): %v", err)
	}
}

func TestLogUpToDate(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	if err := ctx.log.Open(); err != nil {
		t.Fatalf("log.Open: %v", err)
	}
	defer ctx.log.Close()
	if _, err := ctx.log.Append(1, []byte("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := ctx.log.Append(1, []byte("b")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// our last: term=1, index=2

	if !ctx.logUpToDate(2, 2) {
		t.Fatal("equal (term, index) should be up to date")
	}
	if !ctx.logUpToDate(2, 0) {
		t.Fatal("a higher term always wins regardless of index")
	}
	if ctx.logUpToDate(1, 1) {
		t.Fatal("a shorter log at the same term should not be up to date")
	}
	if ctx.logUpToDate(0, 99) {
		t.Fatal("a lower term should never be up to date even with a longer index")
	}
}

func TestElectionTimeoutPromotesFollowerToCandidate(t *testing.T) {
	ctx := newTestContext(t.TempDir(), "self", []MemberID{"peer"}, newScriptedDialer(), &memConsumer{}, &memSnapshotter{})
	background := context.Background()
	if err := ctx.Open(background); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close(background)

	waitFor(t, time.Second, func() bool {
		kind, _ := ctx.RoleKind(background)
		return kind == RoleCandidate
	})
}
