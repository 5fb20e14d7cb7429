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

	"ravel/internal/raftlog"
)

func TestRunApplyLoopAppliesInOrderAndResolvesFutures(t *testing.T) {
	consumer := &memConsumer{}
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), consumer, &memSnapshotter{})
	if err := ctx.log.Open(); err != nil {
		t.Fatalf("log.Open: %v", err)
	}
	defer ctx.log.Close()

	for i := 0; i < 3; i++ {
		if _, err := ctx.log.Append(1, []byte{byte('a' + i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := ctx.setCommitIndex(3); err != nil {
		t.Fatalf("setCommitIndex: %v", err)
	}

	futs := make([]*Future[*CommitResult], 3)
	for i := range futs {
		futs[i] = NewFuture[*CommitResult]()
		ctx.pending[uint64(i+1)] = futs[i]
	}

	runApplyLoop(ctx)

	if ctx.volatile.LastApplied != 3 {
		t.Fatalf("expected lastApplied to reach 3, got %d", ctx.volatile.LastApplied)
	}
	if consumer.count() != 3 {
		t.Fatalf("expected 3 entries applied, got %d", consumer.count())
	}
	for i, f := range futs {
		res, err := f.Wait(context.Background())
		if err != nil {
			t.Fatalf("future %d: %v", i, err)
		}
		if !res.Success {
			t.Fatalf("future %d: expected success, got %+v", i, res)
		}
	}
	if len(ctx.pending) != 0 {
		t.Fatalf("expected all resolved futures removed from pending, got %d remaining", len(ctx.pending))
	}
}

func TestRunApplyLoopAdvancesPastAFailedApply(t *testing.T) {
	consumer := &memConsumer{failAt: 2}
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), consumer, &memSnapshotter{})
	if err := ctx.log.Open(); err != nil {
		t.Fatalf("log.Open: %v", err)
	}
	defer ctx.log.Close()

	for i := 0; i < 2; i++ {
		if _, err := ctx.log.Append(1, []byte{byte('a' + i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := ctx.setCommitIndex(2); err != nil {
		t.Fatalf("setCommitIndex: %v", err)
	}

	failing := NewFuture[*CommitResult]()
	ctx.pending[2] = failing

	runApplyLoop(ctx)

	if ctx.volatile.LastApplied != 2 {
		t.Fatalf("a failed Apply must not stall lastApplied, got %d", ctx.volatile.LastApplied)
	}
	res, err := failing.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Success {
		t.Fatal("expected the failing entry's future to resolve unsuccessfully")
	}
}

func TestInstallSnapshotAdvancesCommitAndAppliedIndex(t *testing.T) {
	snap := &memSnapshotter{}
	ctx := newTestContext(t.TempDir(), "self", nil, newScriptedDialer(), &memConsumer{}, snap)
	if err := ctx.log.Open(); err != nil {
		t.Fatalf("log.Open: %v", err)
	}
	defer ctx.log.Close()

	err := installSnapshot(ctx, raftlog.Snapshot{LastIncludedIndex: 5, LastIncludedTerm: 2, Blob: []byte("state")})
	if err != nil {
		t.Fatalf("installSnapshot: %v", err)
	}
	if ctx.volatile.CommitIndex != 5 || ctx.volatile.LastApplied != 5 {
		t.Fatalf("expected commit/applied to fast-forward to 5, got commit=%d applied=%d", ctx.volatile.CommitIndex, ctx.volatile.LastApplied)
	}
	blob, _ := snap.Snapshot()
	if string(blob) != "state" {
		t.Fatalf("expected the blob to be installed into the snapshotter, got %q", blob)
	}
}
