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
	ravelerrors "ravel/internal/errors"
	"ravel/internal/raftlog"
)

// followerRole is passive: it accepts AppendEntries from the current
// leader, grants or denies votes, and becomes a Candidate if the
// election timer expires with no leader known.
type followerRole struct {
	ctx     *StateContext
	syncBuf []byte
}

func (r *followerRole) Kind() RoleKind { return RoleFollower }

func (r *followerRole) open() {
	r.ctx.resetElectionTimer()
}

func (r *followerRole) close() {
	r.ctx.stopElectionTimer()
}

func (r *followerRole) onPing(req *PingRequest) *PingReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &PingReply{Term: ctx.persistent.CurrentTerm, Success: false}
	}
	ctx.setTerm(req.Term)
	ctx.setLeader(req.LeaderURI)
	ctx.resetElectionTimer()
	if r.logMatchesLeader(req.LastLogIndex, req.LastLogTerm) {
		r.advanceCommit(req.CommitIndex)
	}
	return &PingReply{Term: ctx.persistent.CurrentTerm, Success: true}
}

// logMatchesLeader reports whether this follower's log agrees with the
// leader at the LastLogIndex/LastLogTerm carried by a Ping. Ping is a
// zero-entry Append used purely for liveness and commit propagation,
// but unlike onAppend it carries no PrevLogIndex/PrevLogTerm to
// validate against; advancing commitIndex off it unconditionally would
// let a follower holding a divergent, un-reconciled tail (same index,
// wrong term) apply entries the leader never wrote. If this follower's
// log doesn't yet reach LastLogIndex, the match is unconfirmed and
// commitIndex must wait for a real AppendEntries or Sync to catch it
// up and reconcile the tail.
func (r *followerRole) logMatchesLeader(lastLogIndex, lastLogTerm uint64) bool {
	if lastLogIndex == 0 {
		return true
	}
	ctx := r.ctx
	if ctx.log.LastIndex() < lastLogIndex || !ctx.log.ContainsEntry(lastLogIndex) {
		return false
	}
	entry, err := ctx.log.Get(lastLogIndex)
	return err == nil && entry.Term == lastLogTerm
}

func (r *followerRole) onPoll(req *PollRequest) *PollReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &PollReply{Term: ctx.persistent.CurrentTerm, VoteGranted: false}
	}
	ctx.setTerm(req.Term)

	granted := false
	if (ctx.persistent.VotedFor == "" || ctx.persistent.VotedFor == req.CandidateURI) &&
		ctx.logUpToDate(req.LastLogTerm, req.LastLogIndex) {
		if err := ctx.setLastVotedFor(req.CandidateURI); err == nil {
			granted = true
			ctx.resetElectionTimer()
		}
	}
	return &PollReply{Term: ctx.persistent.CurrentTerm, VoteGranted: granted}
}

func (r *followerRole) onAppend(req *AppendRequest) *AppendReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &AppendReply{Term: ctx.persistent.CurrentTerm, Success: false}
	}
	ctx.setTerm(req.Term)
	ctx.setLeader(req.LeaderURI)
	ctx.resetElectionTimer()

	if req.PrevLogIndex > 0 {
		if !ctx.log.ContainsEntry(req.PrevLogIndex) {
			return &AppendReply{
				Term: ctx.persistent.CurrentTerm, Success: false,
				ConflictIndex: ctx.log.LastIndex() + 1,
			}
		}
		prevEntry, err := ctx.log.Get(req.PrevLogIndex)
		if err != nil || prevEntry.Term != req.PrevLogTerm {
			conflictTerm := uint64(0)
			if err == nil {
				conflictTerm = prevEntry.Term
			}
			return &AppendReply{
				Term: ctx.persistent.CurrentTerm, Success: false,
				ConflictIndex: r.firstIndexOfTerm(conflictTerm, req.PrevLogIndex),
				ConflictTerm:  conflictTerm,
			}
		}
	}

	nextIndex := req.PrevLogIndex + 1
	for i, e := range req.Entries {
		idx := nextIndex + uint64(i)
		if ctx.log.ContainsEntry(idx) {
			existing, err := ctx.log.Get(idx)
			if err == nil && existing.Term == e.Term {
				continue // already durable and matching; a resend, not a conflict
			}
			if idx <= ctx.volatile.CommitIndex {
				ctx.logger.Error("leader asked to truncate a committed entry", "index", idx)
				return &AppendReply{Term: ctx.persistent.CurrentTerm, Success: false}
			}
			if err := ctx.log.Truncate(idx); err != nil {
				ctx.logger.Error("truncate failed", "error", err)
				return &AppendReply{Term: ctx.persistent.CurrentTerm, Success: false}
			}
		}
		if _, err := ctx.log.Append(e.Term, e.Payload); err != nil {
			ctx.logger.Error("append failed", "error", err)
			return &AppendReply{Term: ctx.persistent.CurrentTerm, Success: false}
		}
	}

	r.advanceCommit(req.LeaderCommit)
	return &AppendReply{Term: ctx.persistent.CurrentTerm, Success: true, LogIndexHint: ctx.log.LastIndex()}
}

// advanceCommit applies leaderCommit = min(leaderCommit, log.lastIndex)
// and runs the apply loop if commitIndex moved.
func (r *followerRole) advanceCommit(leaderCommit uint64) {
	ctx := r.ctx
	if leaderCommit <= ctx.volatile.CommitIndex {
		return
	}
	newCommit := leaderCommit
	if ctx.log.LastIndex() < newCommit {
		newCommit = ctx.log.LastIndex()
	}
	if newCommit <= ctx.volatile.CommitIndex {
		return
	}
	if err := ctx.setCommitIndex(newCommit); err != nil {
		ctx.logger.Error("setCommitIndex failed", "error", err)
		return
	}
	runApplyLoop(ctx)
}

// firstIndexOfTerm walks backward from fromIndex to find the first index
// still carrying conflictTerm, the standard fast-backtrack hint. A term
// of 0 (prevLogIndex missing entirely) just echoes fromIndex.
func (r *followerRole) firstIndexOfTerm(conflictTerm, fromIndex uint64) uint64 {
	if conflictTerm == 0 {
		return fromIndex
	}
	idx := fromIndex
	first := r.ctx.log.FirstIndex()
	for idx > first {
		e, err := r.ctx.log.Get(idx - 1)
		if err != nil || e.Term != conflictTerm {
			break
		}
		idx--
	}
	return idx
}

func (r *followerRole) onSync(req *SyncRequest) *SyncReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &SyncReply{Term: ctx.persistent.CurrentTerm, Success: false}
	}
	ctx.setTerm(req.Term)
	ctx.resetElectionTimer()

	if req.Offset == 0 {
		r.syncBuf = nil
	}
	r.syncBuf = append(r.syncBuf, req.Data...)
	if !req.Done {
		return &SyncReply{Term: ctx.persistent.CurrentTerm, Success: true}
	}

	snap := raftlog.Snapshot{
		LastIncludedIndex: req.LastIncludedIndex,
		LastIncludedTerm:  req.LastIncludedTerm,
		Blob:              r.syncBuf,
	}
	r.syncBuf = nil
	if err := installSnapshot(ctx, snap); err != nil {
		ctx.logger.Error("snapshot install failed", "error", err)
		return &SyncReply{Term: ctx.persistent.CurrentTerm, Success: false}
	}
	return &SyncReply{Term: ctx.persistent.CurrentTerm, Success: true}
}

// onQuery: WEAK reads local state immediately; STRONG/LEASE on a
// follower are forwarded by the caller to the known leader.
func (r *followerRole) onQuery(req *QueryRequest, fut *Future[*QueryResult]) {
	ctx := r.ctx
	if req.Consistency == WEAK {
		result, err := ctx.consume.Read(req.Payload)
		fut.Complete(&QueryResult{Success: err == nil, Result: result, Err: err}, nil)
		return
	}
	if ctx.leader == "" {
		fut.Complete(&QueryResult{Success: false, Err: ravelerrors.NoLeader()}, nil)
		return
	}
	fut.Complete(&QueryResult{Success: false, LeaderHint: ctx.leader, Err: ravelerrors.NotLeader(string(ctx.leader))}, nil)
}

func (r *followerRole) onCommit(req *CommitRequest, fut *Future[*CommitResult]) {
	ctx := r.ctx
	if ctx.leader == "" {
		fut.Complete(&CommitResult{Success: false, Err: ravelerrors.NoLeader()}, nil)
		return
	}
	fut.Complete(&CommitResult{Success: false, LeaderHint: ctx.leader, Err: ravelerrors.NotLeader(string(ctx.leader))}, nil)
}
