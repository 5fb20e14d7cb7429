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
	"fmt"
	"sort"
	"time"

	ravelerrors "ravel/internal/errors"

	"golang.org/x/sync/errgroup"
)

// strongQueryWaiter is a pending STRONG-consistency query blocked on the
// next successful heartbeat round confirming this node is still leader.
type strongQueryWaiter struct {
	req *QueryRequest
	fut *Future[*QueryResult]
}

// leaderRole drives replication: it owns nextIndex/matchIndex per peer,
// periodic heartbeats, commit-index advancement, and client submissions.
type leaderRole struct {
	ctx             *StateContext
	heartbeatTimer  *time.Timer
	queryWaiters    []*strongQueryWaiter
	confirmAcks     map[MemberID]bool
}

func (r *leaderRole) Kind() RoleKind { return RoleLeader }

func (r *leaderRole) open() {
	ctx := r.ctx
	ctx.stopElectionTimer()
	ctx.setLeader(ctx.local)

	lastIndex := ctx.log.LastIndex()
	ctx.leaderState = make(map[MemberID]*PeerProgress)
	for _, id := range ctx.membership.Voters() {
		ctx.leaderState[id] = &PeerProgress{NextIndex: lastIndex + 1, MatchIndex: 0}
	}

	r.sendHeartbeats()
	r.scheduleHeartbeat()
}

func (r *leaderRole) close() {
	if r.heartbeatTimer != nil {
		r.heartbeatTimer.Stop()
		r.heartbeatTimer = nil
	}
	for _, w := range r.queryWaiters {
		w.fut.Complete(&QueryResult{Success: false, Err: ravelerrors.NoLeader()}, nil)
	}
	r.queryWaiters = nil
	r.confirmAcks = nil
}

func (r *leaderRole) scheduleHeartbeat() {
	ctx := r.ctx
	interval := ctx.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	r.heartbeatTimer = time.AfterFunc(interval, func() {
		ctx.exec.Post(func() {
			if ctx.roleKind != RoleLeader {
				return
			}
			r.sendHeartbeats()
			r.scheduleHeartbeat()
		})
	})
}

// appendDispatch is one peer's fully-built Append request, computed
// synchronously against current leader state before any network I/O
// begins (ctx.log/ctx.leaderState must only ever be read on the
// executor goroutine, never concurrently).
type appendDispatch struct {
	peerID   MemberID
	req      *AppendRequest
	sentLast uint64
}

// buildAppendRequest prepares the Append carrying whatever entries peer
// still needs (possibly none, which is just a heartbeat). Must run on
// the executor goroutine.
func (r *leaderRole) buildAppendRequest(peerID MemberID, term uint64) *appendDispatch {
	ctx := r.ctx
	progress := ctx.leaderState[peerID]
	if progress == nil {
		return nil
	}

	prevIndex := progress.NextIndex - 1
	var prevTerm uint64
	if prevIndex > 0 {
		if e, err := ctx.log.Get(prevIndex); err == nil {
			prevTerm = e.Term
		}
	}

	lastIndex := ctx.log.LastIndex()
	var entries []LogEntry
	for i := progress.NextIndex; i <= lastIndex; i++ {
		e, err := ctx.log.Get(i)
		if err != nil {
			break
		}
		entries = append(entries, LogEntry{Index: e.Index, Term: e.Term, Payload: e.Payload})
	}

	req := &AppendRequest{
		Term: term, LeaderURI: ctx.local,
		PrevLogIndex: prevIndex, PrevLogTerm: prevTerm,
		Entries: entries, LeaderCommit: ctx.volatile.CommitIndex,
	}
	return &appendDispatch{peerID: peerID, req: req, sentLast: prevIndex + uint64(len(entries))}
}

// sendHeartbeats replicates to every voting peer. Requests are built
// synchronously against current leader state, then the actual RPCs fan
// out concurrently via an errgroup; each reply is posted back onto the
// executor as soon as it arrives rather than waiting for the slowest
// peer, so a single unreachable follower never delays the others'
// matchIndex/commitIndex progress.
func (r *leaderRole) sendHeartbeats() {
	ctx := r.ctx
	term := ctx.persistent.CurrentTerm

	var dispatches []*appendDispatch
	for _, peerID := range ctx.membership.Voters() {
		if d := r.buildAppendRequest(peerID, term); d != nil {
			dispatches = append(dispatches, d)
		}
	}

	var g errgroup.Group
	for _, d := range dispatches {
		d := d
		g.Go(func() error {
			peer, err := ctx.dialer.Peer(d.peerID)
			if err != nil {
				return fmt.Errorf("dial %s: %w", d.peerID, err)
			}
			reply, err := peer.SendAppend(context.Background(), d.req)
			if err != nil {
				return fmt.Errorf("append %s: %w", d.peerID, err)
			}
			ctx.exec.Post(func() {
				r.handleAppendReply(term, d.peerID, d.sentLast, reply)
			})
			return nil
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			ctx.logger.Debug("replication round finished with unreachable peers", "term", term, "err", err)
		}
	}()
}

func (r *leaderRole) handleAppendReply(term uint64, peerID MemberID, sentLast uint64, reply *AppendReply) {
	ctx := r.ctx
	if ctx.roleKind != RoleLeader || ctx.persistent.CurrentTerm != term {
		return // stale: no longer leader, or a newer term has since begun
	}
	if reply.Term > ctx.persistent.CurrentTerm {
		ctx.setTerm(reply.Term)
		ctx.transition(RoleFollower)
		return
	}

	progress := ctx.leaderState[peerID]
	if progress == nil {
		return
	}

	if reply.Success {
		if sentLast > progress.MatchIndex {
			progress.MatchIndex = sentLast
		}
		progress.NextIndex = progress.MatchIndex + 1
		r.markConfirmAck(peerID)
		r.advanceCommitIndex()
		return
	}

	if reply.ConflictIndex > 0 {
		progress.NextIndex = reply.ConflictIndex
	} else if progress.NextIndex > 1 {
		progress.NextIndex--
	}
}

// advanceCommitIndex finds the highest N > commitIndex replicated on a
// majority with log[N].term == currentTerm (entries from prior terms
// never advance commit on their own, per the Raft commit rule).
func (r *leaderRole) advanceCommitIndex() {
	ctx := r.ctx
	matches := make([]uint64, 0, len(ctx.leaderState)+1)
	matches = append(matches, ctx.log.LastIndex())
	for _, p := range ctx.leaderState {
		matches = append(matches, p.MatchIndex)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	majorityIndex := matches[(len(matches)-1)/2]

	if majorityIndex <= ctx.volatile.CommitIndex {
		return
	}
	entry, err := ctx.log.Get(majorityIndex)
	if err != nil || entry.Term != ctx.persistent.CurrentTerm {
		return
	}
	if err := ctx.setCommitIndex(majorityIndex); err != nil {
		ctx.logger.Error("setCommitIndex failed", "error", err)
		return
	}
	runApplyLoop(ctx)
}

func (r *leaderRole) markConfirmAck(peerID MemberID) {
	if r.confirmAcks == nil {
		return
	}
	r.confirmAcks[peerID] = true
	if len(r.confirmAcks)+1 < r.ctx.membership.Quorum() {
		return
	}
	waiters := r.queryWaiters
	r.queryWaiters = nil
	r.confirmAcks = nil
	for _, w := range waiters {
		result, err := r.ctx.consume.Read(w.req.Payload)
		w.fut.Complete(&QueryResult{Success: err == nil, Result: result, Err: err}, nil)
	}
}

func (r *leaderRole) onCommit(req *CommitRequest, fut *Future[*CommitResult]) {
	ctx := r.ctx
	index, err := ctx.log.Append(ctx.persistent.CurrentTerm, req.Payload)
	if err != nil {
		fut.Complete(&CommitResult{Success: false, Err: ravelerrors.LogIOError(err)}, nil)
		return
	}
	ctx.pending[index] = fut
	r.advanceCommitIndex() // handles the single-node cluster, where no peer ack is needed
	r.sendHeartbeats()
}

func (r *leaderRole) onQuery(req *QueryRequest, fut *Future[*QueryResult]) {
	ctx := r.ctx
	switch req.Consistency {
	case WEAK, LEASE:
		result, err := ctx.consume.Read(req.Payload)
		fut.Complete(&QueryResult{Success: err == nil, Result: result, Err: err}, nil)
	default: // STRONG
		r.queryWaiters = append(r.queryWaiters, &strongQueryWaiter{req: req, fut: fut})
		if r.confirmAcks == nil {
			r.confirmAcks = make(map[MemberID]bool)
		}
		if len(ctx.membership.Voters()) == 0 {
			// single-node cluster: this node alone is already the quorum
			r.markConfirmAck("")
			return
		}
		r.sendHeartbeats()
	}
}

func (r *leaderRole) onPing(req *PingRequest) *PingReply {
	ctx := r.ctx
	if req.Term > ctx.persistent.CurrentTerm {
		ctx.setTerm(req.Term)
		ctx.transition(RoleFollower)
		return ctx.role.onPing(req)
	}
	return &PingReply{Term: ctx.persistent.CurrentTerm, Success: false}
}

func (r *leaderRole) onPoll(req *PollRequest) *PollReply {
	ctx := r.ctx
	if req.Term > ctx.persistent.CurrentTerm {
		ctx.setTerm(req.Term)
		ctx.transition(RoleFollower)
		return ctx.role.onPoll(req)
	}
	return &PollReply{Term: ctx.persistent.CurrentTerm, VoteGranted: false}
}

func (r *leaderRole) onAppend(req *AppendRequest) *AppendReply {
	ctx := r.ctx
	if req.Term > ctx.persistent.CurrentTerm {
		ctx.setTerm(req.Term)
		ctx.transition(RoleFollower)
		return ctx.role.onAppend(req)
	}
	return &AppendReply{Term: ctx.persistent.CurrentTerm, Success: false}
}

func (r *leaderRole) onSync(req *SyncRequest) *SyncReply {
	ctx := r.ctx
	if req.Term > ctx.persistent.CurrentTerm {
		ctx.setTerm(req.Term)
		ctx.transition(RoleFollower)
		return ctx.role.onSync(req)
	}
	return &SyncReply{Term: ctx.persistent.CurrentTerm, Success: false}
}
