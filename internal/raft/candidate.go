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

	ravelerrors "ravel/internal/errors"

	"golang.org/x/sync/errgroup"
)

// candidateRole actively solicits votes for a new term. It transitions
// to Leader on a majority of grants, or back to Follower on observing a
// higher term or a legitimate leader's AppendEntries.
type candidateRole struct {
	ctx     *StateContext
	votes   map[MemberID]bool
	granted int
}

func (r *candidateRole) Kind() RoleKind { return RoleCandidate }

func (r *candidateRole) open() {
	ctx := r.ctx
	ctx.persistent.CurrentTerm++
	ctx.persistent.VotedFor = ctx.local
	ctx.leader = ""
	ctx.status = IN_PROGRESS
	ctx.saveMetadata()
	ctx.publishStatus()

	r.votes = map[MemberID]bool{ctx.local: true}
	r.granted = 1
	ctx.resetElectionTimer()

	// A single-node (or otherwise self-quorum) membership grants
	// leadership off the self-vote alone: requestVotes below would
	// dispatch no RPCs, so handlePollReply would never run and this
	// candidate would sit here until its election timer fires again.
	if r.granted >= ctx.membership.Quorum() {
		ctx.transition(RoleLeader)
		return
	}

	r.requestVotes()
}

func (r *candidateRole) close() {
	r.ctx.stopElectionTimer()
}

// requestVotes fans Poll out to every voting peer concurrently via an
// errgroup, so a panic in one dial/RPC can't take the others down
// silently. Each reply is still posted back onto the executor as soon as
// it arrives, so a candidate becomes Leader the instant a quorum grants
// its vote rather than waiting for every peer to answer; the group's
// aggregate error is only used for logging once the slowest peer
// finishes.
func (r *candidateRole) requestVotes() {
	ctx := r.ctx
	term := ctx.persistent.CurrentTerm
	req := &PollRequest{
		Term:         term,
		CandidateURI: ctx.local,
		LastLogIndex: ctx.log.LastIndex(),
		LastLogTerm:  ctx.log.LastTerm(),
	}

	var g errgroup.Group
	for _, peerID := range ctx.membership.Voters() {
		peerID := peerID
		g.Go(func() error {
			peer, err := ctx.dialer.Peer(peerID)
			if err != nil {
				return fmt.Errorf("dial %s: %w", peerID, err)
			}
			reply, err := peer.SendPoll(context.Background(), req)
			if err != nil {
				return fmt.Errorf("poll %s: %w", peerID, err)
			}
			ctx.exec.Post(func() {
				r.handlePollReply(term, peerID, reply)
			})
			return nil
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			ctx.logger.Debug("vote round finished with unreachable peers", "term", term, "err", err)
		}
	}()
}

func (r *candidateRole) handlePollReply(term uint64, peerID MemberID, reply *PollReply) {
	ctx := r.ctx
	if ctx.roleKind != RoleCandidate || ctx.persistent.CurrentTerm != term {
		return // stale reply for an election this node has already left
	}
	if reply.Term > ctx.persistent.CurrentTerm {
		ctx.setTerm(reply.Term)
		ctx.transition(RoleFollower)
		return
	}
	if reply.VoteGranted && !r.votes[peerID] {
		r.votes[peerID] = true
		r.granted++
		if r.granted >= ctx.membership.Quorum() {
			ctx.transition(RoleLeader)
		}
	}
}

func (r *candidateRole) onPing(req *PingRequest) *PingReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &PingReply{Term: ctx.persistent.CurrentTerm, Success: false}
	}
	ctx.setTerm(req.Term)
	ctx.transition(RoleFollower)
	return ctx.role.onPing(req)
}

func (r *candidateRole) onPoll(req *PollRequest) *PollReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &PollReply{Term: ctx.persistent.CurrentTerm, VoteGranted: false}
	}
	if req.Term > ctx.persistent.CurrentTerm {
		ctx.setTerm(req.Term)
		ctx.transition(RoleFollower)
		return ctx.role.onPoll(req)
	}
	// same term: this node already voted for itself
	return &PollReply{Term: ctx.persistent.CurrentTerm, VoteGranted: false}
}

func (r *candidateRole) onAppend(req *AppendRequest) *AppendReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &AppendReply{Term: ctx.persistent.CurrentTerm, Success: false}
	}
	ctx.setTerm(req.Term)
	ctx.transition(RoleFollower)
	return ctx.role.onAppend(req)
}

func (r *candidateRole) onSync(req *SyncRequest) *SyncReply {
	ctx := r.ctx
	if req.Term < ctx.persistent.CurrentTerm {
		return &SyncReply{Term: ctx.persistent.CurrentTerm, Success: false}
	}
	ctx.setTerm(req.Term)
	ctx.transition(RoleFollower)
	return ctx.role.onSync(req)
}

func (r *candidateRole) onQuery(req *QueryRequest, fut *Future[*QueryResult]) {
	if req.Consistency == WEAK {
		result, err := r.ctx.consume.Read(req.Payload)
		fut.Complete(&QueryResult{Success: err == nil, Result: result, Err: err}, nil)
		return
	}
	fut.Complete(&QueryResult{Success: false, Err: ravelerrors.NoLeader()}, nil)
}

func (r *candidateRole) onCommit(req *CommitRequest, fut *Future[*CommitResult]) {
	fut.Complete(&CommitResult{Success: false, Err: ravelerrors.NoLeader()}, nil)
}
