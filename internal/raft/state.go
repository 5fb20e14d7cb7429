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
	"math/rand"
	"time"

	ravelerrors "ravel/internal/errors"
	"ravel/internal/logging"
	"ravel/internal/raftlog"
)

// Config bundles the timing and membership parameters a StateContext
// needs at construction. ElectionTimeout/HeartbeatInterval mirror the
// top-level config package's fields so callers can pass them through
// unchanged.
type Config struct {
	Local             MemberID
	Members           []MemberID
	ElectionTimeout   time.Duration
	HeartbeatInterval time.Duration
}

// StateContext owns all Raft state for one resource and the currently
// active role. Every method that touches state posts onto ctx.exec and
// returns a Future; nothing here blocks on network or disk I/O directly
// except the Executor goroutine itself, which may pause on log I/O
// without blocking any other resource.
type StateContext struct {
	local   MemberID
	cfg     Config
	log     raftlog.Log
	dialer  PeerDialer
	consume Consumer
	snap    Snapshotter

	exec     *Executor
	observer *Observer
	logger   *logging.Logger

	persistent PersistentState
	volatile   VolatileState
	membership *Membership
	leader     MemberID
	status     ElectionStatus

	leaderState map[MemberID]*PeerProgress

	role     Role
	roleKind RoleKind

	pending map[uint64]*Future[*CommitResult]

	electionTimer *time.Timer
	closed        bool
}

// NewStateContext builds a StateContext in the closed state. Call Open
// to load the log and arm the election timer.
func NewStateContext(cfg Config, log raftlog.Log, dialer PeerDialer, consumer Consumer, snap Snapshotter) *StateContext {
	members := make([]MemberID, 0, len(cfg.Members))
	for _, m := range cfg.Members {
		if m != cfg.Local {
			members = append(members, m)
		}
	}
	ctx := &StateContext{
		local:       cfg.Local,
		cfg:         cfg,
		log:         log,
		dialer:      dialer,
		consume:     consumer,
		snap:        snap,
		exec:        NewExecutor(256),
		observer:    NewObserver(),
		logger:      logging.NewLogger("raft.state").With("member", string(cfg.Local)),
		membership:  NewMembership(cfg.Local, members),
		leaderState: make(map[MemberID]*PeerProgress),
		pending:     make(map[uint64]*Future[*CommitResult]),
		roleKind:    RoleStart,
	}
	ctx.role = &startRole{ctx: ctx}
	return ctx
}

// Observer exposes the (term, leader, status) pub/sub for external
// subscribers (audit, CLI status lines).
func (ctx *StateContext) Observer() *Observer { return ctx.observer }

// RoleKind returns the currently active role variant. Safe to call from
// any goroutine; it only reads through a future round-trip through the
// executor, so treat the answer as a snapshot that may already be stale.
func (ctx *StateContext) RoleKind(c context.Context) (RoleKind, error) {
	fut := NewFuture[RoleKind]()
	ctx.exec.Post(func() {
		fut.Complete(ctx.roleKind, nil)
	})
	return fut.Wait(c)
}

// Open loads the durable log and metadata, seeds persistent state, and
// transitions Start -> Follower, arming the election timeout.
func (ctx *StateContext) Open(c context.Context) error {
	fut := NewFuture[struct{}]()
	ctx.exec.Post(func() {
		if err := ctx.log.Open(); err != nil {
			fut.Complete(struct{}{}, ravelerrors.LogIOError(err))
			return
		}
		meta, err := ctx.log.LoadMetadata()
		if err != nil {
			fut.Complete(struct{}{}, ravelerrors.LogIOError(err))
			return
		}
		ctx.persistent = PersistentState{CurrentTerm: meta.CurrentTerm, VotedFor: MemberID(meta.VotedFor)}
		if snap, ok, err := ctx.log.LoadSnapshot(); err == nil && ok {
			ctx.volatile.CommitIndex = snap.LastIncludedIndex
			ctx.volatile.LastApplied = snap.LastIncludedIndex
		}
		ctx.closed = false
		ctx.transition(RoleFollower)
		fut.Complete(struct{}{}, nil)
	})
	_, err := fut.Wait(c)
	return err
}

// Close cancels any in-flight election timer, transitions to Start, and
// closes the log. It completes all pending client futures with a
// closed-context IllegalStateError, then stops the executor.
func (ctx *StateContext) Close(c context.Context) error {
	fut := NewFuture[struct{}]()
	ctx.exec.Post(func() {
		ctx.transition(RoleStart)
		ctx.stopElectionTimer()
		for idx, p := range ctx.pending {
			p.Complete(&CommitResult{Success: false, Err: ravelerrors.ClosedContext()}, nil)
			delete(ctx.pending, idx)
		}
		err := ctx.log.Close()
		ctx.closed = true
		fut.Complete(struct{}{}, err)
	})
	_, err := fut.Wait(c)
	ctx.exec.Close()
	return err
}

// --- persistent/volatile setters, invariant-enforcing per spec §4.3 ---

// setTerm adopts t as currentTerm if t > currentTerm: clears leader and
// vote, marks the election in progress, and persists metadata. Called
// whenever any message reveals a higher term. Returns true if adopted.
func (ctx *StateContext) setTerm(t uint64) bool {
	if t <= ctx.persistent.CurrentTerm {
		return false
	}
	ctx.persistent.CurrentTerm = t
	ctx.persistent.VotedFor = ""
	ctx.leader = ""
	ctx.status = IN_PROGRESS
	ctx.saveMetadata()
	ctx.publishStatus()
	return true
}

// setLeader records the known leader for the current term. Passing ""
// signals leader loss (e.g. election timeout) and marks the election
// in progress again.
func (ctx *StateContext) setLeader(id MemberID) {
	ctx.leader = id
	if id != "" {
		ctx.persistent.VotedFor = ""
		ctx.status = COMPLETE
		ctx.saveMetadata()
	} else {
		ctx.status = IN_PROGRESS
	}
	ctx.publishStatus()
}

// setLastVotedFor records a vote for candidate in the current term. It
// fails if this node already voted for a different candidate this term,
// or if a leader is already known.
func (ctx *StateContext) setLastVotedFor(candidate MemberID) error {
	if ctx.leader != "" {
		return ravelerrors.NewIllegalStateError("cannot vote: leader already known for this term")
	}
	if ctx.persistent.VotedFor != "" && ctx.persistent.VotedFor != candidate {
		return ravelerrors.DoubleVote(ctx.persistent.CurrentTerm, string(ctx.persistent.VotedFor), string(candidate))
	}
	ctx.persistent.VotedFor = candidate
	ctx.saveMetadata()
	return nil
}

// setCommitIndex advances commitIndex; it must never decrease.
func (ctx *StateContext) setCommitIndex(idx uint64) error {
	if idx < ctx.volatile.CommitIndex {
		return ravelerrors.IndexDecreased("commitIndex", ctx.volatile.CommitIndex, idx)
	}
	ctx.volatile.CommitIndex = idx
	return nil
}

// setLastApplied advances lastApplied; it must never decrease and must
// never exceed commitIndex.
func (ctx *StateContext) setLastApplied(idx uint64) error {
	if idx < ctx.volatile.LastApplied {
		return ravelerrors.IndexDecreased("lastApplied", ctx.volatile.LastApplied, idx)
	}
	if idx > ctx.volatile.CommitIndex {
		return ravelerrors.NewIllegalStateError("lastApplied must not exceed commitIndex")
	}
	ctx.volatile.LastApplied = idx
	return nil
}

func (ctx *StateContext) saveMetadata() {
	err := ctx.log.SaveMetadata(raftlog.Metadata{
		CurrentTerm: ctx.persistent.CurrentTerm,
		VotedFor:    string(ctx.persistent.VotedFor),
	})
	if err != nil {
		ctx.logger.Error("failed to persist metadata", "error", err)
	}
}

func (ctx *StateContext) publishStatus() {
	ctx.observer.Publish(StatusEvent{Term: ctx.persistent.CurrentTerm, Leader: ctx.leader, Status: ctx.status})
}

// transition closes the current role and opens target, unless already
// in target. Never runs two roles concurrently: both close() and open()
// execute on the same executor tick that requested the transition.
func (ctx *StateContext) transition(target RoleKind) {
	if ctx.roleKind == target {
		return
	}
	if ctx.role != nil {
		ctx.role.close()
	}
	switch target {
	case RoleStart:
		ctx.role = &startRole{ctx: ctx}
	case RoleFollower:
		ctx.role = &followerRole{ctx: ctx}
	case RoleCandidate:
		ctx.role = &candidateRole{ctx: ctx}
	case RoleLeader:
		ctx.role = &leaderRole{ctx: ctx}
	}
	ctx.roleKind = target
	ctx.role.open()
}

// randomElectionTimeout returns a duration uniformly drawn from
// [T, 2T) where T is the configured election timeout.
func (ctx *StateContext) randomElectionTimeout() time.Duration {
	t := ctx.cfg.ElectionTimeout
	if t <= 0 {
		t = 500 * time.Millisecond
	}
	return t + time.Duration(rand.Int63n(int64(t)))
}

// resetElectionTimer (re)arms the election timeout. The timer fires on
// its own goroutine but only ever posts a task back onto the executor,
// preserving single-threaded access to Raft state.
func (ctx *StateContext) resetElectionTimer() {
	ctx.stopElectionTimer()
	ctx.electionTimer = time.AfterFunc(ctx.randomElectionTimeout(), func() {
		ctx.exec.Post(ctx.onElectionTimeout)
	})
}

func (ctx *StateContext) stopElectionTimer() {
	if ctx.electionTimer != nil {
		ctx.electionTimer.Stop()
		ctx.electionTimer = nil
	}
}

// onElectionTimeout runs on the executor when the election timer fires.
// A Follower with no leader becomes a Candidate; a Candidate that failed
// to reach a majority starts a fresh election (incrementing the term
// again) without changing role kind, which transition() alone cannot
// express since it no-ops when already in the target kind.
func (ctx *StateContext) onElectionTimeout() {
	switch ctx.roleKind {
	case RoleFollower:
		ctx.transition(RoleCandidate)
	case RoleCandidate:
		ctx.restartElection()
	}
}

// restartElection force-reopens the Candidate role even though it is
// already the active kind, incrementing the term again for a new round.
func (ctx *StateContext) restartElection() {
	if ctx.role != nil {
		ctx.role.close()
	}
	ctx.role = &candidateRole{ctx: ctx}
	ctx.roleKind = RoleCandidate
	ctx.role.open()
}

// logUpToDate implements the Raft log-comparison rule used by Poll:
// (lastTerm, lastIndex) of the requester must be >= our own,
// lexicographically.
func (ctx *StateContext) logUpToDate(candLastTerm, candLastIndex uint64) bool {
	ourTerm, ourIndex := ctx.log.LastTerm(), ctx.log.LastIndex()
	if candLastTerm != ourTerm {
		return candLastTerm > ourTerm
	}
	return candLastIndex >= ourIndex
}

// --- protocol entry points: each posts onto the executor and returns a future ---

func (ctx *StateContext) Ping(c context.Context, req *PingRequest) (*PingReply, error) {
	fut := NewFuture[*PingReply]()
	ctx.exec.Post(func() {
		fut.Complete(ctx.role.onPing(req), nil)
	})
	return fut.Wait(c)
}

func (ctx *StateContext) Poll(c context.Context, req *PollRequest) (*PollReply, error) {
	fut := NewFuture[*PollReply]()
	ctx.exec.Post(func() {
		fut.Complete(ctx.role.onPoll(req), nil)
	})
	return fut.Wait(c)
}

func (ctx *StateContext) Append(c context.Context, req *AppendRequest) (*AppendReply, error) {
	fut := NewFuture[*AppendReply]()
	ctx.exec.Post(func() {
		fut.Complete(ctx.role.onAppend(req), nil)
	})
	return fut.Wait(c)
}

func (ctx *StateContext) Sync(c context.Context, req *SyncRequest) (*SyncReply, error) {
	fut := NewFuture[*SyncReply]()
	ctx.exec.Post(func() {
		fut.Complete(ctx.role.onSync(req), nil)
	})
	return fut.Wait(c)
}

// Query submits a read request; the returned Future resolves once the
// chosen consistency level's requirements are satisfied.
func (ctx *StateContext) Query(req *QueryRequest) *Future[*QueryResult] {
	fut := NewFuture[*QueryResult]()
	ctx.exec.Post(func() {
		ctx.role.onQuery(req, fut)
	})
	return fut
}

// Commit submits a client command for replication; the returned Future
// resolves once the resulting entry is committed and applied (or fails
// definitively — NotLeader, NoLeader, or Timeout via the caller's own
// deadline on Wait).
func (ctx *StateContext) Commit(req *CommitRequest) *Future[*CommitResult] {
	fut := NewFuture[*CommitResult]()
	ctx.exec.Post(func() {
		ctx.role.onCommit(req, fut)
	})
	return fut
}
