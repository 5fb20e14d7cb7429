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

import ravelerrors "ravel/internal/errors"

// startRole is the initial and terminal variant: the resource has not
// been opened yet, or has been closed. Every protocol entry point fails
// with a closed-context error.
type startRole struct {
	ctx *StateContext
}

func (r *startRole) Kind() RoleKind { return RoleStart }
func (r *startRole) open()          {}
func (r *startRole) close()         {}

func (r *startRole) onPing(req *PingRequest) *PingReply {
	return &PingReply{Term: r.ctx.persistent.CurrentTerm, Success: false}
}

func (r *startRole) onPoll(req *PollRequest) *PollReply {
	return &PollReply{Term: r.ctx.persistent.CurrentTerm, VoteGranted: false}
}

func (r *startRole) onAppend(req *AppendRequest) *AppendReply {
	return &AppendReply{Term: r.ctx.persistent.CurrentTerm, Success: false}
}

func (r *startRole) onSync(req *SyncRequest) *SyncReply {
	return &SyncReply{Term: r.ctx.persistent.CurrentTerm, Success: false}
}

func (r *startRole) onQuery(req *QueryRequest, fut *Future[*QueryResult]) {
	fut.Complete(&QueryResult{Success: false, Err: ravelerrors.ClosedContext()}, nil)
}

func (r *startRole) onCommit(req *CommitRequest, fut *Future[*CommitResult]) {
	fut.Complete(&CommitResult{Success: false, Err: ravelerrors.ClosedContext()}, nil)
}
