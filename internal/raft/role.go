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

// Role is the capability set every tagged role variant (Start, Follower,
// Candidate, Leader) implements. All methods run on the owning
// StateContext's Executor goroutine; none may block on network I/O —
// replication and vote fan-out are kicked off as separate goroutines
// that post their results back onto the executor.
type Role interface {
	Kind() RoleKind
	open()
	close()

	onPing(req *PingRequest) *PingReply
	onPoll(req *PollRequest) *PollReply
	onAppend(req *AppendRequest) *AppendReply
	onSync(req *SyncRequest) *SyncReply

	// onQuery and onCommit complete fut asynchronously rather than
	// returning a value directly: both may need to wait on a heartbeat
	// round (STRONG query) or on replication/apply (commit) before a
	// result is known.
	onQuery(req *QueryRequest, fut *Future[*QueryResult])
	onCommit(req *CommitRequest, fut *Future[*CommitResult])
}
