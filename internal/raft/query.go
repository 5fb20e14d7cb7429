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

// Consistency selects how a Query is served. STRONG is the default: the
// leader must reconfirm leadership with a fresh heartbeat round before
// answering, ruling out a stale leader that has already been partitioned
// away. LEASE answers from local leader state without reconfirming.
// WEAK answers from whichever node's local state received the query,
// including followers.
type Consistency int

const (
	STRONG Consistency = iota
	LEASE
	WEAK
)

func (c Consistency) String() string {
	switch c {
	case STRONG:
		return "STRONG"
	case LEASE:
		return "LEASE"
	case WEAK:
		return "WEAK"
	default:
		return "UNKNOWN"
	}
}

// QueryRequest is a read-only request at a chosen consistency level.
type QueryRequest struct {
	Consistency Consistency
	Payload     []byte
}

// QueryResult is the outcome of a Query, successful or not.
type QueryResult struct {
	Success    bool
	Result     []byte
	LeaderHint MemberID
	Err        error
}

// CommitRequest is a client command submitted for replication.
type CommitRequest struct {
	Payload []byte
}

// CommitResult is the outcome of a Commit once the entry is applied, or
// a definitive failure before that point is ever reached.
type CommitResult struct {
	Success    bool
	Result     []byte
	LeaderHint MemberID
	Err        error
}
