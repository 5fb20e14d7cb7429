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

/*
Package raft implements the consensus and replication engine: the
per-resource state context, the four role state machines (Start,
Follower, Candidate, Leader), the commit/apply pipeline, and snapshot
install/take. Everything that mutates a resource's Raft state runs on
that resource's single-threaded Executor; callers interact through
Futures.
*/
package raft

// MemberID is an opaque URI identifying a cluster member.
type MemberID string

// MemberType distinguishes voting members from passive observers.
type MemberType int

const (
	MEMBER MemberType = iota
	LISTENER
)

func (t MemberType) String() string {
	if t == LISTENER {
		return "LISTENER"
	}
	return "MEMBER"
}

// MemberState tracks liveness as observed by the local node.
type MemberState int

const (
	ALIVE MemberState = iota
	SUSPICIOUS
	DEAD
)

func (s MemberState) String() string {
	switch s {
	case ALIVE:
		return "ALIVE"
	case SUSPICIOUS:
		return "SUSPICIOUS"
	case DEAD:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Member is one entry in the cluster's membership table.
type Member struct {
	ID    MemberID
	Type  MemberType
	State MemberState
}

// Membership holds the local member and the known remote members for one
// resource. Only MEMBER-type members vote or count toward quorum.
type Membership struct {
	Local  MemberID
	Remote map[MemberID]*Member
}

// NewMembership builds a Membership from a local URI and a set of remote
// MEMBER URIs (the usual case: a statically configured voting set).
func NewMembership(local MemberID, remoteMembers []MemberID) *Membership {
	m := &Membership{Local: local, Remote: make(map[MemberID]*Member, len(remoteMembers))}
	for _, id := range remoteMembers {
		m.Remote[id] = &Member{ID: id, Type: MEMBER, State: ALIVE}
	}
	return m
}

// Voters returns the URIs of every known MEMBER-type peer, excluding the
// local member.
func (m *Membership) Voters() []MemberID {
	voters := make([]MemberID, 0, len(m.Remote))
	for id, mem := range m.Remote {
		if mem.Type == MEMBER {
			voters = append(voters, id)
		}
	}
	return voters
}

// VotingSize is the number of MEMBER-type members including the local
// member, used to compute quorum.
func (m *Membership) VotingSize() int {
	n := 1 // local is always a MEMBER
	for _, mem := range m.Remote {
		if mem.Type == MEMBER {
			n++
		}
	}
	return n
}

// Quorum is the strict majority size of the voting set.
func (m *Membership) Quorum() int {
	return m.VotingSize()/2 + 1
}

// AddListener records a passive, non-voting member.
func (m *Membership) AddListener(id MemberID) {
	m.Remote[id] = &Member{ID: id, Type: LISTENER, State: ALIVE}
}

// RemoveMember drops a member from the table entirely.
func (m *Membership) RemoveMember(id MemberID) {
	delete(m.Remote, id)
}

// ElectionStatus reports whether a leader is known for the current term.
type ElectionStatus int

const (
	IN_PROGRESS ElectionStatus = iota
	COMPLETE
)

func (s ElectionStatus) String() string {
	if s == COMPLETE {
		return "COMPLETE"
	}
	return "IN_PROGRESS"
}

// RoleKind tags the currently active role variant.
type RoleKind int

const (
	RoleStart RoleKind = iota
	RoleFollower
	RoleCandidate
	RoleLeader
)

func (k RoleKind) String() string {
	switch k {
	case RoleStart:
		return "Start"
	case RoleFollower:
		return "Follower"
	case RoleCandidate:
		return "Candidate"
	case RoleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// PersistentState is the subset of Raft state that must survive restart.
type PersistentState struct {
	CurrentTerm uint64
	VotedFor    MemberID // empty means no vote cast this term
}

// VolatileState is reset on every restart.
type VolatileState struct {
	CommitIndex uint64
	LastApplied uint64
}

// PeerProgress is the leader's replication bookkeeping for one peer.
type PeerProgress struct {
	NextIndex  uint64
	MatchIndex uint64
}
