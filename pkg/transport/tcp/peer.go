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
PeerDialer bridges internal/raft's transport-agnostic Peer/PeerDialer
interfaces onto this package's pooled connections. A raft.MemberID is
treated as its own dial address ("host:port"); Ravel never needs a
separate name-to-address lookup for MEMBERs because the voting set's
addresses are fixed at resource-creation time (see
internal/cluster.ResourceSpec).
*/
package tcp

import (
	"context"
	"fmt"

	"ravel/internal/raft"
	protocol "ravel/internal/wire"
)

// ResourcePeerDialer resolves a raft.MemberID to a raft.Peer for one
// named resource, multiplexed over the shared Dialer's connection pool
// via an EnvelopeTopic carrying that resource's name (the meta-log's
// empty topic goes out as EnvelopeAdmin instead).
type ResourcePeerDialer struct {
	dialer *Dialer
	topic  string
}

var _ raft.PeerDialer = (*ResourcePeerDialer)(nil)

// NewResourcePeerDialer returns a PeerDialer that addresses Raft RPCs
// for resource topic over dialer's pooled connections.
func NewResourcePeerDialer(dialer *Dialer, topic string) *ResourcePeerDialer {
	return &ResourcePeerDialer{dialer: dialer, topic: topic}
}

func (d *ResourcePeerDialer) Peer(id raft.MemberID) (raft.Peer, error) {
	if id == "" {
		return nil, fmt.Errorf("transport/tcp: empty member id")
	}
	return &resourcePeer{dialer: d.dialer, addr: string(id), topic: d.topic}, nil
}

// resourcePeer is a raft.Peer bound to one remote address and one topic.
type resourcePeer struct {
	dialer *Dialer
	addr   string
	topic  string
}

var _ raft.Peer = (*resourcePeer)(nil)

func (p *resourcePeer) roundTrip(ctx context.Context, reqType protocol.MessageType, payload []byte) (protocol.MessageType, []byte, error) {
	env := protocol.Envelope{Kind: protocol.EnvelopeTopic, Topic: p.topic, Payload: payload}
	if p.topic == "" {
		// the empty topic is the meta-log's, served as admin-plane traffic
		env.Kind = protocol.EnvelopeAdmin
	}
	return p.dialer.RoundTrip(ctx, p.addr, env, reqType)
}

func (p *resourcePeer) SendPing(ctx context.Context, req *raft.PingRequest) (*raft.PingReply, error) {
	body, err := (&protocol.PingMessage{
		Term:         req.Term,
		LeaderURI:    string(req.LeaderURI),
		LastLogIndex: req.LastLogIndex,
		LastLogTerm:  req.LastLogTerm,
		CommitIndex:  req.CommitIndex,
	}).Encode()
	if err != nil {
		return nil, err
	}
	replyType, replyBody, err := p.roundTrip(ctx, protocol.MsgPing, body)
	if err != nil {
		return nil, err
	}
	if replyType != protocol.MsgPingResult {
		return nil, fmt.Errorf("transport/tcp: unexpected reply type %v for Ping", replyType)
	}
	reply, err := protocol.DecodePingResultMessage(replyBody)
	if err != nil {
		return nil, err
	}
	return &raft.PingReply{Term: reply.Term, Success: reply.Success}, nil
}

func (p *resourcePeer) SendPoll(ctx context.Context, req *raft.PollRequest) (*raft.PollReply, error) {
	body, err := (&protocol.PollMessage{
		Term:         req.Term,
		CandidateURI: string(req.CandidateURI),
		LastLogIndex: req.LastLogIndex,
		LastLogTerm:  req.LastLogTerm,
	}).Encode()
	if err != nil {
		return nil, err
	}
	replyType, replyBody, err := p.roundTrip(ctx, protocol.MsgPoll, body)
	if err != nil {
		return nil, err
	}
	if replyType != protocol.MsgPollResult {
		return nil, fmt.Errorf("transport/tcp: unexpected reply type %v for Poll", replyType)
	}
	reply, err := protocol.DecodePollResultMessage(replyBody)
	if err != nil {
		return nil, err
	}
	return &raft.PollReply{Term: reply.Term, VoteGranted: reply.VoteGranted}, nil
}

func (p *resourcePeer) SendAppend(ctx context.Context, req *raft.AppendRequest) (*raft.AppendReply, error) {
	entries := make([]protocol.LogEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = protocol.LogEntry{Index: e.Index, Term: e.Term, Payload: e.Payload}
	}
	body, err := (&protocol.AppendMessage{
		Term:         req.Term,
		LeaderURI:    string(req.LeaderURI),
		PrevLogIndex: req.PrevLogIndex,
		PrevLogTerm:  req.PrevLogTerm,
		Entries:      entries,
		LeaderCommit: req.LeaderCommit,
	}).Encode()
	if err != nil {
		return nil, err
	}
	replyType, replyBody, err := p.roundTrip(ctx, protocol.MsgAppend, body)
	if err != nil {
		return nil, err
	}
	if replyType != protocol.MsgAppendResult {
		return nil, fmt.Errorf("transport/tcp: unexpected reply type %v for Append", replyType)
	}
	reply, err := protocol.DecodeAppendResultMessage(replyBody)
	if err != nil {
		return nil, err
	}
	return &raft.AppendReply{
		Term:          reply.Term,
		Success:       reply.Success,
		LogIndexHint:  reply.LogIndexHint,
		ConflictIndex: reply.ConflictIndex,
		ConflictTerm:  reply.ConflictTerm,
	}, nil
}

func (p *resourcePeer) SendSync(ctx context.Context, req *raft.SyncRequest) (*raft.SyncReply, error) {
	data := req.Data
	if sealer := p.dialer.Sealer(); sealer != nil {
		sealed, err := sealer.Seal(data)
		if err != nil {
			return nil, fmt.Errorf("transport/tcp: seal sync chunk: %w", err)
		}
		data = sealed
	}
	body, err := (&protocol.SyncMessage{
		Term:              req.Term,
		LastIncludedIndex: req.LastIncludedIndex,
		LastIncludedTerm:  req.LastIncludedTerm,
		Offset:            req.Offset,
		Data:              data,
		Done:              req.Done,
	}).Encode()
	if err != nil {
		return nil, err
	}
	replyType, replyBody, err := p.roundTrip(ctx, protocol.MsgSync, body)
	if err != nil {
		return nil, err
	}
	if replyType != protocol.MsgSyncResult {
		return nil, fmt.Errorf("transport/tcp: unexpected reply type %v for Sync", replyType)
	}
	reply, err := protocol.DecodeSyncResultMessage(replyBody)
	if err != nil {
		return nil, err
	}
	return &raft.SyncReply{Term: reply.Term, Success: reply.Success}, nil
}
