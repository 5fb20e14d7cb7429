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
Package router implements pkg/transport.Handler on top of a
cluster.Coordinator: it resolves an inbound envelope to the right
raft.StateContext (the coordinator's own meta-log for EnvelopeAdmin
traffic, or a named resource for EnvelopeTopic traffic), decodes the
framed internal/wire message, dispatches it, and encodes the reply.
*/
package router

import (
	"context"
	"fmt"

	"ravel/internal/cluster"
	ravelerrors "ravel/internal/errors"
	"ravel/internal/logging"
	"ravel/internal/raft"
	protocol "ravel/internal/wire"
)

// Router dispatches inbound frames for one node's Coordinator.
type Router struct {
	coord  *cluster.Coordinator
	logger *logging.Logger

	// sealer, when non-nil, opens Sync chunk payloads that the sender
	// sealed with the matching cluster key (see pkg/transport/tcp's
	// Dialer.Sealer and internal/wire.Sealer).
	sealer *protocol.Sealer
}

// New builds a Router over coord.
func New(coord *cluster.Coordinator) *Router {
	return &Router{coord: coord, logger: logging.NewLogger("router")}
}

// WithSealer returns r configured to open incoming Sync chunks with
// sealer before delivering them to the resource's StateContext.
func (r *Router) WithSealer(sealer *protocol.Sealer) *Router {
	r.sealer = sealer
	return r
}

// Handle implements pkg/transport.Handler.
func (r *Router) Handle(ctx context.Context, env protocol.Envelope, reqType protocol.MessageType) (protocol.MessageType, []byte, error) {
	var rc *raft.StateContext
	switch env.Kind {
	case protocol.EnvelopeAdmin:
		rc = r.coord.MetaContext()
	case protocol.EnvelopeTopic:
		handle, ok := r.coord.GetResource(env.Topic)
		if !ok {
			return 0, nil, ravelerrors.UnknownTopic(env.Topic)
		}
		rc = handle.Ctx
	default:
		return 0, nil, ravelerrors.BadFraming("unknown envelope kind")
	}

	switch reqType {
	case protocol.MsgPing:
		return r.handlePing(ctx, rc, env.Payload)
	case protocol.MsgPoll:
		return r.handlePoll(ctx, rc, env.Payload)
	case protocol.MsgAppend:
		return r.handleAppend(ctx, rc, env.Payload)
	case protocol.MsgSync:
		return r.handleSync(ctx, rc, env.Payload)
	case protocol.MsgQuery:
		return r.handleQuery(ctx, rc, env.Payload)
	case protocol.MsgCommit:
		return r.handleCommit(ctx, rc, env.Payload)
	default:
		return 0, nil, ravelerrors.NewProtocolError(fmt.Sprintf("router: unhandled message type %v", reqType))
	}
}

func (r *Router) handlePing(ctx context.Context, rc *raft.StateContext, payload []byte) (protocol.MessageType, []byte, error) {
	req, err := protocol.DecodePingMessage(payload)
	if err != nil {
		return 0, nil, ravelerrors.BadFraming(err.Error())
	}
	reply, err := rc.Ping(ctx, &raft.PingRequest{
		Term:         req.Term,
		LeaderURI:    raft.MemberID(req.LeaderURI),
		LastLogIndex: req.LastLogIndex,
		LastLogTerm:  req.LastLogTerm,
		CommitIndex:  req.CommitIndex,
	})
	if err != nil {
		return 0, nil, err
	}
	body, err := (&protocol.PingResultMessage{Term: reply.Term, Success: reply.Success}).Encode()
	return protocol.MsgPingResult, body, err
}

func (r *Router) handlePoll(ctx context.Context, rc *raft.StateContext, payload []byte) (protocol.MessageType, []byte, error) {
	req, err := protocol.DecodePollMessage(payload)
	if err != nil {
		return 0, nil, ravelerrors.BadFraming(err.Error())
	}
	reply, err := rc.Poll(ctx, &raft.PollRequest{
		Term:         req.Term,
		CandidateURI: raft.MemberID(req.CandidateURI),
		LastLogIndex: req.LastLogIndex,
		LastLogTerm:  req.LastLogTerm,
	})
	if err != nil {
		return 0, nil, err
	}
	body, err := (&protocol.PollResultMessage{Term: reply.Term, VoteGranted: reply.VoteGranted}).Encode()
	return protocol.MsgPollResult, body, err
}

func (r *Router) handleAppend(ctx context.Context, rc *raft.StateContext, payload []byte) (protocol.MessageType, []byte, error) {
	req, err := protocol.DecodeAppendMessage(payload)
	if err != nil {
		return 0, nil, ravelerrors.BadFraming(err.Error())
	}
	entries := make([]raft.LogEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = raft.LogEntry{Index: e.Index, Term: e.Term, Payload: e.Payload}
	}
	reply, err := rc.Append(ctx, &raft.AppendRequest{
		Term:         req.Term,
		LeaderURI:    raft.MemberID(req.LeaderURI),
		PrevLogIndex: req.PrevLogIndex,
		PrevLogTerm:  req.PrevLogTerm,
		Entries:      entries,
		LeaderCommit: req.LeaderCommit,
	})
	if err != nil {
		return 0, nil, err
	}
	body, err := (&protocol.AppendResultMessage{
		Term:          reply.Term,
		Success:       reply.Success,
		LogIndexHint:  reply.LogIndexHint,
		ConflictIndex: reply.ConflictIndex,
		ConflictTerm:  reply.ConflictTerm,
	}).Encode()
	return protocol.MsgAppendResult, body, err
}

func (r *Router) handleSync(ctx context.Context, rc *raft.StateContext, payload []byte) (protocol.MessageType, []byte, error) {
	req, err := protocol.DecodeSyncMessage(payload)
	if err != nil {
		return 0, nil, ravelerrors.BadFraming(err.Error())
	}
	data := req.Data
	if r.sealer != nil {
		data, err = r.sealer.Open(data)
		if err != nil {
			return 0, nil, ravelerrors.BadFraming(err.Error())
		}
	}
	reply, err := rc.Sync(ctx, &raft.SyncRequest{
		Term:              req.Term,
		LastIncludedIndex: req.LastIncludedIndex,
		LastIncludedTerm:  req.LastIncludedTerm,
		Offset:            req.Offset,
		Data:              data,
		Done:              req.Done,
	})
	if err != nil {
		return 0, nil, err
	}
	body, err := (&protocol.SyncResultMessage{Term: reply.Term, Success: reply.Success}).Encode()
	return protocol.MsgSyncResult, body, err
}

func (r *Router) handleQuery(ctx context.Context, rc *raft.StateContext, payload []byte) (protocol.MessageType, []byte, error) {
	req, err := protocol.DecodeQueryMessage(payload)
	if err != nil {
		return 0, nil, ravelerrors.BadFraming(err.Error())
	}
	fut := rc.Query(&raft.QueryRequest{Consistency: toConsistency(req.Consistency), Payload: req.Payload})
	result, err := fut.Wait(ctx)
	if err != nil {
		return 0, nil, err
	}
	msg := &protocol.QueryResultMessage{Success: result.Success, Result: result.Result, LeaderHint: string(result.LeaderHint)}
	if result.Err != nil {
		msg.ErrMessage = result.Err.Error()
	}
	body, err := msg.Encode()
	return protocol.MsgQueryResult, body, err
}

func (r *Router) handleCommit(ctx context.Context, rc *raft.StateContext, payload []byte) (protocol.MessageType, []byte, error) {
	req, err := protocol.DecodeCommitMessage(payload)
	if err != nil {
		return 0, nil, ravelerrors.BadFraming(err.Error())
	}
	fut := rc.Commit(&raft.CommitRequest{Payload: req.Payload})
	result, err := fut.Wait(ctx)
	if err != nil {
		return 0, nil, err
	}
	msg := &protocol.CommitResultMessage{Success: result.Success, Result: result.Result, LeaderHint: string(result.LeaderHint)}
	if result.Err != nil {
		msg.ErrMessage = result.Err.Error()
	}
	body, err := msg.Encode()
	return protocol.MsgCommitResult, body, err
}

func toConsistency(c protocol.Consistency) raft.Consistency {
	switch c {
	case protocol.ConsistencyLease:
		return raft.LEASE
	case protocol.ConsistencyWeak:
		return raft.WEAK
	default:
		return raft.STRONG
	}
}
