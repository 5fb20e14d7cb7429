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
Package replication drives the Sync RPC's chunked snapshot transfer: once
a leader's nextIndex for a peer has fallen behind the leader's compacted
log prefix, log replication alone can no longer catch that peer up and
the leader must stream a full state-machine snapshot instead.
*/
package replication

import (
	"context"
	"fmt"
	"time"

	"ravel/internal/raft"
)

// TransferConfig tunes how a snapshot is chunked and retried across Sync
// RPCs.
type TransferConfig struct {
	ChunkSize     int           `json:"chunk_size"`
	ChunkTimeout  time.Duration `json:"chunk_timeout"`
	RetryInterval time.Duration `json:"retry_interval"`
	MaxRetries    int           `json:"max_retries"`
}

// DefaultTransferConfig returns sensible defaults for streaming a
// snapshot to one lagging peer.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		ChunkSize:     64 * 1024,
		ChunkTimeout:  5 * time.Second,
		RetryInterval: 100 * time.Millisecond,
		MaxRetries:    10,
	}
}

// SnapshotSender streams one opaque snapshot blob to a single peer over
// its Sync RPC, one chunk per request, retrying transient chunk failures
// before giving up on the whole transfer.
type SnapshotSender struct {
	peer raft.Peer
	cfg  TransferConfig
}

// NewSnapshotSender builds a sender for one peer connection.
func NewSnapshotSender(peer raft.Peer, cfg TransferConfig) *SnapshotSender {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultTransferConfig().ChunkSize
	}
	return &SnapshotSender{peer: peer, cfg: cfg}
}

// Send streams blob as a sequence of Sync chunks, each carrying the same
// (term, lastIncludedIndex, lastIncludedTerm) snapshot boundary and an
// increasing Offset, the last one flagged Done. An empty blob still
// sends exactly one (Offset 0, Done true) chunk so the peer always
// observes snapshot completion.
func (s *SnapshotSender) Send(ctx context.Context, term, lastIncludedIndex, lastIncludedTerm uint64, blob []byte) error {
	offset := 0
	for {
		end := offset + s.cfg.ChunkSize
		if end > len(blob) {
			end = len(blob)
		}
		done := end >= len(blob)

		req := &raft.SyncRequest{
			Term:              term,
			LastIncludedIndex: lastIncludedIndex,
			LastIncludedTerm:  lastIncludedTerm,
			Offset:            uint64(offset),
			Data:              blob[offset:end],
			Done:              done,
		}
		if err := s.sendChunkWithRetry(ctx, req); err != nil {
			return err
		}
		if done {
			return nil
		}
		offset = end
	}
}

func (s *SnapshotSender) sendChunkWithRetry(ctx context.Context, req *raft.SyncRequest) error {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		reply, err := s.sendChunk(ctx, req)
		if err == nil {
			if !reply.Success {
				return fmt.Errorf("replication: peer rejected snapshot chunk at offset %d (peer term %d)", req.Offset, reply.Term)
			}
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RetryInterval):
		}
	}
	return fmt.Errorf("replication: snapshot chunk at offset %d failed after %d attempts: %w", req.Offset, maxRetries, lastErr)
}

func (s *SnapshotSender) sendChunk(ctx context.Context, req *raft.SyncRequest) (*raft.SyncReply, error) {
	chunkCtx := ctx
	if s.cfg.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		chunkCtx, cancel = context.WithTimeout(ctx, s.cfg.ChunkTimeout)
		defer cancel()
	}
	return s.peer.SendSync(chunkCtx, req)
}
