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
Package statelog is the application-facing façade over one resource's
replicated state machine. Callers never touch a raft.StateContext or a
wire-level payload directly: they register named commands and queries
against a StateLog, the StateLog is handed to the cluster coordinator
as the resource's consumer/snapshotter pair, and once the resource
exists callers submit by name through Submit/Query. The façade
serializes (name, input) into the payload the Raft log actually
carries; Apply/Read dispatch back out to the registered handler by
that same name.
*/
package statelog

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"ravel/internal/errors"
	"ravel/internal/logging"
	"ravel/internal/raft"
)

// CommandFunc mutates the state machine; its return bytes become the
// result of the Submit that triggered it.
type CommandFunc func(input []byte) ([]byte, error)

// QueryFunc answers a read-only request against current state.
type QueryFunc func(input []byte) ([]byte, error)

// SnapshotFunc produces an opaque blob capturing all registered state.
type SnapshotFunc func() ([]byte, error)

// InstallFunc restores state from a blob produced by a SnapshotFunc.
type InstallFunc func(blob []byte) error

type queryEntry struct {
	fn          QueryFunc
	consistency raft.Consistency
}

// StateLog is a named-dispatch Consumer/Snapshotter and the client
// entry point for one resource. The zero value is not usable; build
// one with New.
type StateLog struct {
	logger *logging.Logger
	sem    *semaphore.Weighted

	mu         sync.RWMutex
	commands   map[string]CommandFunc
	queries    map[string]queryEntry
	snapshotFn SnapshotFunc
	installFn  InstallFunc

	ctxMu sync.RWMutex
	ctx   *raft.StateContext
}

var (
	_ raft.Consumer    = (*StateLog)(nil)
	_ raft.Snapshotter = (*StateLog)(nil)
)

// New returns an empty StateLog. maxInflight bounds how many Submit/
// Query calls may be waiting on their future concurrently; additional
// callers block in the semaphore acquire until one completes. A
// non-positive maxInflight disables the bound.
func New(name string, maxInflight int64) *StateLog {
	s := &StateLog{
		logger:   logging.NewLogger("statelog").With("resource", name),
		commands: make(map[string]CommandFunc),
		queries:  make(map[string]queryEntry),
	}
	if maxInflight > 0 {
		s.sem = semaphore.NewWeighted(maxInflight)
	}
	return s
}

// RegisterCommand installs fn under name. Registering again under the
// same name replaces the earlier registration.
func (s *StateLog) RegisterCommand(name string, fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[name] = fn
}

// RegisterQuery installs fn under name at the given consistency level
// (STRONG if omitted).
func (s *StateLog) RegisterQuery(name string, fn QueryFunc, consistency ...raft.Consistency) {
	level := raft.STRONG
	if len(consistency) > 0 {
		level = consistency[0]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[name] = queryEntry{fn: fn, consistency: level}
}

// Unregister removes name from both the command and query tables.
func (s *StateLog) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.commands, name)
	delete(s.queries, name)
}

// TakeSnapshotWith installs the function used to produce a snapshot
// blob when the resource compacts its log.
func (s *StateLog) TakeSnapshotWith(fn SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotFn = fn
}

// InstallSnapshotWith installs the function used to restore state from
// a snapshot blob, whether produced locally or received over Sync.
func (s *StateLog) InstallSnapshotWith(fn InstallFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installFn = fn
}

// Bind attaches the live StateContext once the coordinator has
// instantiated the resource this StateLog backs. Submit and Query
// fail with an illegal-state error until this has been called.
func (s *StateLog) Bind(ctx *raft.StateContext) {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	s.ctx = ctx
}

func (s *StateLog) boundContext() (*raft.StateContext, error) {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()
	if s.ctx == nil {
		return nil, errors.NewIllegalStateError("statelog: resource not yet bound to a context")
	}
	return s.ctx, nil
}

// Submit replicates (name, input) as a command and waits for it to be
// applied, returning the registered handler's result bytes.
func (s *StateLog) Submit(ctx context.Context, name string, input []byte) ([]byte, error) {
	rc, err := s.boundContext()
	if err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	payload, err := encodeEnvelope(name, input)
	if err != nil {
		return nil, err
	}
	fut := rc.Commit(&raft.CommitRequest{Payload: payload})
	result, err := fut.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		if result.Err != nil {
			return nil, result.Err
		}
		return nil, errors.NotLeader(string(result.LeaderHint))
	}
	return result.Result, nil
}

// Query serves (name, input) as a read at name's registered
// consistency level, returning the registered handler's result bytes.
func (s *StateLog) Query(ctx context.Context, name string, input []byte) ([]byte, error) {
	rc, err := s.boundContext()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok := s.queries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewProtocolError(fmt.Sprintf("statelog: no query registered for %q", name))
	}

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	payload, err := encodeEnvelope(name, input)
	if err != nil {
		return nil, err
	}
	fut := rc.Query(&raft.QueryRequest{Consistency: entry.consistency, Payload: payload})
	result, err := fut.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		if result.Err != nil {
			return nil, result.Err
		}
		return nil, errors.NotLeader(string(result.LeaderHint))
	}
	return result.Result, nil
}

func (s *StateLog) acquire(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	return s.sem.Acquire(ctx, 1)
}

func (s *StateLog) release() {
	if s.sem == nil {
		return
	}
	s.sem.Release(1)
}

// Apply implements raft.Consumer: it decodes the envelope and
// dispatches to the registered command, failing the entry (without
// blocking lastApplied's advance — the caller owns that guarantee) if
// no command is registered under the decoded name.
func (s *StateLog) Apply(index uint64, payload []byte) ([]byte, error) {
	name, input, err := decodeEnvelope(payload)
	if err != nil {
		return nil, errors.ApplyFailed(index, err)
	}
	s.mu.RLock()
	fn, ok := s.commands[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ApplyFailed(index, fmt.Errorf("statelog: no command registered for %q", name))
	}
	out, err := fn(input)
	if err != nil {
		return nil, errors.ApplyFailed(index, err)
	}
	return out, nil
}

// Read implements raft.Consumer for WEAK/LEASE queries served without
// a Raft round trip.
func (s *StateLog) Read(payload []byte) ([]byte, error) {
	name, input, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok := s.queries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewProtocolError(fmt.Sprintf("statelog: no query registered for %q", name))
	}
	return entry.fn(input)
}

// Snapshot implements raft.Snapshotter.
func (s *StateLog) Snapshot() ([]byte, error) {
	s.mu.RLock()
	fn := s.snapshotFn
	s.mu.RUnlock()
	if fn == nil {
		return nil, nil
	}
	return fn()
}

// Install implements raft.Snapshotter.
func (s *StateLog) Install(blob []byte) error {
	s.mu.RLock()
	fn := s.installFn
	s.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(blob)
}

// encodeEnvelope lays out { u32 nameLen, bytes name, bytes input }.
func encodeEnvelope(name string, input []byte) ([]byte, error) {
	if len(name) > 1<<32-1 {
		return nil, errors.NewProtocolError("statelog: command/query name too long")
	}
	buf := make([]byte, 4+len(name)+len(input))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(name)))
	copy(buf[4:], name)
	copy(buf[4+len(name):], input)
	return buf, nil
}

func decodeEnvelope(payload []byte) (name string, input []byte, err error) {
	if len(payload) < 4 {
		return "", nil, fmt.Errorf("statelog: envelope too short")
	}
	nameLen := binary.BigEndian.Uint32(payload[0:4])
	if uint64(4+nameLen) > uint64(len(payload)) {
		return "", nil, fmt.Errorf("statelog: envelope name length out of range")
	}
	name = string(payload[4 : 4+nameLen])
	input = payload[4+nameLen:]
	return name, input, nil
}
