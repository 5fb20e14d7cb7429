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
Package cluster hosts the coordinator that multiplexes many named
replicated resources onto one transport and one meta-log, plus the
gossip membership and health-monitoring machinery backing the passive
LISTENER model.
*/
package cluster

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ravel/internal/compression"
	ravelerrors "ravel/internal/errors"
	"ravel/internal/logging"
	"ravel/internal/raft"
	"ravel/internal/raftlog"
)

// metaKind tags a meta-log entry as a resource create or delete.
type metaKind int32

const (
	metaCreate metaKind = 1
	metaDelete metaKind = -1
)

// ResourceSpec is the cluster configuration a resource is created with:
// its voting member set and log segmenting policy. It is carried inside
// a create entry's serializedMemberSet/serializedLogCfg fields.
type ResourceSpec struct {
	Members     []raft.MemberID `json:"members"`
	SegmentSize int64           `json:"segment_size"`
}

// encodeCreate lays out a create entry as kind=+1, nameLen, name,
// clusterLen, serializedMemberSet, logCfgLen, serializedLogCfg.
func encodeCreate(name string, spec ResourceSpec) ([]byte, error) {
	memberSet, err := json.Marshal(spec.Members)
	if err != nil {
		return nil, fmt.Errorf("cluster: encode member set: %w", err)
	}
	logCfg, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("cluster: encode log config: %w", err)
	}

	buf := make([]byte, 0, 4+4+len(name)+4+len(memberSet)+4+len(logCfg))
	buf = appendU32(buf, uint32(metaCreate))
	buf = appendU32(buf, uint32(len(name)))
	buf = append(buf, name...)
	buf = appendU32(buf, uint32(len(memberSet)))
	buf = append(buf, memberSet...)
	buf = appendU32(buf, uint32(len(logCfg)))
	buf = append(buf, logCfg...)
	return buf, nil
}

func encodeDelete(name string) []byte {
	buf := make([]byte, 0, 4+4+len(name))
	buf = appendU32(buf, uint32(metaDelete))
	buf = appendU32(buf, uint32(len(name)))
	buf = append(buf, name...)
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU32(payload []byte, off int) (uint32, int, error) {
	if off+4 > len(payload) {
		return 0, 0, fmt.Errorf("cluster: truncated meta-log entry at offset %d", off)
	}
	return binary.BigEndian.Uint32(payload[off:]), off + 4, nil
}

// decodedEntry is the parsed form of one meta-log payload.
type decodedEntry struct {
	kind metaKind
	name string
	spec ResourceSpec
}

func decodeEntry(payload []byte) (*decodedEntry, error) {
	kindRaw, off, err := readU32(payload, 0)
	if err != nil {
		return nil, err
	}
	kind := metaKind(int32(kindRaw))

	nameLen, off, err := readU32(payload, off)
	if err != nil {
		return nil, err
	}
	if off+int(nameLen) > len(payload) {
		return nil, fmt.Errorf("cluster: truncated name field")
	}
	name := string(payload[off : off+int(nameLen)])
	off += int(nameLen)

	d := &decodedEntry{kind: kind, name: name}
	if kind == metaDelete {
		return d, nil
	}

	clusterLen, off, err := readU32(payload, off)
	if err != nil {
		return nil, err
	}
	if off+int(clusterLen) > len(payload) {
		return nil, fmt.Errorf("cluster: truncated member set field")
	}
	off += int(clusterLen) // member set is redundant with logCfg; logCfg carries the full ResourceSpec

	logCfgLen, off, err := readU32(payload, off)
	if err != nil {
		return nil, err
	}
	if off+int(logCfgLen) > len(payload) {
		return nil, fmt.Errorf("cluster: truncated log config field")
	}
	var spec ResourceSpec
	if err := json.Unmarshal(payload[off:off+int(logCfgLen)], &spec); err != nil {
		return nil, fmt.Errorf("cluster: decode log config: %w", err)
	}
	d.spec = spec
	return d, nil
}

// ResourceFactory builds the consumer and snapshotter backing one newly
// created named resource. The coordinator owns everything else (log,
// dialer, executor, role state machines).
type ResourceFactory func(name string, spec ResourceSpec) (raft.Consumer, raft.Snapshotter, error)

// ResourceHandle is what the registry hands back for a live resource.
type ResourceHandle struct {
	Name string
	Ctx  *raft.StateContext
}

// LifecycleKind tags whether a ResourceLifecycleEvent is a create or a
// delete.
type LifecycleKind int

const (
	ResourceCreated LifecycleKind = iota
	ResourceDeleted
)

func (k LifecycleKind) String() string {
	if k == ResourceDeleted {
		return "deleted"
	}
	return "created"
}

// ResourceLifecycleEvent describes one resource entering or leaving a
// Coordinator's registry, as agreed by the meta-log.
type ResourceLifecycleEvent struct {
	Kind  LifecycleKind
	Name  string
	Index uint64
}

// LifecycleHook is notified of every resource create/delete the meta-log
// applies. Hooks must not block: they run synchronously on the meta-log's
// single executor goroutine, the same one that drives every other
// StateContext-mutating operation.
type LifecycleHook func(ResourceLifecycleEvent)

// metaConsumer applies create/delete entries from the meta-log onto the
// coordinator's resource registry. Registered result bytes are a single
// byte: 1 for "this call changed the registry", 0 for "already in that
// state" (idempotent replay across a log carrying the same entry twice,
// e.g. after a resubmitted client request).
type metaConsumer struct {
	coord *Coordinator
}

func (c *metaConsumer) Apply(index uint64, payload []byte) ([]byte, error) {
	entry, err := decodeEntry(payload)
	if err != nil {
		return nil, err
	}

	c.coord.mu.Lock()
	defer c.coord.mu.Unlock()

	switch entry.kind {
	case metaCreate:
		if _, exists := c.coord.registry[entry.name]; exists {
			return []byte{0}, nil
		}
		handle, err := c.coord.instantiateLocked(entry.name, entry.spec)
		if err != nil {
			return nil, err
		}
		c.coord.registry[entry.name] = handle
		c.coord.logger.Info("resource created", "name", entry.name, "index", index)
		c.coord.notifyLifecycle(ResourceLifecycleEvent{Kind: ResourceCreated, Name: entry.name, Index: index})
		return []byte{1}, nil
	case metaDelete:
		handle, exists := c.coord.registry[entry.name]
		if !exists {
			return []byte{0}, nil
		}
		delete(c.coord.registry, entry.name)
		go handle.Ctx.Close(context.Background())
		c.coord.logger.Info("resource deleted", "name", entry.name, "index", index)
		c.coord.notifyLifecycle(ResourceLifecycleEvent{Kind: ResourceDeleted, Name: entry.name, Index: index})
		return []byte{1}, nil
	default:
		return nil, fmt.Errorf("cluster: unknown meta-log entry kind %d", entry.kind)
	}
}

// Read answers a listing of currently registered resource names. The
// meta-log itself carries no other queryable state.
func (c *metaConsumer) Read(_ []byte) ([]byte, error) {
	c.coord.mu.RLock()
	defer c.coord.mu.RUnlock()
	names := make([]string, 0, len(c.coord.registry))
	for name := range c.coord.registry {
		names = append(names, name)
	}
	return json.Marshal(names)
}

// metaSnapshotter is a no-op: the meta-log's state is entirely
// reconstructible by replaying create/delete entries, and the registry
// it drives owns no bytes worth snapshotting on its own.
type metaSnapshotter struct{}

func (metaSnapshotter) Snapshot() ([]byte, error) { return nil, nil }
func (metaSnapshotter) Install(_ []byte) error    { return nil }

// CoordinatorConfig bundles the fixed parameters a Coordinator needs to
// run its meta-log and build new resources.
type CoordinatorConfig struct {
	Local             raft.MemberID
	MetaMembers       []raft.MemberID
	MetaDir           string
	ElectionTimeout   time.Duration
	HeartbeatInterval time.Duration
	SegmentSize       int64
	SubmitTimeout     time.Duration

	// SnapshotCompression configures the algorithm every resource's
	// Snapshotter is wrapped with before a blob is written to the
	// log's compaction record or streamed over Sync. The zero value
	// (AlgorithmNone) disables wrapping entirely.
	SnapshotCompression compression.Config
}

// TopicDialer scopes a shared transport connection pool to one named
// topic: the admin meta-log uses the reserved empty topic, and every
// replicated resource uses its own name, so one physical connection per
// peer can multiplex RPCs for many independent StateContexts (see
// pkg/transport/tcp.MultiTopicDialer).
type TopicDialer interface {
	ForTopic(topic string) raft.PeerDialer
}

// metaTopic is the reserved topic name for ClusterCoordinator's own
// meta-log traffic; it can never collide with a resource name because
// resource names are validated non-empty at CreateResource.
const metaTopic = ""

// Coordinator hosts one transport server's worth of named resources: a
// registry keyed by name, and the meta-log StateContext that arbitrates
// create/delete of entries in that registry across the cluster.
type Coordinator struct {
	cfg     CoordinatorConfig
	dialer  TopicDialer
	factory ResourceFactory
	logger  *logging.Logger

	meta *raft.StateContext

	mu        sync.RWMutex
	registry  map[string]*ResourceHandle
	listeners map[raft.MemberID]struct{}

	lifecycleMu sync.RWMutex
	lifecycle   LifecycleHook
}

// NewCoordinator builds a Coordinator. dialer is shared by the meta-log
// and every resource it creates, so peer connections are reused across
// all of a node's replicated resources. factory supplies the Consumer
// and Snapshotter for each newly created resource name.
func NewCoordinator(cfg CoordinatorConfig, dialer TopicDialer, factory ResourceFactory) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		dialer:    dialer,
		factory:   factory,
		logger:    logging.NewLogger("cluster.coordinator").With("node", string(cfg.Local)),
		registry:  make(map[string]*ResourceHandle),
		listeners: make(map[raft.MemberID]struct{}),
	}

	metaLog := raftlog.NewFileLog(cfg.MetaDir, "meta", cfg.SegmentSize)
	raftCfg := raft.Config{
		Local:             cfg.Local,
		Members:           cfg.MetaMembers,
		ElectionTimeout:   cfg.ElectionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}
	c.meta = raft.NewStateContext(raftCfg, metaLog, dialer.ForTopic(metaTopic), &metaConsumer{coord: c}, metaSnapshotter{})
	return c
}

// Open starts the meta-log's election timer and makes the coordinator
// ready to accept CreateResource/DeleteResource submissions.
func (c *Coordinator) Open(ctx context.Context) error {
	return c.meta.Open(ctx)
}

// MetaContext returns the admin-plane StateContext backing
// CreateResource/DeleteResource, so internal/router can dispatch
// inbound EnvelopeAdmin traffic to it directly.
func (c *Coordinator) MetaContext() *raft.StateContext {
	return c.meta
}

// WithLifecycleHook registers fn to be called whenever the meta-log
// applies a resource create or delete. Only one hook can be registered;
// a later call replaces the earlier one. Returns c for chaining.
func (c *Coordinator) WithLifecycleHook(fn LifecycleHook) *Coordinator {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	c.lifecycle = fn
	return c
}

func (c *Coordinator) notifyLifecycle(ev ResourceLifecycleEvent) {
	c.lifecycleMu.RLock()
	fn := c.lifecycle
	c.lifecycleMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Close tears down the meta-log and every resource the registry still
// holds.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	handles := make([]*ResourceHandle, 0, len(c.registry))
	for _, h := range c.registry {
		handles = append(handles, h)
	}
	c.registry = make(map[string]*ResourceHandle)
	c.mu.Unlock()

	for _, h := range handles {
		h.Ctx.Close(ctx)
	}
	return c.meta.Close(ctx)
}

// instantiateLocked builds a new resource's StateContext from its spec.
// Caller must hold c.mu.
func (c *Coordinator) instantiateLocked(name string, spec ResourceSpec) (*ResourceHandle, error) {
	consumer, snap, err := c.factory(name, spec)
	if err != nil {
		return nil, fmt.Errorf("cluster: build resource %q: %w", name, err)
	}
	if c.cfg.SnapshotCompression.Algorithm != compression.AlgorithmNone {
		snap = compression.WrapSnapshotter(snap, c.cfg.SnapshotCompression)
	}
	segSize := spec.SegmentSize
	if segSize <= 0 {
		segSize = c.cfg.SegmentSize
	}
	log := raftlog.NewFileLog(c.cfg.MetaDir, "resource-"+name, segSize)
	raftCfg := raft.Config{
		Local:             c.cfg.Local,
		Members:           spec.Members,
		ElectionTimeout:   c.cfg.ElectionTimeout,
		HeartbeatInterval: c.cfg.HeartbeatInterval,
	}
	resCtx := raft.NewStateContext(raftCfg, log, c.dialer.ForTopic(name), consumer, snap)
	if err := resCtx.Open(context.Background()); err != nil {
		return nil, fmt.Errorf("cluster: open resource %q: %w", name, err)
	}
	return &ResourceHandle{Name: name, Ctx: resCtx}, nil
}

// submitTimeout returns the configured submission deadline, defaulting
// to five seconds.
func (c *Coordinator) submitTimeout() time.Duration {
	if c.cfg.SubmitTimeout > 0 {
		return c.cfg.SubmitTimeout
	}
	return 5 * time.Second
}

// CreateResource agrees, via the meta-log, that a new named resource
// should exist with the given spec. On success the registry is already
// populated locally (the same consumer that resolves this submission's
// future is what performs the instantiation). If the meta-log has no
// leader by the submission deadline this returns a ClusterError{NoLeader}
// rather than hanging indefinitely.
func (c *Coordinator) CreateResource(ctx context.Context, name string, spec ResourceSpec) (bool, error) {
	if name == "" {
		return false, ravelerrors.NewClusterError("resource name must not be empty")
	}
	payload, err := encodeCreate(name, spec)
	if err != nil {
		return false, err
	}
	return c.submit(ctx, payload)
}

// DeleteResource agrees, via the meta-log, that a named resource should
// be removed and closed.
func (c *Coordinator) DeleteResource(ctx context.Context, name string) (bool, error) {
	return c.submit(ctx, encodeDelete(name))
}

func (c *Coordinator) submit(ctx context.Context, payload []byte) (bool, error) {
	deadline, cancel := context.WithTimeout(ctx, c.submitTimeout())
	defer cancel()

	result, err := c.meta.Commit(&raft.CommitRequest{Payload: payload}).Wait(deadline)
	if err != nil {
		if deadline.Err() != nil {
			return false, ravelerrors.NoLeader()
		}
		return false, err
	}
	if !result.Success {
		if result.Err != nil {
			return false, result.Err
		}
		return false, ravelerrors.NoLeader()
	}
	return len(result.Result) == 1 && result.Result[0] == 1, nil
}

// GetResource looks up a resource already converged into the local
// registry. It never touches the meta-log.
func (c *Coordinator) GetResource(name string) (*ResourceHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.registry[name]
	return h, ok
}

// Resources lists every resource name currently in the local registry.
func (c *Coordinator) Resources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.registry))
	for name := range c.registry {
		names = append(names, name)
	}
	return names
}

// AddListener records a passive LISTENER member observed via discovery.
// Unlike MEMBER membership (fixed at resource creation), LISTENER
// membership is purely local bookkeeping: it never goes through the
// meta-log and never affects quorum. The lazy remote connection for a
// LISTENER is opened by the dialer the first time any resource replicates
// to it, and torn down here once it is no longer seen.
func (c *Coordinator) AddListener(id raft.MemberID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, already := c.listeners[id]; already {
		return
	}
	c.listeners[id] = struct{}{}
	c.logger.Info("listener discovered", "member", id)
}

// RemoveListener drops a LISTENER that discovery no longer sees, closing
// its lazily opened connection if the dialer supports it.
func (c *Coordinator) RemoveListener(id raft.MemberID) {
	c.mu.Lock()
	_, existed := c.listeners[id]
	delete(c.listeners, id)
	c.mu.Unlock()

	if !existed {
		return
	}
	if closer, ok := c.dialer.(interface{ ClosePeer(raft.MemberID) }); ok {
		closer.ClosePeer(id)
	}
	c.logger.Info("listener removed", "member", id)
}

// Listeners lists the currently known passive LISTENER members.
func (c *Coordinator) Listeners() []raft.MemberID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]raft.MemberID, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	return ids
}
