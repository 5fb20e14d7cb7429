/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package audit records cluster and replication lifecycle events —
leader elections, term changes, resource creation and deletion,
snapshot installs — for operator visibility. It is a pure observer: it
never feeds back into internal/raft's protocol decisions, and nothing
in internal/raft or internal/cluster depends on it being present.

Event Types:
============

  - Replication: LEADER_ELECTION, TERM_CHANGE, FAILOVER
  - Resource lifecycle: RESOURCE_CREATED, RESOURCE_DELETED
  - Snapshot: SNAPSHOT_TAKEN, SNAPSHOT_INSTALLED
  - LISTENER membership: LISTENER_JOIN, LISTENER_LEAVE

Storage:
========

Events are held by a pluggable Store; DefaultConfig is meant to be
paired with NewMemStore, an in-memory ring buffer sized by
Config.RetentionEvents. A longer-lived deployment can supply its own
Store (e.g. backed by a file or a dedicated resource) without changing
how events are produced.

Usage:
======

	mgr := audit.NewManager(audit.NewMemStore(10000), audit.DefaultConfig())
	defer mgr.Stop()

	w := audit.NewWatcher(mgr)
	w.WatchResource("orders", ordersCtx.Observer())
	coord.WithLifecycleHook(w.LifecycleHook())

Performance:
============

Logging is asynchronous: LogEvent enqueues onto a buffered channel and
returns immediately. A background worker batches writes and flushes on
a timer so a slow Store never blocks the raft executor goroutine that
published the event.
*/
package audit

import (
	"fmt"
	"sync"
	"time"

	"ravel/internal/logging"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventTypeLeaderElection EventType = "LEADER_ELECTION"
	EventTypeTermChange     EventType = "TERM_CHANGE"
	EventTypeFailover       EventType = "FAILOVER"

	EventTypeResourceCreated EventType = "RESOURCE_CREATED"
	EventTypeResourceDeleted EventType = "RESOURCE_DELETED"

	EventTypeSnapshotTaken     EventType = "SNAPSHOT_TAKEN"
	EventTypeSnapshotInstalled EventType = "SNAPSHOT_INSTALLED"

	EventTypeListenerJoin  EventType = "LISTENER_JOIN"
	EventTypeListenerLeave EventType = "LISTENER_LEAVE"
)

// Status represents the outcome of an audited event.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Event represents a single audit log entry.
type Event struct {
	ID         int64             `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  EventType         `json:"event_type"`
	Resource   string            `json:"resource"`
	Term       uint64            `json:"term,omitempty"`
	Member     string            `json:"member,omitempty"`
	Status     Status            `json:"status"`
	Detail     string            `json:"detail,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Config holds audit configuration.
type Config struct {
	Enabled          bool
	BufferSize       int
	FlushIntervalSec int
	RetentionEvents  int // 0 = unbounded (bounded only by the Store)
}

// DefaultConfig returns default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		BufferSize:       1000,
		FlushIntervalSec: 5,
		RetentionEvents:  10000,
	}
}

// Store persists audit events so they can be queried after the fact.
// MemStore is the default, in-process implementation; a deployment that
// needs durability across restarts can supply its own.
type Store interface {
	Append(Event) error
	Query(QueryOptions) ([]Event, error)
}

// Manager manages audit logging: events are enqueued by LogEvent and
// drained asynchronously by a background worker into the configured
// Store.
type Manager struct {
	config  Config
	store   Store
	logger  *logging.Logger
	buffer  chan Event
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	enabled bool
	nextID  int64
}

// NewManager creates a new audit manager writing into store.
func NewManager(store Store, config Config) *Manager {
	m := &Manager{
		config:  config,
		store:   store,
		logger:  logging.NewLogger("audit"),
		buffer:  make(chan Event, config.BufferSize),
		stopCh:  make(chan struct{}),
		enabled: config.Enabled,
	}

	if config.Enabled {
		m.wg.Add(1)
		go m.worker()
	}

	return m
}

// worker drains the buffer into the Store, either in batches of 100 or
// on the configured flush interval, whichever comes first.
func (m *Manager) worker() {
	defer m.wg.Done()

	interval := time.Duration(m.config.FlushIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, 100)

	for {
		select {
		case event := <-m.buffer:
			batch = append(batch, event)
			if len(batch) >= 100 {
				m.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				m.flushBatch(batch)
				batch = batch[:0]
			}

		case <-m.stopCh:
			for len(m.buffer) > 0 {
				batch = append(batch, <-m.buffer)
			}
			if len(batch) > 0 {
				m.flushBatch(batch)
			}
			return
		}
	}
}

func (m *Manager) flushBatch(events []Event) {
	for _, event := range events {
		if err := m.store.Append(event); err != nil {
			m.logger.Error("failed to write audit event", "error", err, "event_type", event.EventType)
		}
	}
}

// LogEvent logs an audit event asynchronously. The event is assigned a
// monotonically increasing ID and a timestamp if it doesn't have one.
func (m *Manager) LogEvent(event Event) {
	m.mu.RLock()
	enabled := m.enabled
	m.mu.RUnlock()
	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.nextID++
	event.ID = m.nextID
	m.mu.Unlock()

	select {
	case m.buffer <- event:
	default:
		m.logger.Warn("audit buffer full, dropping event", "event_type", event.EventType)
	}
}

// QueryOptions specifies options for querying audit logs.
type QueryOptions struct {
	StartTime time.Time
	EndTime   time.Time
	Resource  string
	EventType EventType
	Status    Status
	Limit     int
	Offset    int
}

// QueryLogs retrieves audit logs matching the given criteria.
func (m *Manager) QueryLogs(opts QueryOptions) ([]Event, error) {
	return m.store.Query(opts)
}

// ExportFormat represents the export format for audit logs.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// ExportLogs exports audit logs matching opts to a file in the
// specified format.
func (m *Manager) ExportLogs(filename string, format ExportFormat, opts QueryOptions) error {
	events, err := m.QueryLogs(opts)
	if err != nil {
		return err
	}
	return m.ExportEvents(filename, format, events)
}

// ExportEvents exports a specific set of events to a file.
func (m *Manager) ExportEvents(filename string, format ExportFormat, events []Event) error {
	switch format {
	case FormatJSON:
		return m.exportJSON(filename, events)
	case FormatCSV:
		return m.exportCSV(filename, events)
	default:
		return fmt.Errorf("audit: unsupported export format: %s", format)
	}
}

// Stop stops the audit manager and flushes pending events.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

// Enable enables audit logging.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Disable disables audit logging.
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// IsEnabled returns whether audit logging is enabled.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}
