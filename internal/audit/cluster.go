/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"sync"

	"ravel/internal/cluster"
	"ravel/internal/logging"
	"ravel/internal/raft"
)

// Watcher turns a resource's raft.Observer pub/sub and a Coordinator's
// resource lifecycle hook into audit events. It holds no raft or
// cluster state of its own beyond what's needed to unsubscribe on
// Close, and never returns anything to its callers that could
// influence a protocol decision.
type Watcher struct {
	mgr    *Manager
	logger *logging.Logger

	mu       sync.Mutex
	cancels  []func()
	lastTerm map[string]uint64
}

// NewWatcher returns a Watcher that logs into mgr.
func NewWatcher(mgr *Manager) *Watcher {
	return &Watcher{
		mgr:      mgr,
		logger:   logging.NewLogger("audit.watcher"),
		lastTerm: make(map[string]uint64),
	}
}

// WatchResource subscribes to obs and records a LEADER_ELECTION or
// TERM_CHANGE event for every StatusEvent published for the resource
// named name (name is "" for the Coordinator's own meta-log). The
// subscription is torn down when Close is called.
func (w *Watcher) WatchResource(name string, obs *raft.Observer) {
	ch, cancel := obs.Subscribe()

	w.mu.Lock()
	w.cancels = append(w.cancels, cancel)
	w.mu.Unlock()

	go func() {
		for ev := range ch {
			w.recordStatus(name, ev)
		}
	}()
}

func (w *Watcher) recordStatus(name string, ev raft.StatusEvent) {
	w.mu.Lock()
	prevTerm, seen := w.lastTerm[name]
	if ev.Status == raft.COMPLETE {
		// lastTerm tracks the last term a leader was recorded for, so an
		// IN_PROGRESS event earlier in the same term does not mask it.
		w.lastTerm[name] = ev.Term
	}
	w.mu.Unlock()

	eventType := EventTypeTermChange
	if ev.Status == raft.COMPLETE {
		eventType = EventTypeLeaderElection
	}
	if seen && ev.Term == prevTerm && ev.Status == raft.COMPLETE {
		// Leader reconfirmed on an already-recorded term; nothing new
		// to report.
		return
	}

	w.mgr.LogEvent(Event{
		EventType: eventType,
		Resource:  name,
		Term:      ev.Term,
		Member:    string(ev.Leader),
		Status:    StatusSuccess,
		Detail:    ev.Status.String(),
	})
}

// LifecycleHook returns a cluster.LifecycleHook that records a
// RESOURCE_CREATED or RESOURCE_DELETED event for every resource the
// Coordinator's meta-log creates or deletes. Pass it to
// cluster.Coordinator.WithLifecycleHook.
func (w *Watcher) LifecycleHook() cluster.LifecycleHook {
	return func(ev cluster.ResourceLifecycleEvent) {
		eventType := EventTypeResourceCreated
		if ev.Kind == cluster.ResourceDeleted {
			eventType = EventTypeResourceDeleted
		}
		w.mgr.LogEvent(Event{
			EventType: eventType,
			Resource:  ev.Name,
			Status:    StatusSuccess,
			Detail:    ev.Kind.String(),
		})
	}
}

// RecordSnapshot logs a SNAPSHOT_TAKEN or SNAPSHOT_INSTALLED event for
// resource. Callers wire this in wherever they build a resource's
// Snapshotter (see pkg/statelog), since internal/raft itself has no
// notion of audit events.
func (w *Watcher) RecordSnapshot(resource string, installed bool, err error) {
	eventType := EventTypeSnapshotTaken
	if installed {
		eventType = EventTypeSnapshotInstalled
	}
	status := StatusSuccess
	detail := ""
	if err != nil {
		status = StatusFailed
		detail = err.Error()
	}
	w.mgr.LogEvent(Event{
		EventType: eventType,
		Resource:  resource,
		Status:    status,
		Detail:    detail,
	})
}

// Close unsubscribes every WatchResource subscription.
func (w *Watcher) Close() {
	w.mu.Lock()
	cancels := w.cancels
	w.cancels = nil
	w.mu.Unlock()
	w.logger.Info("closing audit watcher", "subscriptions", len(cancels))
	for _, cancel := range cancels {
		cancel()
	}
}
