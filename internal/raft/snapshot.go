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

import "ravel/internal/raftlog"

// installSnapshot replaces this node's state with a snapshot received via
// Sync: it discards the covered log prefix, fast-forwards commitIndex and
// lastApplied to the snapshot boundary, and delivers the blob to the
// consumer's Snapshotter. Always runs on the executor goroutine.
func installSnapshot(ctx *StateContext, snap raftlog.Snapshot) error {
	if err := ctx.snap.Install(snap.Blob); err != nil {
		return err
	}
	if err := ctx.log.Compact(snap.LastIncludedIndex, snap); err != nil {
		return err
	}
	if snap.LastIncludedIndex > ctx.volatile.CommitIndex {
		ctx.volatile.CommitIndex = snap.LastIncludedIndex
	}
	if snap.LastIncludedIndex > ctx.volatile.LastApplied {
		ctx.volatile.LastApplied = snap.LastIncludedIndex
	}
	return nil
}

// takeSnapshot asks the consumer for a point-in-time snapshot covering
// everything through throughIndex and compacts the log up to it. Intended
// to be triggered by a size-threshold policy once the commit/apply
// pipeline has advanced lastApplied past throughIndex.
func takeSnapshot(ctx *StateContext, throughIndex uint64) error {
	if throughIndex > ctx.volatile.LastApplied {
		throughIndex = ctx.volatile.LastApplied
	}
	if throughIndex == 0 {
		return nil
	}
	entry, err := ctx.log.Get(throughIndex)
	if err != nil {
		return err
	}
	blob, err := ctx.snap.Snapshot()
	if err != nil {
		return err
	}
	snap := raftlog.Snapshot{
		LastIncludedIndex: throughIndex,
		LastIncludedTerm:  entry.Term,
		Blob:              blob,
	}
	return ctx.log.Compact(throughIndex, snap)
}
