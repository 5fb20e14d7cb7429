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

import ravelerrors "ravel/internal/errors"

// runApplyLoop drives entries from lastApplied+1 through commitIndex into
// the consumer, in order. It always runs on the executor goroutine, so it
// never races with a role transition or another Apply call.
//
// The consumer is required to be total: a returned error only fails that
// entry's own pending future, it never stops lastApplied from advancing.
// Leaving an entry unapplied would stall every later index behind it
// forever, which is worse than surfacing one failed commit.
func runApplyLoop(ctx *StateContext) {
	for ctx.volatile.LastApplied < ctx.volatile.CommitIndex {
		index := ctx.volatile.LastApplied + 1
		entry, err := ctx.log.Get(index)
		if err != nil {
			ctx.logger.Error("apply loop: missing committed entry", "index", index, "error", err)
			return
		}

		result, applyErr := ctx.consume.Apply(index, entry.Payload)

		if setErr := ctx.setLastApplied(index); setErr != nil {
			ctx.logger.Error("apply loop: setLastApplied failed", "index", index, "error", setErr)
			return
		}

		pending, ok := ctx.pending[index]
		if !ok {
			continue
		}
		delete(ctx.pending, index)
		if applyErr != nil {
			pending.Complete(&CommitResult{Success: false, Err: ravelerrors.ApplyFailed(index, applyErr)}, nil)
		} else {
			pending.Complete(&CommitResult{Success: true, Result: result}, nil)
		}
	}
}
