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

import "sync"

// Executor is a serial task queue: every task posted to it runs on the
// same goroutine, in the order posted. One resource owns exactly one
// Executor, and every mutation of that resource's StateContext, role,
// and log runs through it — this is what lets the rest of the package
// treat Raft state as single-threaded with no locking.
type Executor struct {
	tasks  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewExecutor creates and starts an Executor with the given task queue
// depth. A depth of 0 still works (unbuffered) but couples posters to
// the consumer's pace.
func NewExecutor(queueDepth int) *Executor {
	e := &Executor{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.done:
			// Drain any remaining queued tasks before exiting so that
			// posted-but-not-yet-run completions still fire.
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn to run on the executor's goroutine. Post never blocks
// the caller beyond the queue being full. Post on a closed executor is a
// no-op; fn is dropped.
func (e *Executor) Post(fn func()) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	select {
	case e.tasks <- fn:
	case <-e.done:
	}
}

// Close stops accepting new tasks, drains the queue, and waits for the
// goroutine to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.done)
	e.wg.Wait()
}
