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

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureCompleteThenWait(t *testing.T) {
	f := NewFuture[int]()
	f.Complete(42, nil)

	v, err := f.Wait(context.Background())
	if err != nil || v != 42 {
		t.Fatalf("got (%d, %v), want (42, nil)", v, err)
	}
}

func TestFutureWaitBlocksUntilComplete(t *testing.T) {
	f := NewFuture[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Complete("done", nil)
	}()

	v, err := f.Wait(context.Background())
	if err != nil || v != "done" {
		t.Fatalf("got (%q, %v), want (\"done\", nil)", v, err)
	}
}

func TestFutureWaitRespectsContextCancellation(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestFutureCompleteIsIdempotent(t *testing.T) {
	f := NewFuture[int]()
	f.Complete(1, nil)
	f.Complete(2, errors.New("ignored"))

	v, err := f.Wait(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("second Complete should be ignored, got (%d, %v)", v, err)
	}
}

func TestResolvedAndFailed(t *testing.T) {
	rf := Resolved[int](7)
	v, err := rf.Wait(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("Resolved: got (%d, %v)", v, err)
	}

	cause := errors.New("boom")
	ff := Failed[int](cause)
	_, err = ff.Wait(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("Failed: got %v, want %v", err, cause)
	}
}
