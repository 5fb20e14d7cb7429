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

package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestRavelErrorBasic(t *testing.T) {
	err := NoLeader()

	if err.Code != ErrCodeNoLeader {
		t.Errorf("Expected code %d, got %d", ErrCodeNoLeader, err.Code)
	}
	if err.Category != CategoryCluster {
		t.Errorf("Expected category %s, got %s", CategoryCluster, err.Category)
	}
	if !strings.Contains(err.Error(), "no known leader") {
		t.Errorf("Expected error message to contain 'no known leader', got: %s", err.Error())
	}
}

func TestRavelErrorWithDetail(t *testing.T) {
	err := NewCommitError("apply rejected").WithDetail("consumer returned error")

	if err.Detail != "consumer returned error" {
		t.Errorf("Expected detail 'consumer returned error', got: %s", err.Detail)
	}
	if !strings.Contains(err.Error(), "consumer returned error") {
		t.Errorf("Expected error to contain detail, got: %s", err.Error())
	}
}

func TestRavelErrorWithHint(t *testing.T) {
	err := NoLeader()

	userMsg := err.UserMessage()
	if !strings.Contains(userMsg, "HINT:") {
		t.Errorf("Expected user message to contain HINT, got: %s", userMsg)
	}
	if !strings.Contains(userMsg, "election") {
		t.Errorf("Expected hint in user message, got: %s", userMsg)
	}
}

func TestRavelErrorWithCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewLogError("append failed").WithCause(cause)

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
}

func TestClusterErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *RavelError
		code     ErrorCode
		category Category
	}{
		{"NoLeader", NoLeader(), ErrCodeNoLeader, CategoryCluster},
		{"Unreachable", Unreachable("tcp://node-2:9000"), ErrCodeUnreachable, CategoryCluster},
		{"NotLeader", NotLeader("tcp://node-1:9000"), ErrCodeNotLeader, CategoryCluster},
		{"ResourceExists", ResourceExists("orders"), ErrCodeResourceExists, CategoryCluster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, tt.err.Code)
			}
			if tt.err.Category != tt.category {
				t.Errorf("Expected category %s, got %s", tt.category, tt.err.Category)
			}
		})
	}
}

func TestIllegalStateConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *RavelError
		code ErrorCode
	}{
		{"IndexDecreased", IndexDecreased("commitIndex", 5, 3), ErrCodeIndexDecreased},
		{"DoubleVote", DoubleVote(4, "tcp://a", "tcp://b"), ErrCodeDoubleVote},
		{"ClosedContext", ClosedContext(), ErrCodeClosedContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, tt.err.Code)
			}
			if tt.err.Category != CategoryIllegalState {
				t.Errorf("Expected category %s, got %s", CategoryIllegalState, tt.err.Category)
			}
		})
	}
}

func TestErrorCategoryChecks(t *testing.T) {
	clusterErr := NoLeader()
	commitErr := NewCommitError("test")
	logErr := NewLogError("test")

	if !IsClusterError(clusterErr) {
		t.Error("Expected IsClusterError to return true for cluster error")
	}
	if IsClusterError(commitErr) {
		t.Error("Expected IsClusterError to return false for commit error")
	}
	if !IsCommitError(commitErr) {
		t.Error("Expected IsCommitError to return true for commit error")
	}
	if !IsLogError(logErr) {
		t.Error("Expected IsLogError to return true for log error")
	}
}

func TestGetCode(t *testing.T) {
	err := ResourceGone("orders")
	if GetCode(err) != ErrCodeResourceGone {
		t.Errorf("Expected code %d, got %d", ErrCodeResourceGone, GetCode(err))
	}

	regularErr := errors.New("regular error")
	if GetCode(regularErr) != 0 {
		t.Errorf("Expected code 0 for regular error, got %d", GetCode(regularErr))
	}
}

func TestFormatError(t *testing.T) {
	ravelErr := NewProtocolError("test error")
	formatted := FormatError(ravelErr)
	if !strings.HasPrefix(formatted, "ERROR:") {
		t.Errorf("Expected formatted error to start with 'ERROR:', got: %s", formatted)
	}

	regularErr := errors.New("regular error")
	formatted = FormatError(regularErr)
	if !strings.Contains(formatted, "regular error") {
		t.Errorf("Expected formatted error to contain message, got: %s", formatted)
	}
}
