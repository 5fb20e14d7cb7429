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

package tcp

import "ravel/internal/raft"

// MultiTopicDialer shares one Dialer's connection pool across the
// ClusterCoordinator's meta-log and every resource it hosts, handing
// each caller a raft.PeerDialer scoped to its own envelope topic. It
// satisfies internal/cluster.TopicDialer without that package needing
// to import pkg/transport.
type MultiTopicDialer struct {
	dialer *Dialer
}

// NewMultiTopicDialer wraps dialer for per-topic scoping.
func NewMultiTopicDialer(dialer *Dialer) *MultiTopicDialer {
	return &MultiTopicDialer{dialer: dialer}
}

// ForTopic returns a raft.PeerDialer that addresses RPCs for topic
// (the empty string is the reserved admin/meta-log topic).
func (m *MultiTopicDialer) ForTopic(topic string) raft.PeerDialer {
	return NewResourcePeerDialer(m.dialer, topic)
}

// ClosePeer drops pooled idle connections to id, used by
// cluster.Coordinator.RemoveListener when a passive LISTENER leaves.
// MemberID is treated as its dial address (see peer.go).
func (m *MultiTopicDialer) ClosePeer(id raft.MemberID) {
	m.dialer.CloseAddr(string(id))
}
