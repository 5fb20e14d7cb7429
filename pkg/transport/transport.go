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
Package transport defines the boundary between Ravel's wire encoding
(internal/wire) and a concrete network carrier. internal/raft and
internal/cluster depend only on the interfaces declared here (and, for
the client side, on internal/raft.Peer/PeerDialer directly); the TCP
carrier lives in pkg/transport/tcp, and service discovery lives in
pkg/transport/discover.

One logical request/reply is one outer protocol.Message frame whose
payload is a protocol.Envelope: Envelope.Kind routes admin-plane
traffic (ClusterCoordinator's meta-log) from per-resource
traffic (Envelope.Topic names the resource), and Envelope.Payload holds
the encoded internal/wire message body for whatever RPC the outer
frame's Header.Type names. A Handler decodes that body, dispatches it,
and returns the reply's MessageType and encoded body for the transport
to frame and send back.
*/
package transport

import (
	"context"

	protocol "ravel/internal/wire"
)

// Handler dispatches one decoded inbound frame and produces a reply
// frame. Implementations live in internal/router, wiring a
// cluster.Coordinator's resource registry and admin meta-log.
type Handler interface {
	Handle(ctx context.Context, env protocol.Envelope, reqType protocol.MessageType) (replyType protocol.MessageType, replyPayload []byte, err error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, env protocol.Envelope, reqType protocol.MessageType) (protocol.MessageType, []byte, error)

func (f HandlerFunc) Handle(ctx context.Context, env protocol.Envelope, reqType protocol.MessageType) (protocol.MessageType, []byte, error) {
	return f(ctx, env, reqType)
}

// Server accepts inbound connections and dispatches framed requests to
// a Handler until Stop is called.
type Server interface {
	Start() error
	Stop() error
	Addr() string
}

// RoundTripper sends one framed request to addr and returns the framed
// reply. Concrete client implementations (pkg/transport/tcp.Dialer)
// pool and reuse connections per address.
type RoundTripper interface {
	RoundTrip(ctx context.Context, addr string, env protocol.Envelope, reqType protocol.MessageType) (replyType protocol.MessageType, replyPayload []byte, err error)
	CloseAddr(addr string)
	Close() error
}
