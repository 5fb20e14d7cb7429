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
Connection pooling for the TCP client mirrors the acquire/release
discipline of a database connection pool: at most MaxIdlePerAddr idle
connections kept per remote address and reused across requests,
broken ones discarded rather than returned. The number of live
connections per address is not capped. Unlike a SQL connection
pool there is no session handshake to redo on reconnect — a fresh
net.Conn is immediately usable for the next framed request.
*/
package tcp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"ravel/internal/logging"
	protocol "ravel/internal/wire"
	"ravel/pkg/transport"
)

// DialerConfig configures the client-side connection pool.
type DialerConfig struct {
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	MaxIdlePerAddr int

	// TLSConfig, when non-nil, is used to negotiate TLS on every new
	// connection this Dialer opens. Leave nil for plaintext dialing.
	TLSConfig *tls.Config

	// Sealer, when non-nil, additionally encrypts Sync snapshot chunk
	// payloads with a pre-shared cluster key (see internal/wire.Sealer),
	// independent of whether TLSConfig is also set.
	Sealer *protocol.Sealer
}

func (c DialerConfig) withDefaults() DialerConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 500 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Second
	}
	if c.MaxIdlePerAddr <= 0 {
		c.MaxIdlePerAddr = 4
	}
	return c
}

// addrPool holds idle connections to one remote address.
type addrPool struct {
	mu    sync.Mutex
	idle  []net.Conn
	total int
}

// Dialer is a transport.RoundTripper backed by pooled, short-request
// TCP connections: each RoundTrip call borrows a connection, writes one
// framed request, reads its reply, and returns the connection to the
// pool (or discards it on any I/O error).
type Dialer struct {
	cfg    DialerConfig
	logger *logging.Logger

	mu    sync.Mutex
	pools map[string]*addrPool
}

var _ transport.RoundTripper = (*Dialer)(nil)

// NewDialer returns a Dialer ready to connect to arbitrary addresses.
func NewDialer(cfg DialerConfig, logger *logging.Logger) *Dialer {
	if logger == nil {
		logger = logging.NewLogger("transport.tcp")
	}
	return &Dialer{cfg: cfg.withDefaults(), logger: logger, pools: make(map[string]*addrPool)}
}

// Sealer returns the configured AEAD sealer for Sync payloads, or nil
// if none was configured.
func (d *Dialer) Sealer() *protocol.Sealer {
	return d.cfg.Sealer
}

func (d *Dialer) poolFor(addr string) *addrPool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[addr]
	if !ok {
		p = &addrPool{}
		d.pools[addr] = p
	}
	return p
}

func (d *Dialer) acquire(addr string) (net.Conn, error) {
	p := d.poolFor(addr)

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.total++
	p.mu.Unlock()

	conn, err := d.dial(addr)
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return nil, fmt.Errorf("transport/tcp: dial %s: %w", addr, err)
	}
	return conn, nil
}

func (d *Dialer) dial(addr string) (net.Conn, error) {
	if d.cfg.TLSConfig != nil {
		dialer := &net.Dialer{Timeout: d.cfg.DialTimeout}
		return tls.DialWithDialer(dialer, "tcp", addr, d.cfg.TLSConfig)
	}
	return net.DialTimeout("tcp", addr, d.cfg.DialTimeout)
}

func (d *Dialer) release(addr string, conn net.Conn, healthy bool) {
	p := d.poolFor(addr)
	if !healthy {
		conn.Close()
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	if len(p.idle) >= d.cfg.MaxIdlePerAddr {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// RoundTrip sends one request frame to addr and returns the reply frame.
func (d *Dialer) RoundTrip(ctx context.Context, addr string, env protocol.Envelope, reqType protocol.MessageType) (protocol.MessageType, []byte, error) {
	conn, err := d.acquire(addr)
	if err != nil {
		return 0, nil, err
	}

	var buf bytes.Buffer
	if err := protocol.WriteEnvelope(&buf, env); err != nil {
		d.release(addr, conn, false)
		return 0, nil, fmt.Errorf("transport/tcp: encode envelope: %w", err)
	}

	deadline := time.Now().Add(d.cfg.RequestTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if err := protocol.WriteMessage(conn, reqType, protocol.FlagNone, buf.Bytes()); err != nil {
		d.release(addr, conn, false)
		return 0, nil, fmt.Errorf("transport/tcp: write %s: %w", addr, err)
	}

	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		d.release(addr, conn, false)
		return 0, nil, fmt.Errorf("transport/tcp: read %s: %w", addr, err)
	}

	replyEnv, err := protocol.ReadEnvelope(bytes.NewReader(msg.Payload), len(msg.Payload))
	if err != nil {
		d.release(addr, conn, false)
		return 0, nil, fmt.Errorf("transport/tcp: decode envelope from %s: %w", addr, err)
	}

	d.release(addr, conn, true)

	if msg.Header.Type == protocol.MsgError {
		errMsg, err := protocol.DecodeErrorMessage(replyEnv.Payload)
		if err != nil {
			return 0, nil, fmt.Errorf("transport/tcp: malformed error from %s: %w", addr, err)
		}
		return 0, nil, fmt.Errorf("transport/tcp: %s: %s", addr, errMsg.Message)
	}

	return msg.Header.Type, replyEnv.Payload, nil
}

// CloseAddr drops every pooled idle connection to addr, used when a
// peer is known to have gone away (e.g. a LISTENER leaving the
// cluster) so stale connections don't linger until their next failed use.
func (d *Dialer) CloseAddr(addr string) {
	d.mu.Lock()
	p, ok := d.pools[addr]
	delete(d.pools, addr)
	d.mu.Unlock()
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.idle {
		c.Close()
	}
}

// Close drops every pooled connection to every address.
func (d *Dialer) Close() error {
	d.mu.Lock()
	pools := d.pools
	d.pools = make(map[string]*addrPool)
	d.mu.Unlock()

	for _, p := range pools {
		p.mu.Lock()
		for _, c := range p.idle {
			c.Close()
		}
		p.mu.Unlock()
	}
	return nil
}
