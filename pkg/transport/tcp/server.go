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
Package tcp is Ravel's default transport carrier: a plain TCP listener
on the server side and a small per-address connection pool on the
client side, both speaking internal/wire's envelope-over-message
framing.
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

	"golang.org/x/net/netutil"

	"ravel/internal/logging"
	protocol "ravel/internal/wire"
	"ravel/pkg/transport"
)

// ServerConfig configures the TCP listener.
type ServerConfig struct {
	ListenAddr string

	// MaxConnections caps concurrently accepted connections; 0 disables
	// the cap. Guards against a misbehaving or malicious peer exhausting
	// file descriptors with a connection flood.
	MaxConnections int

	// IdleTimeout closes a connection that sits between requests longer
	// than this. 0 or less selects the 2-minute default.
	IdleTimeout time.Duration

	// RequestTimeout bounds how long a single Handle call may run.
	RequestTimeout time.Duration

	// TLSConfig, when non-nil, wraps every accepted connection before
	// any framing is read — see internal/tls for building one from a
	// cert/key pair. Nil means plaintext, the default for loopback/dev
	// use and for LISTENER peers that only need confidentiality inside
	// an already-trusted network.
	TLSConfig *tls.Config
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Server is the default transport.Server: one TCP listener, one
// goroutine per accepted connection, each connection serving requests
// in a loop until the peer disconnects or goes idle.
type Server struct {
	cfg     ServerConfig
	handler transport.Handler
	logger  *logging.Logger

	mu   sync.Mutex
	ln   net.Listener
	wg   sync.WaitGroup
	done chan struct{}
}

var _ transport.Server = (*Server)(nil)

// NewServer returns a Server that dispatches accepted requests to handler.
func NewServer(cfg ServerConfig, handler transport.Handler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger("transport.tcp")
	}
	return &Server{cfg: cfg.withDefaults(), handler: handler, logger: logger, done: make(chan struct{})}
}

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("transport/tcp: listen %s: %w", s.cfg.ListenAddr, err)
	}
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listener address, or the empty string before
// Start succeeds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes the listener and waits for in-flight connection handlers
// to return.
func (s *Server) Stop() error {
	close(s.done)
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Debug("accept failed", "error", err)
				return
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			return // peer closed, went idle, or sent garbage
		}

		env, err := protocol.ReadEnvelope(bytes.NewReader(msg.Payload), len(msg.Payload))
		if err != nil {
			s.logger.Debug("malformed envelope", "remote", conn.RemoteAddr(), "error", err)
			return
		}

		replyType, replyPayload, herr := s.dispatch(env, msg.Header.Type)
		if herr != nil {
			replyType = protocol.MsgError
			errMsg := &protocol.ErrorMessage{Message: herr.Error()}
			replyPayload, _ = errMsg.Encode()
		}

		replyEnv := protocol.Envelope{Kind: env.Kind, Addr: env.Addr, Topic: env.Topic, Payload: replyPayload}
		var buf bytes.Buffer
		if err := protocol.WriteEnvelope(&buf, replyEnv); err != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(s.cfg.RequestTimeout))
		if err := protocol.WriteMessage(conn, replyType, protocol.FlagNone, buf.Bytes()); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(env protocol.Envelope, reqType protocol.MessageType) (protocol.MessageType, []byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	return s.handler.Handle(ctx, env, reqType)
}
