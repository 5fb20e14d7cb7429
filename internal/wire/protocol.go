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
Package protocol implements Ravel's binary wire protocol.

Message Format:
===============

	+--------+--------+--------+--------+--------+--------+--------+--------+
	| Magic  | Version| MsgType| Flags  |            Length (4B)            |
	+--------+--------+--------+--------+--------+--------+--------+--------+

	- Magic (1 byte): protocol magic number (0xAF)
	- Version (1 byte): protocol version (currently 0x01)
	- MsgType (1 byte): RPC message type identifier
	- Flags (1 byte): message flags (sealed, etc.)
	- Length (4 bytes): payload length, big-endian
	- Payload: variable-length message body

Message Types:
==============

	- 0x01: Ping         - leader liveness heartbeat, no entries
	- 0x02: PingResult
	- 0x03: Poll         - RequestVote
	- 0x04: PollResult
	- 0x05: Append       - AppendEntries, carries log entries
	- 0x06: AppendResult
	- 0x07: Query        - consistent read request
	- 0x08: QueryResult
	- 0x09: Commit       - client command submission
	- 0x0A: CommitResult
	- 0x0B: Sync         - snapshot chunk transfer
	- 0x0C: SyncResult
	- 0x0D: Error        - structured error response
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// Protocol constants.
const (
	MagicByte       byte = 0xAF
	ProtocolVersion byte = 0x01

	// MaxMessageSize bounds a single payload (16 MiB); larger transfers
	// (snapshots) go through Sync in chunks.
	MaxMessageSize = 16 * 1024 * 1024

	HeaderSize = 8
)

// MessageType identifies the RPC carried by a frame.
type MessageType byte

const (
	MsgPing         MessageType = 0x01
	MsgPingResult   MessageType = 0x02
	MsgPoll         MessageType = 0x03
	MsgPollResult   MessageType = 0x04
	MsgAppend       MessageType = 0x05
	MsgAppendResult MessageType = 0x06
	MsgQuery        MessageType = 0x07
	MsgQueryResult  MessageType = 0x08
	MsgCommit       MessageType = 0x09
	MsgCommitResult MessageType = 0x0A
	MsgSync         MessageType = 0x0B
	MsgSyncResult   MessageType = 0x0C
	MsgError        MessageType = 0x0D
)

// MessageFlag carries out-of-band framing hints.
type MessageFlag byte

const (
	FlagNone     MessageFlag = 0x00
	FlagSealed   MessageFlag = 0x01 // payload is AEAD-sealed, see Sealer
	FlagCompressed MessageFlag = 0x02 // payload is compressed, see internal/compression
)

// Header is a fixed-size protocol frame header.
type Header struct {
	Magic   byte
	Version byte
	Type    MessageType
	Flags   MessageFlag
	Length  uint32
}

// Message is a complete protocol frame.
type Message struct {
	Header  Header
	Payload []byte
}

var (
	ErrInvalidMagic    = errors.New("wire: invalid protocol magic byte")
	ErrInvalidVersion  = errors.New("wire: unsupported protocol version")
	ErrMessageTooLarge = errors.New("wire: message exceeds maximum size")
)

// WriteHeader writes a frame header to w.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Magic
	buf[1] = h.Version
	buf[2] = byte(h.Type)
	buf[3] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[4:], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a frame header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}

	h := Header{
		Magic:   buf[0],
		Version: buf[1],
		Type:    MessageType(buf[2]),
		Flags:   MessageFlag(buf[3]),
		Length:  binary.BigEndian.Uint32(buf[4:]),
	}

	if h.Magic != MagicByte {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != ProtocolVersion {
		return Header{}, ErrInvalidVersion
	}
	if h.Length > MaxMessageSize {
		return Header{}, ErrMessageTooLarge
	}

	return h, nil
}

// WriteMessage frames and writes a complete message to w.
func WriteMessage(w io.Writer, msgType MessageType, flags MessageFlag, payload []byte) error {
	h := Header{
		Magic:   MagicByte,
		Version: ProtocolVersion,
		Type:    msgType,
		Flags:   flags,
		Length:  uint32(len(payload)),
	}

	if err := WriteHeader(w, h); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete framed message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	msg := &Message{Header: h}
	if h.Length > 0 {
		msg.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, err
		}
	}
	return msg, nil
}
