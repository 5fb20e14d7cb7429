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

package protocol

import (
	"bytes"
	"testing"
)

func TestWriteAndReadHeader(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{
			name: "Ping message",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgPing,
				Flags:   FlagNone,
				Length:  100,
			},
		},
		{
			name: "Poll message",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgPoll,
				Flags:   FlagNone,
				Length:  50,
			},
		},
		{
			name: "Sealed message",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgAppend,
				Flags:   FlagSealed,
				Length:  1000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			if err := WriteHeader(buf, tt.header); err != nil {
				t.Fatalf("WriteHeader failed: %v", err)
			}

			readHeader, err := ReadHeader(buf)
			if err != nil {
				t.Fatalf("ReadHeader failed: %v", err)
			}

			if readHeader != tt.header {
				t.Errorf("header mismatch: got %+v, want %+v", readHeader, tt.header)
			}
		})
	}
}

func TestWriteAndReadMessage(t *testing.T) {
	payload := []byte(`{"term":4,"candidate":"tcp://node-2:7500"}`)

	buf := new(bytes.Buffer)
	if err := WriteMessage(buf, MsgPoll, FlagNone, payload); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	msg, err := ReadMessage(buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	if msg.Header.Type != MsgPoll {
		t.Errorf("Type mismatch: got %x, want %x", msg.Header.Type, MsgPoll)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("Payload mismatch: got %s, want %s", msg.Payload, payload)
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := new(bytes.Buffer)
	h := Header{Magic: 0x00, Version: ProtocolVersion, Type: MsgPing}
	if err := WriteHeader(buf, h); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	if _, err := ReadHeader(buf); err != ErrInvalidMagic {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReadHeaderRejectsOversizedLength(t *testing.T) {
	buf := new(bytes.Buffer)
	h := Header{Magic: MagicByte, Version: ProtocolVersion, Type: MsgSync, Length: MaxMessageSize + 1}
	if err := WriteHeader(buf, h); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	if _, err := ReadHeader(buf); err != ErrMessageTooLarge {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestEnvelopeRoundTripAdmin(t *testing.T) {
	env := Envelope{Kind: EnvelopeAdmin, Addr: 7, Payload: []byte("create orders")}

	buf := new(bytes.Buffer)
	if err := WriteEnvelope(buf, env); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	decoded, err := ReadEnvelope(buf, 8+len(env.Payload))
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if decoded.Kind != env.Kind || decoded.Addr != env.Addr {
		t.Errorf("envelope header mismatch: got %+v", decoded)
	}
	if !bytes.Equal(decoded.Payload, env.Payload) {
		t.Errorf("payload mismatch: got %s, want %s", decoded.Payload, env.Payload)
	}
}

func TestEnvelopeRoundTripTopic(t *testing.T) {
	env := Envelope{Kind: EnvelopeTopic, Addr: 3, Topic: "orders", Payload: []byte("poll-term-4")}

	buf := new(bytes.Buffer)
	if err := WriteEnvelope(buf, env); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	total := 8 + 4 + len(env.Topic) + len(env.Payload)
	decoded, err := ReadEnvelope(buf, total)
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if decoded.Topic != env.Topic {
		t.Errorf("topic mismatch: got %s, want %s", decoded.Topic, env.Topic)
	}
	if !bytes.Equal(decoded.Payload, env.Payload) {
		t.Errorf("payload mismatch: got %s, want %s", decoded.Payload, env.Payload)
	}
}
