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

	"golang.org/x/crypto/chacha20poly1305"
)

func TestSealerRoundTrips(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, chacha20poly1305.KeySize)
	sealer, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	plaintext := []byte("snapshot chunk payload")
	sealed, err := sealer.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(sealed, plaintext) {
		t.Fatal("sealed data should not equal plaintext")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened = %q, want %q", opened, plaintext)
	}
}

func TestSealerRejectsWrongKey(t *testing.T) {
	key1 := bytes.Repeat([]byte{0x01}, chacha20poly1305.KeySize)
	key2 := bytes.Repeat([]byte{0x02}, chacha20poly1305.KeySize)

	sealer1, err := NewSealer(key1)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealer2, err := NewSealer(key2)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := sealer1.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := sealer2.Open(sealed); err == nil {
		t.Fatal("expected Open with the wrong key to fail")
	}
}
