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
Package compression provides configurable compression for snapshot
blobs and Sync chunks.

Supported Algorithms:
=====================

1. LZ4: Fast compression/decompression, moderate ratio
2. Snappy: Very fast, lower ratio, good for real-time
3. Zstd: Best ratio, configurable speed/ratio tradeoff
4. Gzip: stdlib fallback, kept for configs written before zstd landed

Batch Compression:
==================

Batching multiple entries before compression improves ratios:
1. Collect entries into a batch
2. Compress the entire batch
3. Store/transmit compressed batch
4. Decompress and split on read
*/
package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmGzip
	AlgorithmLZ4
	AlgorithmSnappy
	AlgorithmZstd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses a compression algorithm from string
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "none", "":
		return AlgorithmNone, nil
	case "gzip":
		return AlgorithmGzip, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "snappy":
		return AlgorithmSnappy, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return AlgorithmNone, fmt.Errorf("unknown compression algorithm: %s", s)
	}
}

// Level represents compression level
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 5
	LevelBest    Level = 9
)

// Config holds compression configuration
type Config struct {
	Algorithm        Algorithm `json:"algorithm"`
	Level            Level     `json:"level"`
	MinSize          int       `json:"min_size"`           // Minimum size to compress
	BatchSize        int       `json:"batch_size"`         // Number of entries per batch
	BatchTimeout     int       `json:"batch_timeout_ms"`   // Max wait time for batch (ms)
	DictionaryEnable bool      `json:"dictionary_enable"`  // Use dictionary compression
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Algorithm:        AlgorithmGzip,
		Level:            LevelDefault,
		MinSize:          256,
		BatchSize:        100,
		BatchTimeout:     10,
		DictionaryEnable: false,
	}
}

// Errors
var (
	ErrDataTooSmall     = errors.New("data too small to compress")
	ErrInvalidHeader    = errors.New("invalid compression header")
	ErrUnsupportedAlgo  = errors.New("unsupported compression algorithm")
	ErrDecompressFailed = errors.New("decompression failed")
)

// Compressor provides compression/decompression operations for one
// configured algorithm. A zero-value zstd encoder/decoder pair is
// expensive to build, so both are created once and reused; gzip
// writers come from a sync.Pool for the same reason.
type Compressor struct {
	config     Config
	gzipPool   sync.Pool
	bufferPool sync.Pool

	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

// NewCompressor creates a new compressor bound to config.Algorithm.
// The zstd encoder/decoder pair is built eagerly regardless of the
// configured algorithm.
func NewCompressor(config Config) *Compressor {
	level := zstdLevel(config.Level)
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		enc, _ = zstd.NewWriter(nil)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		dec = nil
	}

	return &Compressor{
		config: config,
		gzipPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
		zstdEnc: enc,
		zstdDec: dec,
	}
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch {
	case l <= LevelFastest:
		return zstd.SpeedFastest
	case l >= LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Compress encodes data with the Compressor's configured algorithm.
// Data shorter than config.MinSize is returned unchanged; callers that
// need to remember whether a given blob was actually compressed must
// track that themselves alongside the bytes, or use CompressTagged,
// which returns the algorithm actually applied.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) < c.config.MinSize {
		return data, nil
	}
	switch c.config.Algorithm {
	case AlgorithmNone:
		return data, nil
	case AlgorithmGzip:
		return c.compressGzip(data)
	case AlgorithmLZ4:
		return c.compressLZ4(data)
	case AlgorithmSnappy:
		return snappy.Encode(nil, data), nil
	case AlgorithmZstd:
		return c.zstdEnc.EncodeAll(data, nil), nil
	default:
		return nil, ErrUnsupportedAlgo
	}
}

// Decompress decodes data that was produced by Compress under algo.
func (c *Compressor) Decompress(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		return data, nil
	case AlgorithmGzip:
		return c.decompressGzip(data)
	case AlgorithmLZ4:
		return c.decompressLZ4(data)
	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil
	case AlgorithmZstd:
		out, err := c.zstdDec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil
	default:
		return nil, ErrUnsupportedAlgo
	}
}

func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	w := c.gzipPool.Get().(*gzip.Writer)
	defer c.gzipPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compression: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compression: gzip close: %w", err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (c *Compressor) decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out, nil
}

func (c *Compressor) compressLZ4(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := lz4.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compression: lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compression: lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Compressor) decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out, nil
}

// BatchCompressor accumulates whole entries and compresses them as one
// unit, trading per-entry framing overhead for a better ratio across
// similar small records (WAL segments, a burst of Commit payloads).
// The wire format is { u32 count, [u32 len, bytes]... } compressed as
// a single blob under the configured algorithm.
type BatchCompressor struct {
	compressor *Compressor
	entries    [][]byte
}

// NewBatchCompressor returns a BatchCompressor using config's
// algorithm and level.
func NewBatchCompressor(config Config) *BatchCompressor {
	// Every frame is compressed regardless of size, so DecompressBatch
	// can always reverse Flush under the configured algorithm.
	config.MinSize = 0
	return &BatchCompressor{compressor: NewCompressor(config)}
}

// Add appends entry to the pending batch. The slice is retained, not
// copied; callers must not mutate it afterward.
func (b *BatchCompressor) Add(entry []byte) {
	b.entries = append(b.entries, entry)
}

// Flush frames and compresses every entry added since the last Flush,
// then clears the pending batch.
func (b *BatchCompressor) Flush() ([]byte, error) {
	var framed bytes.Buffer
	countHeader := make([]byte, 4)
	binary.BigEndian.PutUint32(countHeader, uint32(len(b.entries)))
	framed.Write(countHeader)

	lenBuf := make([]byte, 4)
	for _, e := range b.entries {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(e)))
		framed.Write(lenBuf)
		framed.Write(e)
	}
	b.entries = nil

	return b.compressor.Compress(framed.Bytes())
}

// DecompressBatch reverses Flush: decompress under algo, then split
// the frame back into the original entries.
func (b *BatchCompressor) DecompressBatch(data []byte, algo Algorithm) ([][]byte, error) {
	framed, err := b.compressor.Decompress(data, algo)
	if err != nil {
		return nil, err
	}
	if len(framed) < 4 {
		return nil, ErrInvalidHeader
	}
	count := binary.BigEndian.Uint32(framed[0:4])
	offset := 4

	entries := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset+4 > len(framed) {
			return nil, ErrInvalidHeader
		}
		n := binary.BigEndian.Uint32(framed[offset : offset+4])
		offset += 4
		if offset+int(n) > len(framed) {
			return nil, ErrInvalidHeader
		}
		entry := make([]byte, n)
		copy(entry, framed[offset:offset+int(n)])
		entries = append(entries, entry)
		offset += int(n)
	}
	return entries, nil
}

// CompressTagged behaves like Compress but also returns the algorithm
// actually applied — AlgorithmNone whenever data was left untouched,
// whether because the configured algorithm is none or data fell under
// MinSize. A blob tagged this way can always be reversed with
// Decompress(out, algo) without the caller separately remembering
// config.
func (c *Compressor) CompressTagged(data []byte) (Algorithm, []byte, error) {
	if c.config.Algorithm == AlgorithmNone || len(data) < c.config.MinSize {
		return AlgorithmNone, data, nil
	}
	out, err := c.Compress(data)
	if err != nil {
		return AlgorithmNone, nil, err
	}
	return c.config.Algorithm, out, nil
}

// Snapshotter is the subset of raft.Snapshotter that CompressingSnapshotter
// wraps. Declared locally rather than imported so this package has no
// dependency on internal/raft — either a raft.Snapshotter or a hand-rolled
// test double satisfies it.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	Install(blob []byte) error
}

// CompressingSnapshotter wraps another Snapshotter so every blob that
// crosses it — into the log's compaction record, or out over a Sync
// stream to a lagging follower — is transparently compressed and
// decompressed. The wire format is a single algorithm-tag byte
// followed by the (possibly identity) compressed payload, so Install
// never needs to be told which algorithm produced a given blob.
type CompressingSnapshotter struct {
	inner Snapshotter
	c     *Compressor
}

// WrapSnapshotter builds a CompressingSnapshotter around inner using
// config's algorithm, level, and MinSize threshold.
func WrapSnapshotter(inner Snapshotter, config Config) *CompressingSnapshotter {
	return &CompressingSnapshotter{inner: inner, c: NewCompressor(config)}
}

func (w *CompressingSnapshotter) Snapshot() ([]byte, error) {
	blob, err := w.inner.Snapshot()
	if err != nil {
		return nil, err
	}
	algo, out, err := w.c.CompressTagged(blob)
	if err != nil {
		return nil, err
	}
	tagged := make([]byte, 1+len(out))
	tagged[0] = byte(algo)
	copy(tagged[1:], out)
	return tagged, nil
}

func (w *CompressingSnapshotter) Install(blob []byte) error {
	if len(blob) == 0 {
		return w.inner.Install(blob)
	}
	algo := Algorithm(blob[0])
	raw, err := w.c.Decompress(blob[1:], algo)
	if err != nil {
		return err
	}
	return w.inner.Install(raw)
}

