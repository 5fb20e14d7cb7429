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

package raftlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// Log is the durable, append-only sequence of replicated entries, plus
// the per-term voting metadata and compaction snapshot that ride next
// to it on disk. A Log belongs to exactly one resource's executor and
// is never touched from any other goroutine.
type Log interface {
	Open() error
	Close() error

	Append(term uint64, payload []byte) (uint64, error)
	Get(index uint64) (Entry, error)
	ContainsEntry(index uint64) bool
	Truncate(fromIndex uint64) error

	FirstIndex() uint64
	LastIndex() uint64
	LastTerm() uint64

	Compact(throughIndex uint64, snapshot Snapshot) error
	LoadSnapshot() (Snapshot, bool, error)

	LoadMetadata() (Metadata, error)
	SaveMetadata(Metadata) error
}

// segmentRef locates one durable entry: which segment file, and the
// byte offset and encoded size within it.
type segmentRef struct {
	segment *segmentFile
	offset  int64
	size    int
}

// segmentFile is one rolling chunk of the log on disk.
type segmentFile struct {
	path       string
	file       *os.File
	baseIndex  uint64 // index of the first entry this segment holds
	size       int64
}

// FileLog is the default Log implementation: a sequence of rolling
// segment files under directory, capped at segmentSize bytes each, plus
// a sibling metadata file and snapshot file. Simplified to the
// single-writer case a resource's serial executor already guarantees:
// there is never more than one in-flight Append, so no request queue
// or worker pool is needed, only an unbuffered file handle per segment,
// synced with Fdatasync after every Append.
type FileLog struct {
	dir         string
	name        string
	segmentSize int64

	segments []*segmentFile
	index    []segmentRef // index[i] describes entry at index firstIndex+i
	first    uint64
	last     uint64
	lastTerm uint64

	active *segmentFile
}

// NewFileLog returns a Log rooted at dir, using name as the file prefix
// and segmentSize as the rollover threshold in bytes.
func NewFileLog(dir, name string, segmentSize int64) *FileLog {
	return &FileLog{dir: dir, name: name, segmentSize: segmentSize}
}

func (l *FileLog) metadataPath() string { return filepath.Join(l.dir, l.name+".meta") }
func (l *FileLog) snapshotPath() string { return filepath.Join(l.dir, l.name+".snap") }

func (l *FileLog) segmentPath(seq int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.%06d.log", l.name, seq))
}

// Open loads existing segment files in order and rebuilds the in-memory
// index, or creates the first segment if the directory is empty.
func (l *FileLog) Open() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("raftlog: create directory: %w", err)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("raftlog: read directory: %w", err)
	}

	var paths []string
	prefix := l.name + "."
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if len(n) > len(prefix) && n[:len(prefix)] == prefix && filepath.Ext(n) == ".log" {
			paths = append(paths, filepath.Join(l.dir, n))
		}
	}
	sort.Strings(paths)

	l.first = 1
	l.last = 0
	l.lastTerm = 0
	l.segments = nil
	l.index = nil

	for _, p := range paths {
		if err := l.openSegment(p); err != nil {
			return err
		}
	}

	if len(l.segments) == 0 {
		first := &segmentFile{path: l.segmentPath(0), baseIndex: 1}
		f, err := os.OpenFile(first.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("raftlog: create segment: %w", err)
		}
		first.file = f
		l.segments = append(l.segments, first)
		l.active = first
	} else {
		l.active = l.segments[len(l.segments)-1]
	}

	return nil
}

func (l *FileLog) openSegment(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("raftlog: open segment %s: %w", path, err)
	}
	seg := &segmentFile{path: path, file: f}

	var offset int64
	firstInSegment := true
	for {
		e, n, err := decodeEntry(f)
		if err != nil {
			break // EOF or trailing partial write; stop reading this segment
		}
		if firstInSegment {
			seg.baseIndex = e.Index
			firstInSegment = false
		}
		l.index = append(l.index, segmentRef{segment: seg, offset: offset, size: n})
		l.last = e.Index
		l.lastTerm = e.Term
		if l.first == 1 && len(l.index) == 1 {
			l.first = e.Index
		}
		offset += int64(n)
	}
	seg.size = offset
	l.segments = append(l.segments, seg)
	return nil
}

// Close flushes and closes all open segment files.
func (l *FileLog) Close() error {
	var firstErr error
	for _, seg := range l.segments {
		if seg.file == nil {
			continue
		}
		if err := unix.Fdatasync(int(seg.file.Fd())); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := seg.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Append writes a new entry at lastIndex()+1 and durably syncs it.
func (l *FileLog) Append(term uint64, payload []byte) (uint64, error) {
	index := l.last + 1
	e := Entry{Index: index, Term: term, Payload: payload}

	if l.active.size >= l.segmentSize && l.segmentSize > 0 {
		if err := l.rollSegment(index); err != nil {
			return 0, err
		}
	}

	n, err := encodeEntry(l.active.file, e)
	if err != nil {
		return 0, err
	}
	if err := unix.Fdatasync(int(l.active.file.Fd())); err != nil {
		return 0, fmt.Errorf("raftlog: fdatasync: %w", err)
	}

	l.index = append(l.index, segmentRef{segment: l.active, offset: l.active.size, size: n})
	l.active.size += int64(n)
	if l.first == 1 && len(l.index) == 1 {
		l.first = index
	}
	l.last = index
	l.lastTerm = term
	return index, nil
}

func (l *FileLog) rollSegment(nextIndex uint64) error {
	seq := len(l.segments)
	path := l.segmentPath(seq)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("raftlog: create segment: %w", err)
	}
	// the just-finished segment is no longer written to; hint the kernel
	// it can be evicted from cache in favor of hot, recently-written pages
	unix.Fadvise(int(l.active.file.Fd()), 0, 0, unix.FADV_DONTNEED)

	seg := &segmentFile{path: path, file: f, baseIndex: nextIndex}
	l.segments = append(l.segments, seg)
	l.active = seg
	return nil
}

func (l *FileLog) posOf(index uint64) (int, bool) {
	if index < l.first || index > l.last {
		return 0, false
	}
	return int(index - l.first), true
}

// Get reads the entry at index, decoding it from its segment file.
func (l *FileLog) Get(index uint64) (Entry, error) {
	pos, ok := l.posOf(index)
	if !ok {
		return Entry{}, fmt.Errorf("raftlog: index %d out of range [%d,%d]", index, l.first, l.last)
	}
	ref := l.index[pos]
	buf := make([]byte, ref.size)
	if _, err := ref.segment.file.ReadAt(buf, ref.offset); err != nil {
		return Entry{}, fmt.Errorf("raftlog: read entry %d: %w", index, err)
	}
	e, _, err := decodeEntry(&byteReader{buf: buf})
	return e, err
}

// ContainsEntry reports whether index is present in the log.
func (l *FileLog) ContainsEntry(index uint64) bool {
	_, ok := l.posOf(index)
	return ok
}

// Truncate discards fromIndex..lastIndex. Truncating into a prior
// segment drops those segment files entirely; the caller (StateContext)
// is responsible for never truncating through the commit index.
func (l *FileLog) Truncate(fromIndex uint64) error {
	pos, ok := l.posOf(fromIndex)
	if !ok {
		if fromIndex > l.last {
			return nil
		}
		return fmt.Errorf("raftlog: truncate index %d out of range", fromIndex)
	}

	keepSegment := l.index[pos].segment
	var keepSegments []*segmentFile
	seen := make(map[*segmentFile]bool)
	for _, ref := range l.index[:pos] {
		if !seen[ref.segment] {
			seen[ref.segment] = true
			keepSegments = append(keepSegments, ref.segment)
		}
	}
	if !seen[keepSegment] {
		keepSegments = append(keepSegments, keepSegment)
	}

	truncateOffset := l.index[pos].offset
	if err := keepSegment.file.Truncate(truncateOffset); err != nil {
		return fmt.Errorf("raftlog: truncate segment: %w", err)
	}
	keepSegment.size = truncateOffset

	for _, seg := range l.segments {
		if !seen[seg] && seg != keepSegment {
			seg.file.Close()
			os.Remove(seg.path)
		}
	}
	l.segments = keepSegments
	l.active = keepSegment
	l.index = l.index[:pos]

	if len(l.index) == 0 {
		l.last = l.first - 1
		l.lastTerm = 0
	} else {
		last, err := l.Get(fromIndex - 1)
		if err != nil {
			return err
		}
		l.last = last.Index
		l.lastTerm = last.Term
	}
	return nil
}

func (l *FileLog) FirstIndex() uint64 {
	if len(l.index) == 0 {
		return l.last + 1
	}
	return l.first
}

func (l *FileLog) LastIndex() uint64 { return l.last }
func (l *FileLog) LastTerm() uint64  { return l.lastTerm }

// Compact discards entries up to and including throughIndex, persisting
// snapshot as the new base of the log.
func (l *FileLog) Compact(throughIndex uint64, snapshot Snapshot) error {
	if err := os.WriteFile(l.snapshotPath(), encodeSnapshot(snapshot), 0o644); err != nil {
		return fmt.Errorf("raftlog: write snapshot: %w", err)
	}

	pos, ok := l.posOf(throughIndex)
	if !ok {
		if throughIndex < l.first {
			return nil
		}
		// compacting through or past lastIndex: drop everything
		for _, seg := range l.segments {
			seg.file.Close()
			os.Remove(seg.path)
		}
		path := l.segmentPath(len(l.segments))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("raftlog: create segment: %w", err)
		}
		seg := &segmentFile{path: path, file: f, baseIndex: throughIndex + 1}
		l.segments = []*segmentFile{seg}
		l.active = seg
		l.index = nil
		l.first = throughIndex + 1
		l.last = throughIndex
		l.lastTerm = snapshot.LastIncludedTerm
		return nil
	}

	keepFrom := pos + 1
	keepSegment := l.index[keepFrom-1].segment
	var survivors []*segmentFile
	seen := make(map[*segmentFile]bool)
	for _, ref := range l.index[keepFrom:] {
		if !seen[ref.segment] {
			seen[ref.segment] = true
			survivors = append(survivors, ref.segment)
		}
	}
	for _, seg := range l.segments {
		if seg != keepSegment && !seen[seg] {
			seg.file.Close()
			os.Remove(seg.path)
		}
	}
	l.segments = survivors
	if len(l.segments) > 0 {
		l.active = l.segments[len(l.segments)-1]
	}
	l.index = l.index[keepFrom:]
	l.first = throughIndex + 1
	return nil
}

// LoadSnapshot reads the persisted snapshot file, if one exists.
func (l *FileLog) LoadSnapshot() (Snapshot, bool, error) {
	buf, err := os.ReadFile(l.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("raftlog: read snapshot: %w", err)
	}
	s, err := decodeSnapshot(buf)
	if err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}

// LoadMetadata reads the persisted voting metadata, defaulting to the
// zero value if no file exists yet (a fresh node).
func (l *FileLog) LoadMetadata() (Metadata, error) {
	buf, err := os.ReadFile(l.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, nil
		}
		return Metadata{}, fmt.Errorf("raftlog: read metadata: %w", err)
	}
	return decodeMetadata(buf)
}

// SaveMetadata durably persists currentTerm and votedFor.
func (l *FileLog) SaveMetadata(m Metadata) error {
	tmp := l.metadataPath() + ".tmp"
	if err := os.WriteFile(tmp, encodeMetadata(m), 0o644); err != nil {
		return fmt.Errorf("raftlog: write metadata: %w", err)
	}
	return os.Rename(tmp, l.metadataPath())
}

// byteReader adapts a []byte to io.Reader for single-shot decodeEntry
// calls against an already-read buffer.
type byteReader struct {
	buf []byte
	pos int
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.buf) {
		return 0, fmt.Errorf("raftlog: short read")
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += n
	return n, nil
}
