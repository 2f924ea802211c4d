package disklru

import (
	"io"
	"strings"
	"sync"

	"github.com/calvinalkan/disklru/internal/fs"
)

// Snapshot is an immutable read view captured by Cache.Get: it holds
// open input sources over each index's clean file as they were at the
// moment of Get, plus the entry's sequence number and lengths at that
// time. The held sources remain valid even if the entry is later
// overwritten or evicted (spec.md §4.3/§5 resource lifecycle).
type Snapshot struct {
	cache *Cache
	key   string
	seq   uint64

	mu      sync.Mutex
	lengths []int64
	sources []fs.File
	closed  bool
}

// GetSource returns the read source for index i. The same underlying
// object is returned on every call so a caller can read it
// progressively across multiple calls.
func (s *Snapshot) GetSource(i int) (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, illegalState("GetSource", s.key)
	}

	return s.sources[i], nil
}

// GetString reads all bytes remaining in index i's source (from its
// current position) as UTF-8.
func (s *Snapshot) GetString(i int) (string, error) {
	src, err := s.GetSource(i)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	if _, err := io.Copy(&b, src); err != nil {
		return "", ioErrorf("GetString", s.key, err)
	}

	return b.String(), nil
}

// GetLength returns index i's byte length as captured at Get time,
// independent of how much of its source has since been read.
func (s *Snapshot) GetLength(i int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lengths[i]
}

// Edit is equivalent to Cache.Edit(key, sequenceNumber): it returns nil
// if the entry has changed or been evicted since this Snapshot was
// captured.
func (s *Snapshot) Edit() (*Editor, error) {
	return s.cache.Edit(s.key, s.seq)
}

// Close releases every source this Snapshot holds open. Close is
// idempotent.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	var firstErr error

	for _, src := range s.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return ioErrorf("Close", s.key, firstErr)
	}

	return nil
}
