package disklru

import (
	"io"
	"strings"
	"sync/atomic"

	"github.com/calvinalkan/disklru/internal/fs"
)

// Editor is the handle representing an in-flight, exclusive edit of
// one key. Obtain one from Cache.Edit; finish it with Commit or Abort.
// Every method after Commit/Abort returns an *Error of KindIllegalState.
type Editor struct {
	cache *Cache
	entry *entry
	key   string

	written []bool
	wasNew  bool

	// hasErrors is set by editorSink.Write/Close, which run without
	// cache.mu held (bulk I/O is lock-free per the concurrency model),
	// and read by Commit under cache.mu; it is therefore an
	// atomic.Bool rather than a plain bool.
	hasErrors atomic.Bool
	done      bool
}

// NewSink returns a write sink to the dirty file at index i, creating
// it if necessary. Errors encountered while writing through the
// returned sink are absorbed (never returned to the caller) but mark
// the editor so that Commit degrades to Abort; see the editorSink doc.
func (ed *Editor) NewSink(i int) (io.WriteCloser, error) {
	ed.cache.mu.Lock()
	defer ed.cache.mu.Unlock()

	if ed.done {
		return nil, illegalState("NewSink", ed.key)
	}

	f, err := ed.cache.fsys.Create(ed.cache.dirtyPath(ed.key, i))
	if err != nil {
		ed.hasErrors.Store(true)

		return nil, ioErrorf("NewSink", ed.key, err)
	}

	ed.written[i] = true

	return &editorSink{ed: ed, f: f}, nil
}

// NewSource returns a read source over the clean file at index i, or
// nil if the entry is not yet readable or the file is missing.
func (ed *Editor) NewSource(i int) (io.ReadCloser, error) {
	ed.cache.mu.Lock()
	defer ed.cache.mu.Unlock()

	if ed.done {
		return nil, illegalState("NewSource", ed.key)
	}

	if !ed.entry.readable {
		return nil, nil
	}

	f, err := ed.cache.fsys.Open(ed.cache.cleanPath(ed.key, i))
	if err != nil {
		return nil, nil
	}

	return f, nil
}

// Set writes s to the dirty sink at index i as UTF-8. Write failures
// are absorbed the same way NewSink's sink absorbs them.
func (ed *Editor) Set(i int, s string) error {
	sink, err := ed.NewSink(i)
	if err != nil {
		return err
	}

	_, _ = sink.Write([]byte(s))

	return sink.Close()
}

// GetString reads the clean source at index i as UTF-8. found is false
// if the entry is not readable or the file is missing.
func (ed *Editor) GetString(i int) (s string, found bool, err error) {
	src, err := ed.NewSource(i)
	if err != nil {
		return "", false, err
	}

	if src == nil {
		return "", false, nil
	}

	defer src.Close()

	var b strings.Builder

	if _, err := io.Copy(&b, src); err != nil {
		return "", false, ioErrorf("GetString", ed.key, err)
	}

	return b.String(), true, nil
}

// Commit publishes the edit: written indices are renamed dirty→clean
// atomically and the entry becomes (or remains) readable. If the entry
// was new and some index was never written, Commit fails with
// KindIllegalState and the caller is expected to call Abort. If a sink
// recorded a write error, Commit silently degrades to Abort, per
// spec.md §4.3.
func (ed *Editor) Commit() error {
	ed.cache.mu.Lock()
	defer ed.cache.mu.Unlock()

	if ed.done {
		return illegalState("Commit", ed.key)
	}

	if ed.wasNew {
		for _, w := range ed.written {
			if !w {
				return illegalState("Commit", ed.key)
			}
		}
	}

	if ed.hasErrors.Load() {
		return ed.abortLocked()
	}

	c := ed.cache
	e := ed.entry

	for i, w := range ed.written {
		if !w {
			continue
		}

		dirty := c.dirtyPath(ed.key, i)
		clean := c.cleanPath(ed.key, i)

		if err := c.fsys.Rename(dirty, clean); err != nil {
			return ioErrorf("Commit", ed.key, err)
		}

		info, err := c.fsys.Stat(clean)
		if err != nil {
			return ioErrorf("Commit", ed.key, err)
		}

		oldLen := e.lengths[i]
		newLen := info.Size()

		if e.readable {
			c.size += newLen - oldLen
		} else {
			c.size += newLen
		}

		e.lengths[i] = newLen
	}

	e.editor = nil
	e.seq++
	e.readable = true
	ed.done = true

	if err := appendClean(c.journal, ed.key, e.lengths); err != nil {
		return ioErrorf("Commit", ed.key, err)
	}

	c.redundantOpCount++
	c.scheduleLocked()

	return nil
}

// Abort discards the edit: every dirty file belonging to it is
// deleted. If the entry had never been published, it is dropped from
// the table and a REMOVE record is appended; if it was an update to an
// already-readable entry, the previous values are left untouched.
func (ed *Editor) Abort() error {
	ed.cache.mu.Lock()
	defer ed.cache.mu.Unlock()

	if ed.done {
		return illegalState("Abort", ed.key)
	}

	return ed.abortLocked()
}

// abortLocked is Abort's body, shared with Commit's has_errors path.
// Must be called with cache.mu held.
func (ed *Editor) abortLocked() error {
	c := ed.cache

	for i, w := range ed.written {
		if !w {
			continue
		}

		if err := c.fsys.Remove(c.dirtyPath(ed.key, i)); err != nil {
			exists, existsErr := c.fsys.Exists(c.dirtyPath(ed.key, i))
			if existsErr == nil && exists {
				return ioErrorf("Abort", ed.key, err)
			}
		}
	}

	ed.entry.editor = nil
	ed.done = true

	if !ed.entry.readable {
		c.entries.remove(ed.key)

		if err := appendRemove(c.journal, ed.key); err != nil {
			return ioErrorf("Abort", ed.key, err)
		}

		c.redundantOpCount++
		c.scheduleLocked()
	}

	return nil
}

// editorSink absorbs write/close failures per spec.md §4.3/§7: a
// caller treating writes as best-effort must never see an error from
// the sink itself, only a Commit that silently becomes an Abort.
type editorSink struct {
	ed *Editor
	f  fs.File
}

func (s *editorSink) Write(p []byte) (int, error) {
	if s.ed.hasErrors.Load() {
		return len(p), nil
	}

	n, err := s.f.Write(p)
	if err != nil {
		s.ed.hasErrors.Store(true)

		return len(p), nil
	}

	return n, nil
}

func (s *editorSink) Close() error {
	if err := s.f.Close(); err != nil {
		s.ed.hasErrors.Store(true)
	}

	return nil
}
