package disklru

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/calvinalkan/disklru/internal/fs"
)

// rebuildFloor is the minimum redundant-operation count that triggers a
// journal rebuild; the actual threshold is max(rebuildFloor,
// entries.size) so that rebuild cost amortizes over session length
// instead of firing constantly for a small cache (spec.md §4.2/§9).
const rebuildFloor = 2000

const dirPerm = 0o755

// Cache is the public facade over a journal-backed, persistent, bounded
// LRU cache directory. See the package doc for the overall model. A
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	mu sync.Mutex

	dir        string
	fsys       fs.FS
	appVersion int
	valueCount int
	maxSize    int64

	size             int64
	entries          *entryTable
	redundantOpCount int

	journal fs.File
	lock    fs.FileLock

	closed bool

	wakeCh chan struct{}
	flushCh chan chan struct{}
	stopCh  chan struct{}
	workerDone chan struct{}
}

// Open opens (creating if necessary) the cache directory described by
// opts. See spec.md §4.1 for the exact recovery procedure.
func Open(opts Options) (*Cache, error) {
	return openWithFS(opts, fs.NewReal())
}

// openWithFS is Open parameterized over the filesystem abstraction, so
// tests can pass an *internal/fs.Mem fake to drive recovery scenarios
// deterministically.
func openWithFS(opts Options, fsys fs.FS) (*Cache, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	dir := filepath.Clean(opts.Dir)

	if err := fsys.MkdirAll(dir, dirPerm); err != nil {
		return nil, ioErrorf("Open", "", fmt.Errorf("creating cache dir: %w", err))
	}

	lock, err := fsys.Lock(filepath.Join(dir, "disklru.lock"))
	if err != nil {
		return nil, newError(KindIllegalState, "Open", "", fmt.Errorf("another process owns %s: %w", dir, err))
	}

	c := &Cache{
		dir:        dir,
		fsys:       fsys,
		appVersion: opts.AppVersion,
		valueCount: opts.ValueCount,
		maxSize:    opts.MaxSize,
		entries:    newEntryTable(),
		lock:       lock,
		wakeCh:     make(chan struct{}, 1),
		flushCh:    make(chan chan struct{}),
		stopCh:     make(chan struct{}),
		workerDone: make(chan struct{}),
	}

	if err := c.openJournal(fsys, dir); err != nil {
		_ = lock.Close()

		return nil, err
	}

	go c.worker()

	return c, nil
}

// openJournal implements the backup-promotion and recovery-or-fresh-start
// procedure of spec.md §4.1.
func (c *Cache) openJournal(fsys fs.FS, dir string) error {
	backupPath := filepath.Join(dir, journalBackupName)
	journalPath := filepath.Join(dir, journalFileName)

	backupExists, err := fsys.Exists(backupPath)
	if err != nil {
		return ioErrorf("Open", "", err)
	}

	if backupExists {
		journalExists, err := fsys.Exists(journalPath)
		if err != nil {
			return ioErrorf("Open", "", err)
		}

		if journalExists {
			if err := fsys.Remove(backupPath); err != nil {
				return ioErrorf("Open", "", err)
			}
		} else if err := fsys.Rename(backupPath, journalPath); err != nil {
			return ioErrorf("Open", "", err)
		}
	}

	journalExists, err := fsys.Exists(journalPath)
	if err != nil {
		return ioErrorf("Open", "", err)
	}

	if journalExists {
		if err := c.recover(journalPath); err != nil {
			if wipeErr := fsys.RemoveAll(dir); wipeErr != nil {
				return ioErrorf("Open", "", wipeErr)
			}

			if err := fsys.MkdirAll(dir, dirPerm); err != nil {
				return ioErrorf("Open", "", err)
			}

			return c.createFreshJournal()
		}

		return nil
	}

	return c.createFreshJournal()
}

// createFreshJournal resets in-memory state and writes a brand new
// journal via the rebuild path (which also reopens it for append), per
// spec.md §4.1's "create a fresh journal ... then compact".
func (c *Cache) createFreshJournal() error {
	c.entries = newEntryTable()
	c.size = 0
	c.redundantOpCount = 0

	if err := c.rebuildLocked(); err != nil {
		return ioErrorf("Open", "", err)
	}

	return nil
}

func (c *Cache) openJournalAppend() error {
	f, err := c.fsys.OpenFile(c.journalPath(), osAppendFlags, 0o644)
	if err != nil {
		return ioErrorf("Open", "", err)
	}

	c.journal = f

	return nil
}

func (c *Cache) journalPath() string      { return filepath.Join(c.dir, journalFileName) }
func (c *Cache) journalBackupPath() string { return filepath.Join(c.dir, journalBackupName) }
func (c *Cache) journalTmpPath() string    { return filepath.Join(c.dir, journalTmpName) }

func (c *Cache) cleanPath(key string, i int) string {
	return filepath.Join(c.dir, key+"."+strconv.Itoa(i))
}

func (c *Cache) dirtyPath(key string, i int) string {
	return filepath.Join(c.dir, key+"."+strconv.Itoa(i)+".tmp")
}

// Get returns a Snapshot over key's clean files, or nil if the key is
// absent or not yet readable.
func (c *Cache) Get(key string) (*Snapshot, error) {
	if err := validateKey("Get", key); err != nil {
		return nil, err
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, illegalState("Get", key)
	}

	e, ok := c.entries.get(key)
	if !ok || !e.readable {
		c.mu.Unlock()
		return nil, nil
	}

	lengths := append([]int64(nil), e.lengths...)
	seq := e.seq

	sources := make([]fs.File, c.valueCount)

	var openErr error

	for i := 0; i < c.valueCount; i++ {
		f, err := c.fsys.Open(c.cleanPath(key, i))
		if err != nil {
			openErr = err

			break
		}

		sources[i] = f
	}

	if openErr != nil {
		for _, f := range sources {
			if f != nil {
				_ = f.Close()
			}
		}

		c.removeEntryLocked(key, e)
		_ = appendRemove(c.journal, key)
		c.mu.Unlock()

		return nil, nil
	}

	c.entries.touch(e)
	_ = appendRead(c.journal, key)
	c.redundantOpCount++
	c.scheduleLocked()

	c.mu.Unlock()

	return &Snapshot{
		cache:   c,
		key:     key,
		seq:     seq,
		lengths: lengths,
		sources: sources,
	}, nil
}

// Edit returns a new Editor for key, or nil if an editor is already
// open for it, or if expectedSeq is given and does not match the
// entry's current sequence number.
func (c *Cache) Edit(key string, expectedSeq ...uint64) (*Editor, error) {
	if err := validateKey("Edit", key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, illegalState("Edit", key)
	}

	e, existed := c.entries.get(key)

	if existed {
		if len(expectedSeq) > 0 && e.seq != expectedSeq[0] {
			return nil, nil
		}

		if e.editor != nil {
			return nil, nil
		}
	} else {
		if len(expectedSeq) > 0 {
			return nil, nil
		}

		e = c.entries.getOrCreate(key, c.valueCount)
	}

	ed := &Editor{
		cache:   c,
		entry:   e,
		key:     key,
		written: make([]bool, c.valueCount),
		wasNew:  !e.readable,
	}
	e.editor = ed

	if err := appendDirty(c.journal, key); err != nil {
		return nil, ioErrorf("Edit", key, err)
	}

	if err := c.journal.Sync(); err != nil {
		return nil, ioErrorf("Edit", key, err)
	}

	return ed, nil
}

// Remove deletes key's clean files and drops its entry. It returns
// false if an editor is in flight or the key is absent.
func (c *Cache) Remove(key string) (bool, error) {
	if err := validateKey("Remove", key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.removeLocked(key)
}

func (c *Cache) removeLocked(key string) (bool, error) {
	if c.closed {
		return false, illegalState("Remove", key)
	}

	e, ok := c.entries.get(key)
	if !ok || e.editor != nil {
		return false, nil
	}

	for i := 0; i < c.valueCount; i++ {
		path := c.cleanPath(key, i)

		exists, err := c.fsys.Exists(path)
		if err != nil {
			return false, ioErrorf("Remove", key, err)
		}

		if !exists {
			continue
		}

		if err := c.fsys.Remove(path); err != nil {
			return false, ioErrorf("Remove", key, err)
		}
	}

	c.removeEntryLocked(key, e)

	if err := appendRemove(c.journal, key); err != nil {
		return false, ioErrorf("Remove", key, err)
	}

	c.redundantOpCount++
	c.scheduleLocked()

	return true, nil
}

// removeEntryLocked drops e from the table and size accounting without
// touching disk or the journal; callers append the REMOVE record
// themselves once they know it is warranted.
func (c *Cache) removeEntryLocked(key string, e *entry) {
	if e.readable {
		c.size -= e.size()
	}

	c.entries.remove(key)
}

// SetMaxSize updates the soft byte budget and schedules eviction.
func (c *Cache) SetMaxSize(newMax int64) error {
	if newMax <= 0 {
		return invalidArgf("SetMaxSize", "", "max_size must be > 0, got %d", newMax)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return illegalState("SetMaxSize", "")
	}

	c.maxSize = newMax
	c.scheduleLocked()

	return nil
}

// Size returns the current total byte size of readable entries.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

// Stats is a read-only snapshot of cache-wide counters, used by the CLI
// and by tests; it is not named by the external format but does not
// change any invariant (see SPEC_FULL.md §13).
type Stats struct {
	Entries          int
	Size             int64
	MaxSize          int64
	RedundantOpCount int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:          c.entries.len(),
		Size:             c.size,
		MaxSize:          c.maxSize,
		RedundantOpCount: c.redundantOpCount,
	}
}

// Flush flushes the journal and waits for any pending eviction/rebuild
// work to finish, so that invariants hold for inspection immediately
// after it returns.
func (c *Cache) Flush() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return illegalState("Flush", "")
	}

	c.mu.Unlock()

	reply := make(chan struct{})

	select {
	case c.flushCh <- reply:
		<-reply
	case <-c.stopCh:
		return illegalState("Flush", "")
	}

	c.mu.Lock()
	err := c.journal.Sync()
	c.mu.Unlock()

	if err != nil {
		return ioErrorf("Flush", "", err)
	}

	return nil
}

// Close aborts any in-flight editors, flushes and closes the journal,
// and releases the cache directory's ownership lock. Close is not
// idempotent: calling it twice returns an *Error of KindIllegalState
// the second time.
func (c *Cache) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return illegalState("Close", "")
	}

	close(c.stopCh)

	for _, e := range c.entries.all() {
		if e.editor != nil {
			ed := e.editor
			c.mu.Unlock()
			_ = ed.Abort()
			c.mu.Lock()
		}
	}

	c.closed = true

	var err error
	if c.journal != nil {
		if syncErr := c.journal.Sync(); syncErr != nil && err == nil {
			err = syncErr
		}

		if closeErr := c.journal.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	c.entries = newEntryTable()

	c.mu.Unlock()

	<-c.workerDone

	if lockErr := c.lock.Close(); lockErr != nil && err == nil {
		err = lockErr
	}

	if err != nil {
		return ioErrorf("Close", "", err)
	}

	return nil
}

// scheduleLocked wakes the background worker; it never blocks. Must be
// called with c.mu held.
func (c *Cache) scheduleLocked() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

