package disklru

import "fmt"

// worker is the single background goroutine that drains eviction and
// journal rebuilds (spec.md §5 "Background work"). It runs for the
// lifetime of the Cache; Close stops it and waits for it to exit.
func (c *Cache) worker() {
	defer close(c.workerDone)

	for {
		select {
		case <-c.wakeCh:
			c.mu.Lock()
			_ = c.drainLocked()
			c.mu.Unlock()

		case reply := <-c.flushCh:
			c.mu.Lock()
			_ = c.drainLocked()
			c.mu.Unlock()
			close(reply)

		case <-c.stopCh:
			return
		}
	}
}

// drainLocked evicts until size is back under budget and rebuilds the
// journal if the redundant-operation threshold has been crossed. Must
// be called with c.mu held.
func (c *Cache) drainLocked() error {
	if c.closed {
		return nil
	}

	if err := c.evictLocked(); err != nil {
		return err
	}

	threshold := rebuildFloor
	if n := c.entries.len(); n > threshold {
		threshold = n
	}

	if c.redundantOpCount >= threshold {
		return c.rebuildLocked()
	}

	return nil
}

// evictLocked removes least-recently-used entries while size exceeds
// maxSize, skipping any entry with an in-flight editor (its eventual
// commit, or the abort of a never-published entry, re-triggers
// eviction; aborting an update of a readable entry does not). Must be
// called with c.mu held.
func (c *Cache) evictLocked() error {
	for c.size > c.maxSize {
		victim := c.firstEvictableLocked()
		if victim == nil {
			return nil
		}

		if _, err := c.removeLocked(victim.key); err != nil {
			return err
		}
	}

	return nil
}

// firstEvictableLocked returns the least-recently-used entry without an
// in-flight editor, or nil if every entry is being edited.
func (c *Cache) firstEvictableLocked() *entry {
	for _, e := range c.entries.all() {
		if e.editor == nil {
			return e
		}
	}

	return nil
}

// rebuildLocked replaces the active journal with a compacted
// equivalent via the backup-rename dance of spec.md §4.2. Must be
// called with c.mu held. It closes the current journal writer, if
// any, and reopens the new journal for append itself, so callers
// (including Open's fresh-start and truncated-recovery paths) need no
// separate openJournalAppend call.
func (c *Cache) rebuildLocked() error {
	var buf []byte

	buf = appendHeaderBytes(buf, c.appVersion, c.valueCount)

	for _, e := range c.entries.all() {
		if e.readable {
			buf = appendCleanBytes(buf, e.key, e.lengths)
		} else {
			buf = appendDirtyBytes(buf, e.key)
		}
	}

	if err := c.fsys.WriteFileAtomic(c.journalTmpPath(), buf, 0o644); err != nil {
		return fmt.Errorf("writing rebuilt journal: %w", err)
	}

	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			return fmt.Errorf("closing old journal: %w", err)
		}

		c.journal = nil
	}

	journalExists, err := c.fsys.Exists(c.journalPath())
	if err != nil {
		return err
	}

	if journalExists {
		if err := c.fsys.Rename(c.journalPath(), c.journalBackupPath()); err != nil {
			return fmt.Errorf("backing up journal: %w", err)
		}
	}

	if err := c.fsys.Rename(c.journalTmpPath(), c.journalPath()); err != nil {
		return fmt.Errorf("promoting rebuilt journal: %w", err)
	}

	if err := c.fsys.Remove(c.journalBackupPath()); err != nil {
		exists, existsErr := c.fsys.Exists(c.journalBackupPath())
		if existsErr == nil && exists {
			return fmt.Errorf("deleting journal backup: %w", err)
		}
	}

	c.redundantOpCount = c.entries.len()

	f, err := c.fsys.OpenFile(c.journalPath(), osAppendFlags, 0o644)
	if err != nil {
		return fmt.Errorf("reopening journal for append: %w", err)
	}

	c.journal = f

	return nil
}
