package disklru

// recover implements spec.md §4.4: replay the journal at journalPath
// into a fresh entry table, reconcile it against the files actually on
// disk, and either reopen the journal for append or rebuild it (if its
// final record was truncated) before returning. Any error here tells
// the caller (openJournal) to wipe the directory and start over.
func (c *Cache) recover(journalPath string) error {
	data, err := c.fsys.ReadFile(journalPath)
	if err != nil {
		return err
	}

	records, truncated, err := parseJournal(data, c.appVersion, c.valueCount)
	if err != nil {
		return err
	}

	table := newEntryTable()
	pendingDirty := make(map[string]bool)

	for _, r := range records {
		switch r.op {
		case recDirty:
			table.getOrCreate(r.key, c.valueCount)
			pendingDirty[r.key] = true

		case recClean:
			e, ok := table.get(r.key)
			if !ok {
				return corruptf("CLEAN for key %q with no preceding DIRTY", r.key)
			}

			if len(r.lengths) != c.valueCount {
				return corruptf("CLEAN for %q has %d lengths, want %d", r.key, len(r.lengths), c.valueCount)
			}

			e.lengths = r.lengths
			e.readable = true
			e.seq++
			delete(pendingDirty, r.key)

		case recRead:
			if e, ok := table.get(r.key); ok {
				table.touch(e)
			}

		case recRemove:
			table.remove(r.key)
			delete(pendingDirty, r.key)
		}
	}

	// processJournal: any entry whose DIRTY was never matched by a
	// subsequent CLEAN or REMOVE belongs to an edit that was in flight
	// when the process died. Its files (if any were partially written)
	// are discarded and it never existed as far as the recovered state
	// is concerned.
	for key := range pendingDirty {
		for i := 0; i < c.valueCount; i++ {
			_ = c.fsys.Remove(c.cleanPath(key, i))
			_ = c.fsys.Remove(c.dirtyPath(key, i))
		}

		table.remove(key)
	}

	var size int64

	for _, e := range table.all() {
		if !e.readable {
			continue
		}

		for i := 0; i < c.valueCount; i++ {
			exists, err := c.fsys.Exists(c.cleanPath(e.key, i))
			if err != nil {
				return err
			}

			if !exists {
				return corruptf("missing clean file for %q index %d", e.key, i)
			}
		}

		size += e.size()
	}

	c.entries = table
	c.size = size
	c.redundantOpCount = len(records)

	if truncated {
		return c.rebuildLocked()
	}

	return c.openJournalAppend()
}
