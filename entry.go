package disklru

import "container/list"

// entry is the in-memory record for one key. It lives as the Value of
// a node in the cache's access-order list so that the least-recently
// used entry is always the list's front.
type entry struct {
	key        string
	lengths    []int64
	readable   bool
	editor     *Editor
	seq        uint64
	elem       *list.Element // this entry's node in entryTable.order
}

func newEntry(key string, valueCount int) *entry {
	return &entry{key: key, lengths: make([]int64, valueCount)}
}

func (e *entry) size() int64 {
	var total int64
	for _, l := range e.lengths {
		total += l
	}

	return total
}

// entryTable maps key to *entry and maintains access order (most
// recently used at the back) via container/list, the same structure
// the example pack's in-memory LRU caches use.
type entryTable struct {
	m     map[string]*entry
	order *list.List // Value: *entry
}

func newEntryTable() *entryTable {
	return &entryTable{m: make(map[string]*entry), order: list.New()}
}

func (t *entryTable) get(key string) (*entry, bool) {
	e, ok := t.m[key]

	return e, ok
}

func (t *entryTable) len() int { return len(t.m) }

// getOrCreate inserts a new entry (not yet readable) at the back of the access
// order, or returns the existing entry unchanged if key is already
// present.
func (t *entryTable) getOrCreate(key string, valueCount int) *entry {
	if e, ok := t.m[key]; ok {
		return e
	}

	e := newEntry(key, valueCount)
	e.elem = t.order.PushBack(e)
	t.m[key] = e

	return e
}

// touch moves e to the back of the access order (most recently used).
func (t *entryTable) touch(e *entry) {
	t.order.MoveToBack(e.elem)
}

func (t *entryTable) remove(key string) {
	e, ok := t.m[key]
	if !ok {
		return
	}

	t.order.Remove(e.elem)
	delete(t.m, key)
}

// oldest returns the least-recently-used entry, or nil if empty.
func (t *entryTable) oldest() *entry {
	front := t.order.Front()
	if front == nil {
		return nil
	}

	return front.Value.(*entry)
}

// all returns every entry in access order, oldest first. Used by
// rebuild (one record per entry), recovery, eviction's victim search,
// and Close.
func (t *entryTable) all() []*entry {
	out := make([]*entry, 0, t.order.Len())
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry))
	}

	return out
}
