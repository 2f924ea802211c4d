// Package disklru implements a bounded, persistent, least-recently-used
// cache of fixed-arity byte-tuple values, keyed by string, backed by a
// local filesystem directory.
//
// A Cache owns a directory. Each key maps to an Entry of N value slots
// (N fixed at Open); slot i of key k lives on disk as the clean file
// "k.i" once published, staged during an edit as the dirty file
// "k.i.tmp". An append-only textual journal records DIRTY/CLEAN/READ/
// REMOVE events so that the in-memory entry table — and its
// least-recently-used order — can be reconstructed after a restart or
// a crash.
//
//	c, err := disklru.Open(disklru.Options{
//		Dir:        "cache",
//		AppVersion: 1,
//		ValueCount: 2,
//		MaxSize:    10 << 20,
//	})
//	...
//	ed, _ := c.Edit("thumbnail-42")
//	ed.Set(0, header)
//	ed.Set(1, body)
//	ed.Commit()
//	...
//	snap, _ := c.Get("thumbnail-42")
//	body, _ := snap.GetString(1)
//	snap.Close()
//
// Editing is exclusive per key: Edit fails if another Editor is already
// open for the same key. Get returns a Snapshot whose sources remain
// valid even if the entry is later overwritten or evicted; Snapshot
// captures the clean files as they were at the moment of Get.
//
// A single mutex serializes all mutations to the entry table, the
// journal writer, and the size counter; bulk data I/O through Editor
// sinks and Snapshot sources happens without holding it. A background
// worker drains eviction and journal rebuilds; Flush waits for it.
//
// disklru does not share a directory across processes, does not group
// edits across keys transactionally, and does not expire entries on
// anything but LRU pressure. It does not access the network.
package disklru
