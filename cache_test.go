package disklru

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/disklru/internal/fs"
)

func openTestCache(t *testing.T, fsys fs.FS, maxSize int64, valueCount int) *Cache {
	t.Helper()

	c, err := openWithFS(Options{
		Dir:        "/cache",
		AppVersion: 1,
		ValueCount: valueCount,
		MaxSize:    maxSize,
	}, fsys)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func put(t *testing.T, c *Cache, key string, values ...string) {
	t.Helper()

	ed, err := c.Edit(key)
	require.NoError(t, err)
	require.NotNil(t, ed, "key %q should not already be under edit", key)

	for i, v := range values {
		require.NoError(t, ed.Set(i, v))
	}

	require.NoError(t, ed.Commit())
}

func readStrings(t *testing.T, c *Cache, key string) ([]string, bool) {
	t.Helper()

	snap, err := c.Get(key)
	require.NoError(t, err)

	if snap == nil {
		return nil, false
	}

	defer snap.Close()

	out := make([]string, c.valueCount)

	for i := range out {
		s, err := snap.GetString(i)
		require.NoError(t, err)
		out[i] = s
	}

	return out, true
}

// Scenario 1: publish & read.
func Test_Scenario_PublishAndRead(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	put(t, c, "k1", "ABC", "DE")

	snap, err := c.Get("k1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	defer snap.Close()

	require.Equal(t, int64(3), snap.GetLength(0))
	require.Equal(t, int64(2), snap.GetLength(1))

	s0, err := snap.GetString(0)
	require.NoError(t, err)
	require.Equal(t, "ABC", s0)

	require.NoError(t, c.Flush())

	data, err := fsys.ReadFile("/cache/journal")
	require.NoError(t, err)
	require.Contains(t, string(data), "DIRTY k1\n")
	require.Contains(t, string(data), "CLEAN k1 3 2\n")
}

// Scenario 2: aborted new edit.
func Test_Scenario_AbortedNewEdit(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	ed, err := c.Edit("k1")
	require.NoError(t, err)
	require.NoError(t, ed.Set(0, "AB"))
	require.NoError(t, ed.Abort())
	require.NoError(t, c.Flush())

	data, err := fsys.ReadFile("/cache/journal")
	require.NoError(t, err)
	require.Contains(t, string(data), "DIRTY k1\n")
	require.Contains(t, string(data), "REMOVE k1\n")

	_, found := readStrings(t, c, "k1")
	require.False(t, found)

	exists, err := fsys.Exists("/cache/k1.0.tmp")
	require.NoError(t, err)
	require.False(t, exists, "k1's dirty file must be gone after abort")
}

// Scenario 3: evict on insert.
func Test_Scenario_EvictOnInsert(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 10, 2)

	put(t, c, "a", "a", "aaa")   // size 4
	put(t, c, "b", "bb", "bbbb") // size 6, total 10

	require.Equal(t, int64(10), c.Size())

	put(t, c, "c", "c", "c") // size 2, total 12 before eviction
	require.NoError(t, c.Flush())

	_, found := readStrings(t, c, "a")
	require.False(t, found, "a should have been evicted")
	require.Equal(t, int64(8), c.Size())

	put(t, c, "d", "d", "d")
	require.NoError(t, c.Flush())
	require.Equal(t, int64(10), c.Size())

	put(t, c, "e", "eeee", "eeee") // size 8
	require.NoError(t, c.Flush())

	require.Equal(t, int64(10), c.Size())

	for _, evicted := range []string{"b", "c"} {
		_, found := readStrings(t, c, evicted)
		require.Falsef(t, found, "%s should have been evicted", evicted)
	}

	for _, readable := range []string{"d", "e"} {
		_, found := readStrings(t, c, readable)
		require.Truef(t, found, "%s should still be readable", readable)
	}
}

// Scenario 4: LRU touch.
func Test_Scenario_LRUTouch(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 10, 2)

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		put(t, c, k, k, k) // each entry is 2 bytes: the key written to both indices
	}

	require.NoError(t, c.Flush())

	_, found := readStrings(t, c, "b")
	require.True(t, found, "b must be readable before it makes itself most-recent")

	put(t, c, "f", "f", "f")
	require.NoError(t, c.Flush())

	put(t, c, "g", "g", "g")
	require.NoError(t, c.Flush())

	_, aFound := readStrings(t, c, "a")
	require.False(t, aFound, "a should have been evicted first, since touching b moved it ahead of a")

	_, cFound := readStrings(t, c, "c")
	require.False(t, cFound, "c should have been evicted next, being the new least-recently-used")

	for _, readable := range []string{"b", "d", "e", "f", "g"} {
		_, found := readStrings(t, c, readable)
		require.Truef(t, found, "%s should still be readable", readable)
	}

	require.Equal(t, int64(10), c.Size())
}

// Scenario 5: an entry larger than max_size alone is never retained.
func Test_Scenario_OversizeSingleEntryRejected(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 10, 2)

	put(t, c, "a", "aaaaa", "aaaaaa") // size 11
	require.NoError(t, c.Flush())

	_, found := readStrings(t, c, "a")
	require.False(t, found)

	exists, err := fsys.Exists("/cache/a.0")
	require.NoError(t, err)
	require.False(t, exists)
}

// Scenario 6: a snapshot's streams keep returning the bytes valid at Get
// time even after the entry is overwritten.
func Test_Scenario_SnapshotSurvivesOverwrite(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	put(t, c, "k1", "AAaa", "BBbb")

	snap, err := c.Get("k1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	defer snap.Close()

	src0, err := snap.GetSource(0)
	require.NoError(t, err)

	first := make([]byte, 2)
	_, err = io.ReadFull(src0, first)
	require.NoError(t, err)
	require.Equal(t, "AA", string(first))

	put(t, c, "k1", "CCcc", "DDdd")

	rest := make([]byte, 2)
	_, err = io.ReadFull(src0, rest)
	require.NoError(t, err)
	require.Equal(t, "aa", string(rest))

	require.Equal(t, int64(4), snap.GetLength(1))

	s1, err := snap.GetString(1)
	require.NoError(t, err)
	require.Equal(t, "BBbb", s1)

	fresh, found := readStrings(t, c, "k1")
	require.True(t, found)
	require.Equal(t, []string{"CCcc", "DDdd"}, fresh)
}

func Test_Size_EqualsSumOfReadableEntryLengths(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	put(t, c, "a", "12", "345")
	put(t, c, "b", "6", "78")

	var want int64
	for _, e := range c.entries.all() {
		want += e.size()
	}

	require.Equal(t, want, c.Size())
}

func Test_Edit_RefusesSecondEditorForSameKey(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 1)

	ed1, err := c.Edit("k1")
	require.NoError(t, err)
	require.NotNil(t, ed1)

	ed2, err := c.Edit("k1")
	require.NoError(t, err)
	require.Nil(t, ed2, "a second concurrent editor for the same key must be refused")

	require.NoError(t, ed1.Abort())
}

func Test_CloseThenOpen_PreservesReadableEntries(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	put(t, c, "k1", "ABC", "DE")
	require.NoError(t, c.Close())

	c2, err := openWithFS(Options{Dir: "/cache", AppVersion: 1, ValueCount: 2, MaxSize: 1 << 30}, fsys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close() })

	got, found := readStrings(t, c2, "k1")
	require.True(t, found)
	require.Equal(t, []string{"ABC", "DE"}, got)
}

func Test_Open_PromotesJournalBackupWhenJournalMissing(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 1)

	put(t, c, "k1", "hello")
	require.NoError(t, c.Close())

	require.NoError(t, fsys.Rename("/cache/journal", "/cache/journal.bkp"))

	c2, err := openWithFS(Options{Dir: "/cache", AppVersion: 1, ValueCount: 1, MaxSize: 1 << 30}, fsys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close() })

	got, found := readStrings(t, c2, "k1")
	require.True(t, found)
	require.Equal(t, []string{"hello"}, got)

	exists, err := fsys.Exists("/cache/journal.bkp")
	require.NoError(t, err)
	require.False(t, exists, "the backup must be consumed once promoted")
}

func Test_Open_PrefersJournalOverBackupWhenBothExist(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 1)

	put(t, c, "k1", "hello")
	require.NoError(t, c.Flush())

	journalData, err := fsys.ReadFile("/cache/journal")
	require.NoError(t, err)
	fsys.Seed("/cache/journal.bkp", journalData)

	require.NoError(t, c.Close())

	c2, err := openWithFS(Options{Dir: "/cache", AppVersion: 1, ValueCount: 1, MaxSize: 1 << 30}, fsys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close() })

	exists, err := fsys.Exists("/cache/journal.bkp")
	require.NoError(t, err)
	require.False(t, exists, "journal must win and the backup must be deleted")

	got, found := readStrings(t, c2, "k1")
	require.True(t, found)
	require.Equal(t, []string{"hello"}, got)
}

func Test_CommitNewEntry_FewerThanAllIndicesWritten_IsIllegalState(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	ed, err := c.Edit("k1")
	require.NoError(t, err)
	require.NoError(t, ed.Set(0, "only-one"))

	err = ed.Commit()
	require.Error(t, err)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, KindIllegalState, derr.Kind)
}

func Test_CommitUpdate_FewerThanAllIndicesWritten_KeepsPreviousValues(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	put(t, c, "k1", "AAA", "BBB")

	ed, err := c.Edit("k1")
	require.NoError(t, err)
	require.NoError(t, ed.Set(0, "CCC"))
	require.NoError(t, ed.Commit())

	got, found := readStrings(t, c, "k1")
	require.True(t, found)
	require.Equal(t, []string{"CCC", "BBB"}, got)
}

func Test_Edit_AfterValuesExternallyDeleted_GetIsNoneThenEditSucceeds(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 2)

	put(t, c, "k1", "AAA", "BBB")

	require.NoError(t, fsys.Remove("/cache/k1.0"))

	_, found := readStrings(t, c, "k1")
	require.False(t, found)

	ed, err := c.Edit("k1")
	require.NoError(t, err)
	require.NotNil(t, ed)
	require.NoError(t, ed.Set(0, "new-a"))
	require.NoError(t, ed.Set(1, "new-b"))
	require.NoError(t, ed.Commit())

	got, found := readStrings(t, c, "k1")
	require.True(t, found)
	require.Equal(t, []string{"new-a", "new-b"}, got)
}

func TestValidateKey_AcceptsAndRejectsBoundaryLengths(t *testing.T) {
	t.Parallel()

	ok := make([]byte, 120)
	for i := range ok {
		ok[i] = 'a'
	}

	if err := validateKey("Test", string(ok)); err != nil {
		t.Fatalf("120-char key should be accepted: %v", err)
	}

	tooLong := append(ok, 'a')

	if err := validateKey("Test", string(tooLong)); err == nil {
		t.Fatalf("121-char key should be rejected")
	}

	for _, bad := range []string{"has space", "slash/key", "new\nline", "carriage\rreturn", "café"} {
		if err := validateKey("Test", bad); err == nil {
			t.Fatalf("key %q should be rejected", bad)
		}
	}
}

func TestOpen_RejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := openWithFS(Options{Dir: "/cache", ValueCount: 0, MaxSize: 1}, fs.NewMem())
	require.Error(t, err)

	_, err = openWithFS(Options{Dir: "/cache", ValueCount: 1, MaxSize: 0}, fs.NewMem())
	require.Error(t, err)
}

func TestCache_Stats_ReflectsEntriesAndSize(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMem()
	c := openTestCache(t, fsys, 1<<30, 1)

	put(t, c, "a", "12345")
	put(t, c, "b", "12")

	stats := c.Stats()
	want := Stats{Entries: 2, Size: 7, MaxSize: 1 << 30}

	if diff := cmp.Diff(want, stats, cmpopts.IgnoreFields(Stats{}, "RedundantOpCount")); diff != "" {
		t.Fatalf("Stats mismatch (-want +got):\n%s", diff)
	}
}
