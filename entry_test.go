package disklru

import "testing"

func TestEntryTable_GetOrCreate_ReturnsSameEntry(t *testing.T) {
	table := newEntryTable()

	a := table.getOrCreate("k", 2)
	b := table.getOrCreate("k", 2)

	if a != b {
		t.Fatalf("getOrCreate returned different entries for the same key")
	}

	if got, want := table.len(), 1; got != want {
		t.Fatalf("len=%d, want=%d", got, want)
	}
}

func TestEntryTable_Touch_MovesEntryToBack(t *testing.T) {
	table := newEntryTable()

	a := table.getOrCreate("a", 1)
	table.getOrCreate("b", 1)

	table.touch(a)

	all := table.all()
	if got, want := all[len(all)-1].key, "a"; got != want {
		t.Fatalf("back entry=%q, want=%q", got, want)
	}
}

func TestEntryTable_Oldest_ReturnsFrontOfAccessOrder(t *testing.T) {
	table := newEntryTable()

	table.getOrCreate("a", 1)
	table.getOrCreate("b", 1)

	if got, want := table.oldest().key, "a"; got != want {
		t.Fatalf("oldest=%q, want=%q", got, want)
	}

	table.touch(table.oldest())

	if got, want := table.oldest().key, "b"; got != want {
		t.Fatalf("oldest after touch=%q, want=%q", got, want)
	}
}

func TestEntryTable_Remove_DropsEntryFromOrderAndMap(t *testing.T) {
	table := newEntryTable()

	table.getOrCreate("a", 1)
	table.remove("a")

	if _, ok := table.get("a"); ok {
		t.Fatalf("entry should be gone after remove")
	}

	if got, want := table.len(), 0; got != want {
		t.Fatalf("len=%d, want=%d", got, want)
	}

	if table.oldest() != nil {
		t.Fatalf("oldest should be nil on an empty table")
	}
}

func TestEntry_Size_SumsLengths(t *testing.T) {
	e := newEntry("k", 3)
	e.lengths = []int64{1, 2, 3}

	if got, want := e.size(), int64(6); got != want {
		t.Fatalf("size=%d, want=%d", got, want)
	}
}
