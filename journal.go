package disklru

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Journal file names, relative to the cache directory.
const (
	journalFileName    = "journal"
	journalBackupName  = "journal.bkp"
	journalTmpName     = "journal.tmp"
)

// Byte-exact header, per the external format:
//
//	libcore.io.DiskLruCache
//	1
//	<app_version>
//	<value_count>
//	<empty line>
const (
	journalMagic   = "libcore.io.DiskLruCache"
	journalVersion = "1"
)

// Record opcodes, one per line, space-separated tokens.
const (
	recDirty  = "DIRTY"
	recClean  = "CLEAN"
	recRemove = "REMOVE"
	recRead   = "READ"
)

// writeJournalHeader writes the 5-line header described above and in
// spec.md §4.2/§6.
func writeJournalHeader(w io.Writer, appVersion, valueCount int) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n%d\n%d\n\n", journalMagic, journalVersion, appVersion, valueCount)

	return err
}

// The append* byte-slice helpers below build a rebuilt journal's full
// body in memory (rebuildLocked writes the whole thing in one atomic
// publish, unlike appendDirty/appendRemove/appendRead/appendClean
// further down, which append to an already-open journal writer one
// record at a time).
func appendHeaderBytes(buf []byte, appVersion, valueCount int) []byte {
	buf = append(buf, journalMagic...)
	buf = append(buf, '\n')
	buf = append(buf, journalVersion...)
	buf = append(buf, '\n')
	buf = strconv.AppendInt(buf, int64(appVersion), 10)
	buf = append(buf, '\n')
	buf = strconv.AppendInt(buf, int64(valueCount), 10)
	buf = append(buf, '\n', '\n')

	return buf
}

func appendDirtyBytes(buf []byte, key string) []byte {
	buf = append(buf, recDirty...)
	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '\n')

	return buf
}

func appendCleanBytes(buf []byte, key string, lengths []int64) []byte {
	buf = append(buf, recClean...)
	buf = append(buf, ' ')
	buf = append(buf, key...)

	for _, l := range lengths {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, l, 10)
	}

	buf = append(buf, '\n')

	return buf
}

func appendDirty(w io.Writer, key string) error {
	_, err := fmt.Fprintf(w, "%s %s\n", recDirty, key)

	return err
}

func appendRemove(w io.Writer, key string) error {
	_, err := fmt.Fprintf(w, "%s %s\n", recRemove, key)

	return err
}

func appendRead(w io.Writer, key string) error {
	_, err := fmt.Fprintf(w, "%s %s\n", recRead, key)

	return err
}

func appendClean(w io.Writer, key string, lengths []int64) error {
	var b strings.Builder

	b.WriteString(recClean)
	b.WriteByte(' ')
	b.WriteString(key)

	for _, l := range lengths {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(l, 10))
	}

	b.WriteByte('\n')

	_, err := w.Write([]byte(b.String()))

	return err
}

// journalRecord is one parsed body line.
type journalRecord struct {
	op      string
	key     string
	lengths []int64
}

// parseJournal splits the raw journal bytes into its 5-line header and
// its body records.
//
// truncated reports whether the final record was not newline-terminated;
// per spec.md §4.2/§4.4 that record is discarded (any CLEAN/READ it
// would have produced is lost) and the caller must rebuild the journal
// before reopening it for append. Any other malformed line is a fatal
// parse error: the whole directory must be wiped and rebuilt from
// scratch (spec.md §4.1).
func parseJournal(data []byte, wantAppVersion, wantValueCount int) (records []journalRecord, truncated bool, err error) {
	raw := string(data)

	lines := strings.Split(raw, "\n")
	if len(lines) > 0 && lines[len(lines)-1] != "" {
		truncated = true
		lines = lines[:len(lines)-1]
	} else if len(lines) > 0 {
		lines = lines[:len(lines)-1] // drop the trailing "" from the final \n
	}

	if len(lines) < 5 {
		return nil, false, corruptf("journal header truncated")
	}

	if lines[0] != journalMagic {
		return nil, false, corruptf("bad magic %q", lines[0])
	}

	if lines[1] != journalVersion {
		return nil, false, corruptf("bad version %q", lines[1])
	}

	appVersion, err := strconv.Atoi(lines[2])
	if err != nil {
		return nil, false, corruptf("bad app_version %q: %w", lines[2], err)
	}

	if appVersion != wantAppVersion {
		return nil, false, corruptf("app_version mismatch: got %d want %d", appVersion, wantAppVersion)
	}

	valueCount, err := strconv.Atoi(lines[3])
	if err != nil {
		return nil, false, corruptf("bad value_count %q: %w", lines[3], err)
	}

	if valueCount != wantValueCount {
		return nil, false, corruptf("value_count mismatch: got %d want %d", valueCount, wantValueCount)
	}

	if lines[4] != "" {
		return nil, false, corruptf("fifth header line not empty: %q", lines[4])
	}

	body := lines[5:]
	// If the body is empty and truncated was set because the *header*
	// itself lacked a trailing newline, there is nothing to discard
	// beyond the header; treat that as a fatal parse error instead,
	// since a header must always be fully written before any record.
	if truncated && len(body) == 0 {
		return nil, false, corruptf("journal truncated within header")
	}

	records = make([]journalRecord, 0, len(body))

	for i, line := range body {
		isLast := i == len(body)-1
		if line == "" {
			if isLast && truncated {
				continue
			}

			return nil, false, corruptf("empty record line")
		}

		rec, perr := parseRecord(line)
		if perr != nil {
			if isLast && truncated {
				continue
			}

			return nil, false, perr
		}

		records = append(records, rec)
	}

	return records, truncated, nil
}

func parseRecord(line string) (journalRecord, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return journalRecord{}, corruptf("malformed record %q", line)
	}

	op, key := fields[0], fields[1]

	switch op {
	case recDirty, recRemove, recRead:
		if len(fields) != 2 {
			return journalRecord{}, corruptf("malformed %s record %q", op, line)
		}

		return journalRecord{op: op, key: key}, nil

	case recClean:
		lengths := make([]int64, 0, len(fields)-2)

		for _, f := range fields[2:] {
			n, err := strconv.ParseInt(f, 10, 64)
			if err != nil || n < 0 {
				return journalRecord{}, corruptf("malformed CLEAN length %q", f)
			}

			lengths = append(lengths, n)
		}

		return journalRecord{op: op, key: key, lengths: lengths}, nil

	default:
		return journalRecord{}, corruptf("unknown opcode %q", op)
	}
}
