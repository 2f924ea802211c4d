package disklru

import "os"

// osAppendFlags opens the journal for append-only writes, creating it
// if absent; used both when attaching to a freshly rebuilt journal and
// when reopening a recovered one.
const osAppendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
