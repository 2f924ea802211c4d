package disklru

import (
	"errors"
	"fmt"
)

// Kind classifies the failure modes a Cache operation can report.
//
// Corruption is never returned to a caller: it is handled internally by
// wiping the cache directory and starting fresh during Open. It exists
// as a Kind so that internal recovery code can log and reason about
// the same failure class a caller would see if it ever escaped.
type Kind int

const (
	// KindInvalidArgument marks a bad key, max size, or value count.
	KindInvalidArgument Kind = iota
	// KindIllegalState marks an operation against a closed Cache, or a
	// committed/aborted Editor, or a closed Snapshot.
	KindIllegalState
	// KindIO marks an unrecoverable filesystem failure.
	KindIO
	// KindCorruption marks a journal parse failure encountered during
	// Open. Internal only; see the Kind doc comment above.
	KindCorruption
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindIllegalState:
		return "illegal state"
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every exported Cache,
// Editor and Snapshot method that can fail. Use errors.As to recover
// the Kind and the failing Op/Key, or errors.Is against the sentinels
// below.
type Error struct {
	Kind Kind
	Op   string // the method that failed, e.g. "Open", "Edit", "Commit"
	Key  string // the key involved, if any
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Key != "":
		return fmt.Sprintf("disklru: %s %q: %s: %v", e.Op, e.Key, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("disklru: %s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Key != "":
		return fmt.Sprintf("disklru: %s %q: %s", e.Op, e.Key, e.Kind)
	default:
		return fmt.Sprintf("disklru: %s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIllegalState) work against a wrapped *Error
// without the caller needing to know about the concrete type.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindInvalidArgument:
		return target == ErrInvalidArgument
	case KindIllegalState:
		return target == ErrIllegalState
	case KindIO:
		return target == ErrIO
	case KindCorruption:
		return target == ErrCorruption
	default:
		return false
	}
}

// Sentinel errors, one per Kind.
//
// Recovery guidance:
//   - ErrInvalidArgument: the call will never succeed with these
//     arguments; fix the caller.
//   - ErrIllegalState: the Cache is closed, or the Editor/Snapshot has
//     already been committed/aborted/closed.
//   - ErrIO: the underlying filesystem failed in a way the cache could
//     not route around; Close remains safe to call.
//   - ErrCorruption: never observed by callers; Open recovers from it
//     internally by discarding and rebuilding the directory.
var (
	ErrInvalidArgument = errors.New("disklru: invalid argument")
	ErrIllegalState    = errors.New("disklru: illegal state")
	ErrIO              = errors.New("disklru: io error")
	ErrCorruption      = errors.New("disklru: corruption")
)

func newError(kind Kind, op, key string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: cause}
}

func invalidArgf(op, key, format string, args ...any) *Error {
	return newError(KindInvalidArgument, op, key, fmt.Errorf(format, args...))
}

func illegalState(op, key string) *Error {
	return newError(KindIllegalState, op, key, nil)
}

func ioErrorf(op, key string, cause error) *Error {
	return newError(KindIO, op, key, cause)
}

func corruptf(format string, args ...any) *Error {
	return newError(KindCorruption, "open", "", fmt.Errorf(format, args...))
}
