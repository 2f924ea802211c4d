package disklru

import "regexp"

// keyPattern matches the legal key grammar: 1 to 120 lowercase
// alphanumerics, underscores, or hyphens.
var keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,120}$`)

// validateKey returns an *Error of KindInvalidArgument carrying the
// spec's exact message if key does not match keyPattern.
func validateKey(op, key string) error {
	if keyPattern.MatchString(key) {
		return nil
	}

	return invalidArgf(op, key, `Keys must match regex [a-z0-9_-]{1,120}: "%s"`, key)
}
