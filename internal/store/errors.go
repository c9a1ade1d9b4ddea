package store

import "fmt"

// CorruptError reports a label record whose stored fields cannot be decoded.
// It is always surfaced to the caller: silently defaulting a corrupt label
// would destroy human-authored corrections.
type CorruptError struct {
	Key    string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt label record for %s: %s", e.Key, e.Reason)
}
