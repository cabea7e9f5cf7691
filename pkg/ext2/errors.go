package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"errors"
	"fmt"
)

// Sentinel errors, checked with errors.Is. These cover the no-space,
// not-found, and type-mismatch kinds from the error taxonomy; short
// transfers are never an error (callers inspect the returned byte count),
// and corruption is handled via corruptionError below.
var (
	ErrNoSpace      = errors.New("ext2: no space left on device")
	ErrNotFound     = errors.New("ext2: no such file or directory")
	ErrNotDirectory = errors.New("ext2: not a directory")
	ErrIsDirectory  = errors.New("ext2: is a directory")
	ErrExists       = errors.New("ext2: file already exists")
	ErrNotRegular   = errors.New("ext2: not a regular file")
	ErrNotFormatted = errors.New("ext2: device is not formatted (bad magic)")
	ErrCorrupt      = errors.New("ext2: on-disk structure is corrupt")
)

// corruptionError wraps ErrCorrupt with a specific diagnostic. It is raised
// with panic, not returned: an invariant violation such as freeing an
// already-free bit, or indexing past the triple-indirect range, means the
// on-disk structures can no longer be trusted and the caller is not
// expected to recover, matching the original engine's assertion semantics.
type corruptionError struct {
	msg string
}

func (e *corruptionError) Error() string { return "ext2: corrupt: " + e.msg }

func (e *corruptionError) Unwrap() error { return ErrCorrupt }

func corrupt(format string, args ...interface{}) {
	panic(&corruptionError{msg: fmt.Sprintf(format, args...)})
}
