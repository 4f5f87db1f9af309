//go:build !linux && !darwin

package storage

import "os"

// Advisory locking is not available; single-writer stays the caller's job.
func lock(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
