//go:build !linux

package storage

import "os"

// Datasync falls back to a full fsync.
func Datasync(f *os.File) error {
	return f.Sync()
}
