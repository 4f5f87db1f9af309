//go:build linux

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// Datasync flushes file data without forcing a metadata-only update.
func Datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
