//go:build !windows

// Package fsutil replaces files so that a reader never sees a partial write.
package fsutil

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile writes data to a temporary file next to path, syncs it and
// renames it over path.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
