// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// Perms is the mode of a written file and of any directory created for it.
type Perms struct {
	File os.FileMode
	Dir  os.FileMode
}

var (
	// PrivatePerms is for the config file (it may hold the bearer token)
	// and the line-mode prompt history.
	PrivatePerms = Perms{File: 0600, Dir: 0700}

	// SharedPerms is for conversation exports.
	SharedPerms = Perms{File: 0644, Dir: 0755}
)

// WriteFileAtomic replaces path with data. The bytes go to a hidden sibling
// first, are synced, and are renamed over path, so a crash or a concurrent
// reader (the config watcher) never sees a half-written file.
func WriteFileAtomic(path string, data []byte, perms Perms) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, perms.Dir); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	name := tmp.Name()

	err = writeSynced(tmp, data, perms.File)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(name, path)
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeSynced(f *os.File, data []byte, mode os.FileMode) error {
	if err := f.Chmod(mode); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
