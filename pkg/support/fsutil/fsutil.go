// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil resolves the file paths given on the command line.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ResolveFile expands a leading "~" or "~user" in path and checks that the result is an existing
// regular file.
func ResolveFile(path string) (string, error) {
	resolved, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.Errorf("file %q not found", path)
		}
		return "", errors.Wrapf(err, "checking file %q", path)
	}
	if !info.Mode().IsRegular() {
		return "", errors.Errorf("%q is not a regular file", path)
	}
	return resolved, nil
}

// ExpandHome replaces a leading "~" (current user) or "~user" by the user's home directory.
// Other paths are returned unchanged.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	name, rest, _ := strings.Cut(path[1:], "/")
	var (
		usr *user.User
		err error
	)
	if name == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(name)
	}
	if err != nil {
		return "", errors.Wrapf(err, "looking up the home directory in %q", path)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}
