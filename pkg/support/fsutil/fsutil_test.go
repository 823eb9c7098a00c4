// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ExpandHome("~/graphs/tiny.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "graphs/tiny.yaml"), got)

	got, err = ExpandHome("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(usr.HomeDir), got)

	got, err = ExpandHome("relative/~/path")
	require.NoError(t, err)
	assert.Equal(t, "relative/~/path", got)

	_, err = ExpandHome("~no_such_user_for_sure/x")
	require.Error(t, err)
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: g\n"), 0o644))

	got, err := ResolveFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolveFile(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "not found")

	_, err = ResolveFile(dir)
	require.ErrorContains(t, err, "not a regular file")
}
