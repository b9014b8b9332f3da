// Package testutils holds helpers shared by adapter tests.
package testutils

import (
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo initializes a Loam repository in a fresh temp directory
// and returns the absolute path alongside the repository. Loam wants
// absolute paths, so the temp dir is resolved before init.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "resolve temp dir")

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "init loam repo")

	return absPath, repo
}
