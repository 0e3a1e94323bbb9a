// Package testkit holds helpers shared by package tests.
package testkit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/storage/sqlite"
)

// OpenStore opens a SQLite ledger store in a temp dir and closes it when the test ends.
func OpenStore(t testing.TB) storage.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
