package testsupport

import (
	"testing"

	"atelier/internal/config"
	"atelier/internal/kvstore"
)

// MustOpenStore opens the SQLite session store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *kvstore.SQLite {
	t.Helper()

	store, err := kvstore.OpenFromConfig(cfg)
	if err != nil {
		t.Fatalf("kvstore.OpenFromConfig: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
