package testsupport

import (
	"context"
	"testing"

	"slicerd/internal/config"
	"slicerd/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedModel inserts a model row for tests.
func SeedModel(t testing.TB, st *store.Store, storagePath string) *store.Model {
	t.Helper()

	model := &store.Model{
		ID:             store.NewModelID(),
		Filename:       "model.stl",
		Format:         "stl",
		SizeBytes:      64,
		ChecksumSHA256: "deadbeef",
		StoragePath:    storagePath,
	}
	if err := st.InsertModel(context.Background(), model); err != nil {
		t.Fatalf("insert model: %v", err)
	}
	return model
}

// SeedProfile inserts a user profile row for tests.
func SeedProfile(t testing.TB, st *store.Store, name string, settings map[string]any) *store.Profile {
	t.Helper()

	profile := &store.Profile{
		ID:                store.NewProfileID(name),
		Name:              name,
		Source:            store.ProfileSourceUser,
		SettingsOverrides: settings,
	}
	if err := st.CreateProfile(context.Background(), profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return profile
}
