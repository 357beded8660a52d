package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mcpgw/internal/domain"
)

func openTestStore(t *testing.T) *PresetStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "presets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makePreset(t *testing.T, ownerID, slug string) *domain.Preset {
	t.Helper()
	preset, err := domain.NewPreset(domain.PresetParams{
		OwnerID: ownerID,
		Slug:    slug,
		Name:    "Preset " + slug,
		Servers: []domain.ServerBinding{
			{ID: "bind-1", BackendServerID: "backend-a", Enabled: true, AllowedToolNames: []string{"search"}},
		},
	})
	require.NoError(t, err)
	return preset
}

func TestPresetStore_SaveAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	original := makePreset(t, "alice", "research")
	require.NoError(t, s.Save(ctx, original))

	loaded, err := s.GetBySlug(ctx, "alice", "research")
	require.NoError(t, err)
	require.Equal(t, original.ID(), loaded.ID())
	require.Equal(t, "alice", loaded.OwnerID())
	require.Equal(t, domain.PresetActive, loaded.Status())

	servers := loaded.Servers()
	require.Len(t, servers, 1)
	require.Equal(t, "backend-a", servers[0].BackendServerID)
	require.Equal(t, []string{"search"}, servers[0].AllowedToolNames)
}

func TestPresetStore_GetScopedToOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, makePreset(t, "bob", "research")))

	_, err := s.GetBySlug(ctx, "alice", "research")
	require.ErrorIs(t, err, domain.ErrPresetNotFound)
}

func TestPresetStore_SaveOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	preset := makePreset(t, "alice", "research")
	require.NoError(t, s.Save(ctx, preset))

	preset.Disable()
	require.NoError(t, s.Save(ctx, preset))

	loaded, err := s.GetBySlug(ctx, "alice", "research")
	require.NoError(t, err)
	require.Equal(t, domain.PresetDisabled, loaded.Status())
}

func TestPresetStore_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, makePreset(t, "alice", "research")))
	require.NoError(t, s.Delete(ctx, "alice", "research"))

	_, err := s.GetBySlug(ctx, "alice", "research")
	require.ErrorIs(t, err, domain.ErrPresetNotFound)

	err = s.Delete(ctx, "alice", "research")
	require.ErrorIs(t, err, domain.ErrPresetNotFound)
}

func TestPresetStore_ListByOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, makePreset(t, "alice", "research")))
	require.NoError(t, s.Save(ctx, makePreset(t, "alice", "writing")))
	require.NoError(t, s.Save(ctx, makePreset(t, "bob", "research")))

	presets, err := s.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, presets, 2)

	presets, err = s.ListByOwner(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, presets)
}

func TestPresetStore_ClosedStoreFails(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetBySlug(context.Background(), "alice", "research")
	require.ErrorIs(t, err, ErrStoreClosed)
}
