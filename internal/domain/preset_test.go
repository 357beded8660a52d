package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPreset(t *testing.T) *Preset {
	t.Helper()
	preset, err := NewPreset(PresetParams{
		OwnerID:    "owner-1",
		Slug:       "research",
		Name:       "Research tools",
		Visibility: VisibilityPrivate,
	})
	require.NoError(t, err)
	return preset
}

func TestNewPreset_ValidatesSlug(t *testing.T) {
	cases := []struct {
		slug string
		ok   bool
	}{
		{"research", true},
		{"a-b-c", true},
		{"abc123", true},
		{"ab", false},
		{"-abc", false},
		{"abc-", false},
		{"ABC", false},
		{"has space", false},
		{"under_score", false},
	}
	for _, tc := range cases {
		_, err := NewPreset(PresetParams{
			OwnerID: "owner-1",
			Slug:    tc.slug,
			Name:    "n",
		})
		if tc.ok {
			require.NoError(t, err, "slug %q", tc.slug)
		} else {
			require.Error(t, err, "slug %q", tc.slug)
			require.Equal(t, "slug", Field(err))
		}
	}
}

func TestNewPreset_DefaultsToPrivateActive(t *testing.T) {
	preset, err := NewPreset(PresetParams{OwnerID: "o", Slug: "abc", Name: "n"})
	require.NoError(t, err)
	require.Equal(t, VisibilityPrivate, preset.Visibility())
	require.Equal(t, PresetActive, preset.Status())
	require.NotEmpty(t, preset.ID())
}

func TestPreset_AddServerLimits(t *testing.T) {
	preset := newTestPreset(t)

	for i := 0; i < MaxServerBindings; i++ {
		err := preset.AddServer(ServerBinding{
			BackendServerID: fmt.Sprintf("backend-%d", i),
			Enabled:         true,
		})
		require.NoError(t, err)
	}

	err := preset.AddServer(ServerBinding{BackendServerID: "backend-overflow"})
	require.Error(t, err)
	require.Equal(t, "servers", Field(err))
	// Failed add must not mutate state.
	require.Len(t, preset.Servers(), MaxServerBindings)
}

func TestPreset_AddServerRejectsDuplicateBackend(t *testing.T) {
	preset := newTestPreset(t)
	require.NoError(t, preset.AddServer(ServerBinding{BackendServerID: "b1"}))

	err := preset.AddServer(ServerBinding{BackendServerID: "b1"})
	require.Error(t, err)
	require.Equal(t, "backendServerId", Field(err))
	require.Len(t, preset.Servers(), 1)
}

func TestPreset_AddServerRejectsOversizedToolList(t *testing.T) {
	preset := newTestPreset(t)
	names := make([]string, MaxAllowedToolNames+1)
	for i := range names {
		names[i] = fmt.Sprintf("tool-%d", i)
	}
	err := preset.AddServer(ServerBinding{BackendServerID: "b1", AllowedToolNames: names})
	require.Error(t, err)
	require.Equal(t, "allowedToolNames", Field(err))
}

func TestPreset_RemoveServer(t *testing.T) {
	preset := newTestPreset(t)
	require.NoError(t, preset.AddServer(ServerBinding{ID: "bind-1", BackendServerID: "b1"}))

	require.NoError(t, preset.RemoveServer("bind-1"))
	require.Empty(t, preset.Servers())

	err := preset.RemoveServer("bind-1")
	require.Error(t, err)
	code, ok := CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, CodeNotFound, code)
}

func TestPreset_GettersReturnCopies(t *testing.T) {
	preset := newTestPreset(t)
	require.NoError(t, preset.UpdateMetadata(map[string]string{"team": "search"}))
	require.NoError(t, preset.AddServer(ServerBinding{
		BackendServerID:  "b1",
		AllowedToolNames: []string{"search"},
	}))

	meta := preset.Metadata()
	meta["team"] = "mutated"
	require.Equal(t, "search", preset.Metadata()["team"])

	servers := preset.Servers()
	servers[0].AllowedToolNames[0] = "mutated"
	require.Equal(t, "search", preset.Servers()[0].AllowedToolNames[0])
}

func TestPreset_CanBeAccessedBy(t *testing.T) {
	preset := newTestPreset(t)

	require.True(t, preset.CanBeAccessedBy("owner-1", nil))
	require.False(t, preset.CanBeAccessedBy("other", nil))

	require.NoError(t, preset.UpdateVisibility(VisibilityPublic))
	require.True(t, preset.CanBeAccessedBy("other", nil))

	require.NoError(t, preset.UpdateVisibility(VisibilityInviteOnly))
	require.False(t, preset.CanBeAccessedBy("other", nil))
	require.True(t, preset.CanBeAccessedBy("other", grantAll{}))
	require.True(t, preset.CanBeAccessedBy("owner-1", nil))
}

type grantAll struct{}

func (grantAll) HasGrant(_, _, _ string) bool { return true }

func TestPreset_StatusTransitions(t *testing.T) {
	preset := newTestPreset(t)
	require.True(t, preset.IsActive())

	preset.Disable()
	require.Equal(t, PresetDisabled, preset.Status())
	require.False(t, preset.IsActive())

	preset.Enable()
	require.True(t, preset.IsActive())

	preset.Archive()
	require.Equal(t, PresetArchived, preset.Status())
}

func TestPresetFromRecord_TrustsRecordButValidatesMutations(t *testing.T) {
	// A record restored from storage may carry values creation would reject.
	record := PresetRecord{
		ID:      "id-1",
		OwnerID: "owner-1",
		Slug:    "x", // too short for NewPreset, trusted here
		Name:    "restored",
		Status:  PresetActive,
	}
	preset := PresetFromRecord(record, []ServerBinding{{ID: "bind-1", BackendServerID: "b1"}})
	require.Equal(t, "x", preset.Slug())
	require.Len(t, preset.Servers(), 1)

	err := preset.UpdateName("")
	require.Error(t, err)
	require.Equal(t, "restored", preset.Name())
}
