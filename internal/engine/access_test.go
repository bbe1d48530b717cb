package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdminSet(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	require.True(t, e.IsAdmin("admin"))
	require.False(t, e.IsAdmin("alice"))

	require.NoError(t, e.AddAdmin("admin", "alice"))
	require.True(t, e.IsAdmin("alice"))

	// Idempotent re-add.
	require.NoError(t, e.AddAdmin("admin", "alice"))
	require.ElementsMatch(t, []string{"admin", "alice"}, e.Admins())

	require.NoError(t, e.RemoveAdmin("alice", "admin"))
	require.False(t, e.IsAdmin("admin"))
}

func TestAdminOpsRequireAdmin(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	require.ErrorIs(t, e.AddAdmin("mallory", "mallory"), ErrNotAuthorized)
	require.ErrorIs(t, e.RemoveAdmin("mallory", "admin"), ErrNotAuthorized)
	require.True(t, e.IsAdmin("admin"))
}

func TestRemoveLastAdminRejected(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	require.ErrorIs(t, e.RemoveAdmin("admin", "admin"), ErrLastAdmin)
	require.True(t, e.IsAdmin("admin"))

	// With a second admin the removal goes through.
	require.NoError(t, e.AddAdmin("admin", "backup"))
	require.NoError(t, e.RemoveAdmin("admin", "admin"))
	require.ErrorIs(t, e.RemoveAdmin("backup", "backup"), ErrLastAdmin)
}

func TestRemoveNonAdminIsNoop(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	require.NoError(t, e.RemoveAdmin("admin", "nobody"))
	require.ElementsMatch(t, []string{"admin"}, e.Admins())
}
