// internal/room/registry_test.go
package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(testLogger(), &mockLauncher{}, nil)
}

func TestCreateAssignsUniqueCodes(t *testing.T) {
	reg := testRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		r, err := reg.Create(CreateSpec{Name: "room", MaxPlayers: 4}, testPlayer("host"))
		require.NoError(t, err)
		require.Len(t, r.Code, 6)
		assert.False(t, seen[r.Code], "join code %q reused", r.Code)
		seen[r.Code] = true
	}
}

func TestFindByCodeCaseInsensitive(t *testing.T) {
	reg := testRegistry(t)
	r, err := reg.Create(CreateSpec{Name: "room", MaxPlayers: 4}, testPlayer("host"))
	require.NoError(t, err)

	for _, code := range []string{r.Code, "  " + r.Code + " ", toLower(r.Code)} {
		got, ok := reg.FindByCode(code)
		require.True(t, ok, "lookup with %q", code)
		assert.Equal(t, r.ID, got.ID)
	}

	_, ok := reg.FindByCode("NOSUCH")
	assert.False(t, ok)
}

func toLower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func TestDestroyIdempotent(t *testing.T) {
	reg := testRegistry(t)
	r, err := reg.Create(CreateSpec{Name: "room", MaxPlayers: 4}, testPlayer("host"))
	require.NoError(t, err)

	reg.Destroy(r.ID)
	reg.Destroy(r.ID) // second call is a no-op

	_, ok := reg.FindByID(r.ID)
	assert.False(t, ok)
	_, ok = reg.FindByCode(r.Code)
	assert.False(t, ok)
}

func TestCodeFreedAfterDestroy(t *testing.T) {
	reg := testRegistry(t)
	r, err := reg.Create(CreateSpec{Name: "room", MaxPlayers: 4}, testPlayer("host"))
	require.NoError(t, err)
	code := r.Code
	reg.Destroy(r.ID)

	// Destroyed codes leave the index entirely rather than pointing at a
	// dead room.
	_, ok := reg.FindByCode(code)
	assert.False(t, ok)
}

func TestListPublicFilters(t *testing.T) {
	reg := testRegistry(t)

	mk := func(spec CreateSpec) (*Room, PlayerInfo) {
		host := testPlayer("host")
		r, err := reg.Create(spec, host)
		require.NoError(t, err)
		return r, host
	}

	mk(CreateSpec{Name: "Casual Evening", MaxPlayers: 4})
	mk(CreateSpec{Name: "Tryhards Only", MaxPlayers: 4, Mode: ModeTeams})
	mk(CreateSpec{Name: "Secret Club", MaxPlayers: 4, Private: true})
	started, host := mk(CreateSpec{Name: "Mid Launch", MaxPlayers: 4})

	// Drive the fourth room into the game so it drops out of listings.
	_, err := started.Connect(host)
	require.NoError(t, err)
	p2 := testPlayer("p2")
	_, err = started.Connect(p2)
	require.NoError(t, err)
	require.NoError(t, started.SetReady(p2.ID, true))
	_, err = started.Start(host.ID)
	require.NoError(t, err)

	// Launching destroys the fourth room outright, so listings show only the
	// two public rooms still forming.
	all := reg.ListPublic(Filter{})
	require.Len(t, all, 2, "private and launched rooms are hidden")
	for _, snap := range all {
		assert.NotEqual(t, started.ID, snap.ID)
	}

	byMode := reg.ListPublic(Filter{Mode: ModeTeams})
	require.Len(t, byMode, 1)
	assert.Equal(t, "Tryhards Only", byMode[0].Name)

	bySearch := reg.ListPublic(Filter{Search: "casual"})
	require.Len(t, bySearch, 1)
	assert.Equal(t, "Casual Evening", bySearch[0].Name)

	none := reg.ListPublic(Filter{Search: "casual", Mode: ModeTeams})
	assert.Empty(t, none)
}
