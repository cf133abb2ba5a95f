package resource_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/npcfleet/internal/game/resource"
)

func TestMemoryCache_GetAndHas(t *testing.T) {
	c := resource.NewMemoryCache()
	c.Put(resource.Resource{Kind: resource.KindMesh, ID: "m1", Data: []byte("x")})

	assert.True(t, c.Has(resource.KindMesh, "m1"))
	assert.False(t, c.Has(resource.KindTexture, "m1"))

	r, err := c.Get(resource.KindMesh, "m1")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), r.Data)

	_, err = c.Get(resource.KindMesh, "missing")
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestMemoryCache_Preload(t *testing.T) {
	c := resource.NewMemoryCache()
	c.PutIDs(resource.KindTexture, "b", "a")

	require.NoError(t, c.Preload(resource.KindTexture, "b"))
	require.NoError(t, c.Preload(resource.KindTexture, "a"))
	assert.ErrorIs(t, c.Preload(resource.KindTexture, "zzz"), resource.ErrNotFound)
	assert.Equal(t, []string{"a", "b"}, c.Resident(resource.KindTexture))
}

func TestPermissive(t *testing.T) {
	var c resource.Cache = resource.Permissive{}
	assert.True(t, c.Has(resource.KindModel, "anything"))
	assert.NoError(t, c.Preload(resource.KindModel, "anything"))
}

func TestParseManifest(t *testing.T) {
	m, err := resource.ParseManifest([]byte(`
meshes: [npc_guard, npc_civilian]
textures: [npc_guard_neutral]
`))
	require.NoError(t, err)
	c := m.Cache()
	assert.True(t, c.Has(resource.KindMesh, "npc_guard"))
	assert.True(t, c.Has(resource.KindTexture, "npc_guard_neutral"))
	assert.False(t, c.Has(resource.KindTexture, "npc_guard"))
	assert.Empty(t, c.Resident(resource.KindMesh))
}

func TestParseManifest_Errors(t *testing.T) {
	_, err := resource.ParseManifest([]byte("meshes: [\"\"]"))
	assert.Error(t, err)
	_, err = resource.ParseManifest([]byte("meshes: {"))
	assert.Error(t, err)
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [dialogue_neutral]\n"), 0o644))
	c, err := resource.LoadManifest(path)
	require.NoError(t, err)
	assert.True(t, c.Has(resource.KindModel, "dialogue_neutral"))

	_, err = resource.LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
