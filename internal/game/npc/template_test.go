package npc_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

const guardYAML = `
id: gate_guard
name: Gate Guard
description: Watches the east gate.
faction: yuga_striders
type: guard
personality:
  aggressiveness: 0.7
  curiosity: 0.2
  trustfulness: 0.3
  helpfulness: 0.4
  intelligence: 0.5
  loyalty: 0.9
mesh_id: npc_guard
texture_id: npc_guard_yugastriders
behavior_model_id: behavior_yugastriders
dialogue_model_id: dialogue_yugastriders
interaction_range: 6
default_interaction: information
topics: [security, freedom]
expertise:
  security: 0.9
ai_update_interval: 750ms
`

func TestLoadTemplateFromBytes(t *testing.T) {
	tmpl, err := npc.LoadTemplateFromBytes([]byte(guardYAML))
	require.NoError(t, err)
	assert.Equal(t, "gate_guard", tmpl.ID)
	assert.Equal(t, npc.FactionYugaStriders, tmpl.Faction)
	assert.Equal(t, npc.RoleGuard, tmpl.Role)
	assert.Equal(t, npc.InteractionInformation, tmpl.DefaultInteraction)
	assert.InDelta(t, 0.7, tmpl.Personality.Aggressiveness, 1e-9)
	assert.Equal(t, []string{"security", "freedom"}, tmpl.Topics)
	assert.Equal(t, 750*time.Millisecond, tmpl.UpdateInterval())
}

func TestLoadTemplateFromBytes_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing id":       "name: x\ninteraction_range: 1\n",
		"missing name":     "id: x\ninteraction_range: 1\n",
		"zero range":       "id: x\nname: X\n",
		"trait over one":   "id: x\nname: X\ninteraction_range: 1\npersonality:\n  curiosity: 1.5\n",
		"bad interval":     "id: x\nname: X\ninteraction_range: 1\nai_update_interval: soon\n",
		"unknown faction":  "id: x\nname: X\ninteraction_range: 1\nfaction: pirates\n",
		"expertise bounds": "id: x\nname: X\ninteraction_range: 1\nexpertise:\n  a: -0.1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := npc.LoadTemplateFromBytes([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTemplates_ReadsYAMLFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guard.yaml"), []byte(guardYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	got, err := npc.LoadTemplates(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gate_guard", got[0].ID)
}

func TestLoadTemplates_MissingDir(t *testing.T) {
	_, err := npc.LoadTemplates(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestDefaultTemplates_SeedEveryRoleAndFaction(t *testing.T) {
	templates := npc.DefaultTemplates()
	require.Len(t, templates, 16)
	ids := make(map[string]bool)
	for _, tmpl := range templates {
		require.NoError(t, tmpl.Validate(), tmpl.ID)
		ids[tmpl.ID] = true
	}
	for _, id := range []string{"civilian_neutral", "guard_ashvattha", "merchant_vaikuntha", "scholar_yugastriders"} {
		assert.True(t, ids[id], id)
	}
}

func TestTemplateClone_IsDeep(t *testing.T) {
	orig, err := npc.LoadTemplateFromBytes([]byte(guardYAML))
	require.NoError(t, err)
	c := orig.Clone()
	c.Topics[0] = "changed"
	c.Expertise["security"] = 0
	assert.Equal(t, "security", orig.Topics[0])
	assert.InDelta(t, 0.9, orig.Expertise["security"], 1e-9)
}

func TestFactionPersonality_Property_InUnitRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := npc.Faction(rapid.IntRange(0, 3).Draw(t, "faction"))
		p := npc.FactionPersonality(f)
		assert.Equal(t, p, p.Clamped())
	})
}
