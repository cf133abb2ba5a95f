package npc

import (
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
)

// DrawCommand is one NPC draw call handed to the host graphics system.
type DrawCommand struct {
	NPCID     string
	MeshID    string
	TextureID string
	World     geom.Mat4
}

// Graphics is the host rendering capability.
type Graphics interface {
	Draw(cmd DrawCommand)
}

// GraphicsFunc adapts a function into Graphics.
type GraphicsFunc func(cmd DrawCommand)

// Draw implements Graphics.
func (f GraphicsFunc) Draw(cmd DrawCommand) { f(cmd) }

// Camera is the per-frame view used for frustum culling.
type Camera struct {
	Position geom.Vec3
	Forward  geom.Vec3
	// FOV is the full horizontal field of view in radians.
	FOV float64
}

// Sees reports whether p lies inside the camera's view cone. A camera without
// a direction or FOV sees everything.
func (cam *Camera) Sees(p geom.Vec3) bool {
	if cam == nil || cam.FOV <= 0 || cam.Forward.Length() == 0 {
		return true
	}
	to := p.Sub(cam.Position)
	if to.Length() == 0 {
		return true
	}
	return geom.AngleBetween(cam.Forward, to) <= cam.FOV/2
}

// Render draws every visible NPC within MaxRenderDistance and returns the
// number of draw calls issued. With frustum culling enabled and a camera
// supplied, NPCs outside the view cone are skipped and their in-view flag is
// refined to match.
func (m *Manager) Render(cam *Camera) int {
	m.mu.Lock()
	candidates := make([]*Controller, 0, len(m.npcs))
	for _, c := range m.npcs {
		if c.initialized && c.rec.Visible {
			candidates = append(candidates, c)
		}
	}
	m.mu.Unlock()
	sortByDistance(candidates)

	frustum := m.settings.EnableFrustumCulling && cam != nil
	drawn := 0
	for _, c := range candidates {
		if frustum {
			seen := cam.Sees(c.rec.Transform.Position)
			c.setInPlayerView(seen && c.rec.DistanceToPlayer <= ViewDistance)
			if !seen {
				continue
			}
		}
		if !c.rec.InPlayerView || c.rec.DistanceToPlayer > m.settings.MaxRenderDistance {
			continue
		}
		m.deps.Graphics.Draw(DrawCommand{
			NPCID:     c.rec.ID,
			MeshID:    c.rec.MeshID,
			TextureID: c.rec.TextureID,
			World:     c.rec.Transform.WorldMatrix(),
		})
		drawn++
	}
	return drawn
}
