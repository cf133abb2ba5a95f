// Package geom provides the small amount of 3D math the NPC fleet needs:
// positions, transforms, and the world matrices handed to the graphics host.
package geom

import "math"

// Vec3 is a point or direction in world space. Y is up.
type Vec3 struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// V returns the vector (x, y, z).
func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Length returns the Euclidean length of v.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Distance returns the Euclidean distance between v and o.
//
// Postcondition: Distance(a, b) == Distance(b, a) and is >= 0.
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

// Normalize returns v scaled to unit length, or the zero vector when v has no length.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// MoveToward returns the point reached by walking from v toward target by at
// most step units. The target is returned when it is within step.
func (v Vec3) MoveToward(target Vec3, step float64) Vec3 {
	d := target.Sub(v)
	l := d.Length()
	if l <= step || l == 0 {
		return target
	}
	return v.Add(d.Scale(step / l))
}

// AngleBetween returns the angle in radians between v and o, or 0 when either
// has no length.
func AngleBetween(v, o Vec3) float64 {
	lv, lo := v.Length(), o.Length()
	if lv == 0 || lo == 0 {
		return 0
	}
	c := v.Dot(o) / (lv * lo)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c)
}

// Transform places an object in the world. Rotation is Euler angles in
// radians (pitch about X, yaw about Y, roll about Z).
type Transform struct {
	Position Vec3 `yaml:"position" json:"position"`
	Rotation Vec3 `yaml:"rotation" json:"rotation"`
	Scale    Vec3 `yaml:"scale" json:"scale"`
}

// At returns an identity-scaled, unrotated transform at p.
func At(p Vec3) Transform {
	return Transform{Position: p, Scale: Vec3{1, 1, 1}}
}

// Mat4 is a column-major 4x4 matrix, the layout graphics APIs expect.
type Mat4 [16]float64

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m*o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var r Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += m[k*4+row] * o[col*4+k]
			}
			r[col*4+row] = s
		}
	}
	return r
}

// Apply transforms the point p by m.
func (m Mat4) Apply(p Vec3) Vec3 {
	return Vec3{
		X: m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12],
		Y: m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13],
		Z: m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14],
	}
}

func translation(p Vec3) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = p.X, p.Y, p.Z
	return m
}

func scaling(s Vec3) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = s.X, s.Y, s.Z
	return m
}

func rotationX(a float64) Mat4 {
	c, s := math.Cos(a), math.Sin(a)
	m := Identity()
	m[5], m[6], m[9], m[10] = c, s, -s, c
	return m
}

func rotationY(a float64) Mat4 {
	c, s := math.Cos(a), math.Sin(a)
	m := Identity()
	m[0], m[2], m[8], m[10] = c, -s, s, c
	return m
}

func rotationZ(a float64) Mat4 {
	c, s := math.Cos(a), math.Sin(a)
	m := Identity()
	m[0], m[1], m[4], m[5] = c, s, -s, c
	return m
}

// WorldMatrix returns translation * rotation(Y,X,Z) * scale for t.
// A zero Scale is treated as unit scale.
func (t Transform) WorldMatrix() Mat4 {
	sc := t.Scale
	if sc == (Vec3{}) {
		sc = Vec3{1, 1, 1}
	}
	rot := rotationY(t.Rotation.Y).Mul(rotationX(t.Rotation.X)).Mul(rotationZ(t.Rotation.Z))
	return translation(t.Position).Mul(rot).Mul(scaling(sc))
}
