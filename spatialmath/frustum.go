package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Plane is the set of points p with Normal·p + D = 0. Points with a positive signed distance are
// on the inner side.
type Plane struct {
	Normal r3.Vector
	D      float64
}

// SignedDistance returns the signed distance from p to the plane.
func (pl Plane) SignedDistance(p r3.Vector) float64 {
	return pl.Normal.Dot(p) + pl.D
}

func newPlane(v mgl64.Vec4) Plane {
	n := r3.Vector{X: v[0], Y: v[1], Z: v[2]}
	norm := n.Norm()
	if norm == 0 {
		return Plane{}
	}
	return Plane{Normal: n.Mul(1 / norm), D: v[3] / norm}
}

// Frustum is a camera view volume bounded by six inward-facing planes
// (left, right, bottom, top, near, far).
type Frustum struct {
	Planes [6]Plane
}

// NewFrustum extracts the frustum planes from a combined projection·view matrix
// (Gribb & Hartmann).
func NewFrustum(viewProj mgl64.Mat4) *Frustum {
	row0, row1, row2, row3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	return &Frustum{Planes: [6]Plane{
		newPlane(row3.Add(row0)),
		newPlane(row3.Sub(row0)),
		newPlane(row3.Add(row1)),
		newPlane(row3.Sub(row1)),
		newPlane(row3.Add(row2)),
		newPlane(row3.Sub(row2)),
	}}
}

// IntersectsAABB reports whether the box is at least partially inside the frustum. It tests the
// box vertex furthest along each plane normal, so it may report boxes near frustum corners as
// intersecting.
func (f *Frustum) IntersectsAABB(b AABB) bool {
	for _, pl := range f.Planes {
		positive := b.Min
		if pl.Normal.X >= 0 {
			positive.X = b.Max.X
		}
		if pl.Normal.Y >= 0 {
			positive.Y = b.Max.Y
		}
		if pl.Normal.Z >= 0 {
			positive.Z = b.Max.Z
		}
		if pl.SignedDistance(positive) < 0 {
			return false
		}
	}
	return true
}

// IntersectsSphere reports whether the sphere is at least partially inside the frustum.
func (f *Frustum) IntersectsSphere(center r3.Vector, radius float64) bool {
	for _, pl := range f.Planes {
		if pl.SignedDistance(center) < -radius {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether p is inside the frustum.
func (f *Frustum) ContainsPoint(p r3.Vector) bool {
	return f.IntersectsSphere(p, 0)
}
