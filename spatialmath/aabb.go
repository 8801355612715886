package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Ordered list of box vertex signs, relative to the box centre.
var boxVertices = [8]r3.Vector{
	{X: 1, Y: 1, Z: 1},
	{X: 1, Y: 1, Z: -1},
	{X: 1, Y: -1, Z: 1},
	{X: 1, Y: -1, Z: -1},
	{X: -1, Y: 1, Z: 1},
	{X: -1, Y: 1, Z: -1},
	{X: -1, Y: -1, Z: 1},
	{X: -1, Y: -1, Z: -1},
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min r3.Vector
	Max r3.Vector
}

// NewCube returns the cube centred at center with the given half side length.
func NewCube(center r3.Vector, halfSize float64) AABB {
	h := r3.Vector{X: halfSize, Y: halfSize, Z: halfSize}
	return AABB{Min: center.Sub(h), Max: center.Add(h)}
}

// NewAABBSpanning returns the smallest box containing both a and b.
func NewAABBSpanning(a, b r3.Vector) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// Center returns the centre of the box.
func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Dims returns the side lengths of the box.
func (b AABB) Dims() r3.Vector {
	return b.Max.Sub(b.Min)
}

// Volume returns the volume of the box.
func (b AABB) Volume() float64 {
	d := b.Dims()
	return d.X * d.Y * d.Z
}

// LongestSide returns the longest side length.
func (b AABB) LongestSide() float64 {
	d := b.Dims()
	return math.Max(d.X, math.Max(d.Y, d.Z))
}

// Contains reports whether p lies inside the box, boundaries included.
func (b AABB) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Extend returns the box grown to include p.
func (b AABB) Extend(p r3.Vector) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: r3.Vector{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

// Vertices returns the eight corners of the box.
func (b AABB) Vertices() [8]r3.Vector {
	c := b.Center()
	half := b.Dims().Mul(0.5)
	var verts [8]r3.Vector
	for i, s := range boxVertices {
		verts[i] = r3.Vector{X: c.X + s.X*half.X, Y: c.Y + s.Y*half.Y, Z: c.Z + s.Z*half.Z}
	}
	return verts
}

// BoundingSphereRadius returns the radius of the sphere circumscribing the box.
func (b AABB) BoundingSphereRadius() float64 {
	return b.Dims().Norm() / 2
}

func (b AABB) String() string {
	return fmt.Sprintf("aabb [%v, %v]", b.Min, b.Max)
}

// ViewAngle returns the apparent angular radius, in radians, of a sphere of the given radius
// centred at center as seen from eye, divided by fovFactor. An eye inside the sphere sees it at
// π/2. The value never increases as the eye moves away.
func ViewAngle(eye, center r3.Vector, radius, fovFactor float64) float64 {
	if fovFactor <= 0 {
		fovFactor = 1
	}
	dist := eye.Distance(center)
	if dist <= radius {
		return math.Pi / 2 / fovFactor
	}
	return math.Atan(radius/dist) / fovFactor
}
