// Package pointcloud defines the positioned, attributed points (stars and particles) that the
// octree and the particle-set updaters operate on.
//
// A Record is plain data owned by whichever container holds it (an octree node or a particle
// set). Records carry no back-pointer to their container.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"

	"go.starlod.dev/starlod/spatialmath"
)

// MetaData is data about what's stored in a group of records.
type MetaData struct {
	Count int

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	// MaxDistSq is the largest squared distance from the origin seen so far.
	MaxDistSq float64
}

// NewMetaData returns empty metadata ready to be merged into.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the metadata to include p.
func (meta *MetaData) Merge(p r3.Vector) {
	meta.Count++
	meta.MaxX = math.Max(meta.MaxX, p.X)
	meta.MaxY = math.Max(meta.MaxY, p.Y)
	meta.MaxZ = math.Max(meta.MaxZ, p.Z)
	meta.MinX = math.Min(meta.MinX, p.X)
	meta.MinY = math.Min(meta.MinY, p.Y)
	meta.MinZ = math.Min(meta.MinZ, p.Z)
	meta.MaxDistSq = math.Max(meta.MaxDistSq, p.Dot(p))
}

// Combine merges other into meta.
func (meta *MetaData) Combine(other MetaData) {
	if other.Count == 0 {
		return
	}
	meta.Count += other.Count
	meta.MaxX = math.Max(meta.MaxX, other.MaxX)
	meta.MaxY = math.Max(meta.MaxY, other.MaxY)
	meta.MaxZ = math.Max(meta.MaxZ, other.MaxZ)
	meta.MinX = math.Min(meta.MinX, other.MinX)
	meta.MinY = math.Min(meta.MinY, other.MinY)
	meta.MinZ = math.Min(meta.MinZ, other.MinZ)
	meta.MaxDistSq = math.Max(meta.MaxDistSq, other.MaxDistSq)
}

// Bounds returns the bounding box of everything merged so far.
func (meta *MetaData) Bounds() spatialmath.AABB {
	return spatialmath.AABB{
		Min: r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ},
		Max: r3.Vector{X: meta.MaxX, Y: meta.MaxY, Z: meta.MaxZ},
	}
}

// MaxAbsCoordinate returns the largest coordinate magnitude on any axis.
func (meta *MetaData) MaxAbsCoordinate() float64 {
	if meta.Count == 0 {
		return 0
	}
	m := 0.0
	for _, v := range []float64{meta.MinX, meta.MaxX, meta.MinY, meta.MaxY, meta.MinZ, meta.MaxZ} {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
