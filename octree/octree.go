// Package octree implements the spatial index behind star catalog rendering: an octree whose
// nodes each hold a bounded set of representative records, an offline builder that decides which
// records represent a node at low detail, and a runtime index that walks the tree every frame to
// select what the camera can distinguish.
package octree

import (
	"github.com/golang/geo/r3"

	"go.starlod.dev/starlod/pointcloud"
)

// Each node's page is either resident with its records in memory, not loaded, being loaded in
// the background, or failed to load. Geometry and children are kept in every state.
const (
	NotLoaded = Status(iota)
	Loading
	Loaded
	LoadingFailed
)

// Status is the residency state of a node's records.
type Status uint8

func (s Status) String() string {
	switch s {
	case NotLoaded:
		return "not loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadingFailed:
		return "loading failed"
	}
	return "unknown"
}

const (
	// DefaultMaxPart is the default number of records a node may hold directly.
	DefaultMaxPart = 4000
	// DefaultMaxDepth bounds recursion for degenerate inputs such as many coincident points.
	DefaultMaxDepth = 30
)

// RenderListener receives the output of a frame walk.
type RenderListener interface {
	// RenderListDirty is called when the number of records to render differs from the last frame.
	RenderListDirty(size int)
	// Render is called once per active record, after its render position has been updated.
	Render(rec *pointcloud.Record, opacity float64)
}

// Pager loads and evicts node pages on behalf of an Index. Request must not block; done is
// called later on the render thread with the page contents.
type Pager interface {
	Request(pageID uint64, done func(pointcloud.Records, error))
	Evict(pageID uint64)
}

// octantOf returns the index of the child octant of a cube centred at center that contains p.
// Points on a dividing plane go to the upper octant.
func octantOf(center, p r3.Vector) int {
	i := 0
	if p.X >= center.X {
		i |= 4
	}
	if p.Y >= center.Y {
		i |= 2
	}
	if p.Z >= center.Z {
		i |= 1
	}
	return i
}

// octantCenter returns the centre of child octant i.
func octantCenter(center r3.Vector, halfSize float64, i int) r3.Vector {
	q := halfSize / 2
	c := center
	if i&4 != 0 {
		c.X += q
	} else {
		c.X -= q
	}
	if i&2 != 0 {
		c.Y += q
	} else {
		c.Y -= q
	}
	if i&1 != 0 {
		c.Z += q
	} else {
		c.Z -= q
	}
	return c
}
