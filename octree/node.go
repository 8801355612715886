package octree

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.starlod.dev/starlod/pointcloud"
	"go.starlod.dev/starlod/spatialmath"
	"go.starlod.dev/starlod/utils"
)

// LODParams bounds the angular size, in radians, at which a node contributes detail. Both
// thresholds are divided into the view angle through the camera's fov factor, so they hold for
// any field of view.
type LODParams struct {
	// ThresholdDown is the view angle below which a node is not observed.
	ThresholdDown float64 `json:"threshold_down"`
	// ThresholdUp is the view angle at which a node's children are fully opaque.
	ThresholdUp float64 `json:"threshold_up"`
}

// DefaultLODParams returns the thresholds used when none are configured.
func DefaultLODParams() LODParams {
	return LODParams{
		ThresholdDown: utils.DegToRad(20),
		ThresholdUp:   utils.DegToRad(25),
	}
}

// Validate checks the thresholds are ordered and positive.
func (p LODParams) Validate() error {
	if p.ThresholdDown <= 0 {
		return errors.Errorf("threshold_down must be positive, got %v", p.ThresholdDown)
	}
	if p.ThresholdUp < p.ThresholdDown {
		return errors.Errorf("threshold_up (%v) must not be below threshold_down (%v)", p.ThresholdUp, p.ThresholdDown)
	}
	return nil
}

// FrameState holds the counters shared by every node during one frame walk.
type FrameState struct {
	Frame           uint64
	OctantsObserved int
	ObjectsObserved int

	// request is called for observed nodes whose page is not resident.
	request func(n *Node)
}

func (fs *FrameState) reset(frame uint64) {
	fs.Frame = frame
	fs.OctantsObserved = 0
	fs.ObjectsObserved = 0
}

// ActiveEntry is a record selected for rendering along with the node that holds it.
type ActiveEntry struct {
	Record  *pointcloud.Record
	Node    *Node
	Opacity float64
}

// ActiveSet is the list of records selected by one frame walk. It is rebuilt every frame.
type ActiveSet struct {
	entries []ActiveEntry
}

// Len returns the number of selected records.
func (as *ActiveSet) Len() int {
	return len(as.entries)
}

// Entries returns the selected records. The slice is reused after Clear.
func (as *ActiveSet) Entries() []ActiveEntry {
	return as.entries
}

// Clear empties the set, keeping its storage.
func (as *ActiveSet) Clear() {
	clear(as.entries)
	as.entries = as.entries[:0]
}

func (as *ActiveSet) add(rec *pointcloud.Record, n *Node, opacity float64) {
	as.entries = append(as.entries, ActiveEntry{Record: rec, Node: n, Opacity: opacity})
}

// Node is one cubical region of the octree. It directly owns up to MaxPart records and owns its
// children. Unloading a node drops its records but keeps its geometry and children.
type Node struct {
	Center   r3.Vector
	HalfSize float64
	Depth    int
	PageID   uint64
	Children [8]*Node

	// Records are the node's representatives, present when the node is loaded.
	Records []*pointcloud.Record
	// NumObjects is the number of records assigned to this node at build time.
	NumObjects int
	// NumObjectsRec is the number of records assigned to this node's subtree at build time.
	NumObjectsRec int

	// Per frame state.
	Observed  bool
	Opacity   float64
	ViewAngle float64

	status       Status
	lastObserved uint64
}

// NewNode returns an empty, loaded node.
func NewNode(center r3.Vector, halfSize float64, depth int) *Node {
	return &Node{Center: center, HalfSize: halfSize, Depth: depth, status: Loaded}
}

// Status returns the residency state of the node's records.
func (n *Node) Status() Status {
	return n.status
}

// Bounds returns the node's cube.
func (n *Node) Bounds() spatialmath.AABB {
	return spatialmath.NewCube(n.Center, n.HalfSize)
}

// Radius returns the radius of the node's bounding sphere.
func (n *Node) Radius() float64 {
	return n.HalfSize * math.Sqrt(3)
}

// Contains reports whether p lies within the node's cube.
func (n *Node) Contains(p r3.Vector) bool {
	return n.Bounds().Contains(p)
}

// Octant returns the index of the child octant that contains p.
func (n *Node) Octant(p r3.Vector) int {
	return octantOf(n.Center, p)
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return lo.EveryBy(n.Children[:], func(c *Node) bool { return c == nil })
}

// NumChildren returns the number of non-nil children.
func (n *Node) NumChildren() int {
	return lo.CountBy(n.Children[:], func(c *Node) bool { return c != nil })
}

// SolidAngle returns the node's view angle from camPos: the apparent angular radius of its
// bounding sphere divided by fovFactor.
func (n *Node) SolidAngle(camPos r3.Vector, fovFactor float64) float64 {
	return spatialmath.ViewAngle(camPos, n.Center, n.Radius(), fovFactor)
}

// Walk calls fn for the node and every descendant in pre-order. Returning false from fn skips
// the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		if c != nil {
			c.Walk(fn)
		}
	}
}

// CountRecords returns the number of records currently held by the subtree.
func (n *Node) CountRecords() int {
	count := 0
	n.Walk(func(node *Node) bool {
		count += len(node.Records)
		return true
	})
	return count
}

// SetRecords makes the node resident with the given records.
func (n *Node) SetRecords(recs []*pointcloud.Record) {
	n.Records = recs
	n.status = Loaded
}

// Unload drops the node's records. The node can be reloaded from its page.
func (n *Node) Unload() []*pointcloud.Record {
	recs := n.Records
	n.Records = nil
	n.status = NotLoaded
	return recs
}

// Update decides whether the node is observed by cam and, if so, appends its records to active
// with the given opacity and updates its children. Nodes outside the view volume or smaller than
// the down threshold are marked unobserved along with their whole subtree.
func (n *Node) Update(cam *spatialmath.Camera, params LODParams, frame *FrameState, active *ActiveSet, opacity float64) {
	n.ViewAngle = n.SolidAngle(cam.Pos, cam.FovFactor())
	if n.ViewAngle < params.ThresholdDown || !cam.Frustum().IntersectsAABB(n.Bounds()) {
		n.setUnobserved()
		return
	}

	n.Observed = true
	n.Opacity = opacity
	n.lastObserved = frame.Frame
	frame.OctantsObserved++

	switch n.status {
	case Loaded:
		frame.ObjectsObserved += len(n.Records)
		for _, rec := range n.Records {
			active.add(rec, n, opacity)
		}
	case NotLoaded:
		// Contributes nothing until the page arrives.
		if n.NumObjects > 0 && frame.request != nil {
			n.status = Loading
			frame.request(n)
		}
	case Loading, LoadingFailed:
	}

	childOpacity := opacity * utils.Lint(n.ViewAngle, params.ThresholdDown, params.ThresholdUp, 0, 1)
	for _, c := range n.Children {
		if c != nil {
			c.Update(cam, params, frame, active, childOpacity)
		}
	}
}

func (n *Node) setUnobserved() {
	n.Walk(func(node *Node) bool {
		if !node.Observed && node != n {
			// Descendants of an unobserved node were cleared when it was first culled.
			return false
		}
		node.Observed = false
		node.Opacity = 0
		return true
	})
}

func (n *Node) String() string {
	return fmt.Sprintf("node %d depth %d centre %v half %.3g objects %d/%d %s",
		n.PageID, n.Depth, n.Center, n.HalfSize, n.NumObjects, n.NumObjectsRec, n.status)
}
