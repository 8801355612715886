package octree

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.starlod.dev/starlod/pointcloud"
	"go.starlod.dev/starlod/spatialmath"
	"go.starlod.dev/starlod/utils"
)

func newTestCamera(t *testing.T, pos, dir r3.Vector) *spatialmath.Camera {
	t.Helper()
	cam, err := spatialmath.NewCamera(pos, dir, r3.Vector{Y: 1})
	test.That(t, err, test.ShouldBeNil)
	return cam
}

func TestOctant(t *testing.T) {
	n := NewNode(r3.Vector{X: 1, Y: 1, Z: 1}, 1, 0)
	test.That(t, n.Octant(r3.Vector{X: 0, Y: 0, Z: 0}), test.ShouldEqual, 0)
	test.That(t, n.Octant(r3.Vector{X: 2, Y: 0, Z: 0}), test.ShouldEqual, 4)
	test.That(t, n.Octant(r3.Vector{X: 0, Y: 2, Z: 0}), test.ShouldEqual, 2)
	test.That(t, n.Octant(r3.Vector{X: 0, Y: 0, Z: 2}), test.ShouldEqual, 1)
	test.That(t, n.Octant(r3.Vector{X: 1, Y: 1, Z: 1}), test.ShouldEqual, 7)

	for i := 0; i < 8; i++ {
		c := octantCenter(n.Center, n.HalfSize, i)
		test.That(t, n.Octant(c), test.ShouldEqual, i)
		test.That(t, n.Contains(c), test.ShouldBeTrue)
	}
}

func TestSolidAngleMonotonic(t *testing.T) {
	n := NewNode(r3.Vector{}, 1, 0)
	params := DefaultLODParams()
	prev := math.Inf(1)
	crossed := false
	for d := 0.5; d < 200; d *= 1.1 {
		cam := newTestCamera(t, r3.Vector{Z: -d}, r3.Vector{Z: 1})
		angle := n.SolidAngle(cam.Pos, cam.FovFactor())
		test.That(t, angle, test.ShouldBeLessThanOrEqualTo, prev)
		prev = angle

		var frame FrameState
		var active ActiveSet
		n.Update(cam, params, &frame, &active, 1)
		if angle < params.ThresholdDown {
			crossed = true
			test.That(t, n.Observed, test.ShouldBeFalse)
			test.That(t, frame.OctantsObserved, test.ShouldEqual, 0)
		} else {
			test.That(t, crossed, test.ShouldBeFalse)
			test.That(t, n.Observed, test.ShouldBeTrue)
		}
	}
	test.That(t, crossed, test.ShouldBeTrue)
}

func TestSolidAngleInsideNode(t *testing.T) {
	n := NewNode(r3.Vector{}, 1, 0)
	test.That(t, n.SolidAngle(r3.Vector{}, 1), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, n.SolidAngle(r3.Vector{}, 2), test.ShouldAlmostEqual, math.Pi/4)
}

func buildTwoLevelNode() *Node {
	root := NewNode(r3.Vector{}, 2, 0)
	root.SetRecords([]*pointcloud.Record{pointcloud.NewRecord(1, r3.Vector{X: 1}, 0)})
	root.NumObjects = 1
	for i := range root.Children {
		child := NewNode(octantCenter(root.Center, root.HalfSize, i), 1, 1)
		rec := pointcloud.NewRecord(uint64(10+i), child.Center, 1)
		child.SetRecords([]*pointcloud.Record{rec})
		child.NumObjects = 1
		root.Children[i] = child
	}
	return root
}

func TestUpdateSelectsAndFades(t *testing.T) {
	root := buildTwoLevelNode()
	params := LODParams{ThresholdDown: 0.1, ThresholdUp: 2}

	cam := newTestCamera(t, r3.Vector{Z: -8}, r3.Vector{Z: 1})
	frame := FrameState{Frame: 1}
	var active ActiveSet
	root.Update(cam, params, &frame, &active, 1)

	test.That(t, root.Observed, test.ShouldBeTrue)
	test.That(t, root.Opacity, test.ShouldEqual, 1.0)
	test.That(t, active.Entries()[0].Record.ID, test.ShouldEqual, uint64(1))
	test.That(t, active.Entries()[0].Opacity, test.ShouldEqual, 1.0)

	expected := utils.Lint(root.ViewAngle, params.ThresholdDown, params.ThresholdUp, 0, 1)
	test.That(t, expected, test.ShouldBeGreaterThan, 0.0)
	test.That(t, expected, test.ShouldBeLessThan, 1.0)
	observedChildren := 0
	for _, c := range root.Children {
		if c.Observed {
			observedChildren++
			test.That(t, c.Opacity, test.ShouldAlmostEqual, expected)
		}
	}
	test.That(t, observedChildren, test.ShouldBeGreaterThan, 0)
	test.That(t, frame.OctantsObserved, test.ShouldEqual, 1+observedChildren)
	test.That(t, frame.ObjectsObserved, test.ShouldEqual, active.Len())
}

func TestUpdateCullsWholeSubtree(t *testing.T) {
	root := buildTwoLevelNode()
	params := LODParams{ThresholdDown: 0.1, ThresholdUp: 2}
	var active ActiveSet

	cam := newTestCamera(t, r3.Vector{Z: -8}, r3.Vector{Z: 1})
	root.Update(cam, params, &FrameState{Frame: 1}, &active, 1)
	test.That(t, root.Children[7].Observed, test.ShouldBeTrue)
	active.Clear()

	// Looking away from the tree.
	cam = newTestCamera(t, r3.Vector{Z: -8}, r3.Vector{Z: -1})
	frame := FrameState{Frame: 2}
	root.Update(cam, params, &frame, &active, 1)
	test.That(t, active.Len(), test.ShouldEqual, 0)
	test.That(t, frame.OctantsObserved, test.ShouldEqual, 0)
	root.Walk(func(n *Node) bool {
		test.That(t, n.Observed, test.ShouldBeFalse)
		test.That(t, n.Opacity, test.ShouldEqual, 0.0)
		return true
	})
}

func TestUpdateEmptyAndUnloadedNodes(t *testing.T) {
	root := NewNode(r3.Vector{}, 1, 0)
	child := NewNode(octantCenter(root.Center, root.HalfSize, 0), 0.5, 1)
	child.NumObjects = 3
	child.Unload()
	root.Children[0] = child

	var requested []uint64
	frame := FrameState{Frame: 1, request: func(n *Node) { requested = append(requested, n.PageID) }}
	var active ActiveSet
	cam := newTestCamera(t, r3.Vector{}, r3.Vector{Z: -1})
	root.Update(cam, LODParams{ThresholdDown: 1e-6, ThresholdUp: 1e-5}, &frame, &active, 1)

	test.That(t, active.Len(), test.ShouldEqual, 0)
	test.That(t, requested, test.ShouldResemble, []uint64{child.PageID})
	test.That(t, child.Status(), test.ShouldEqual, Loading)

	// A second frame does not request the page again.
	root.Update(cam, LODParams{ThresholdDown: 1e-6, ThresholdUp: 1e-5}, &frame, &active, 1)
	test.That(t, len(requested), test.ShouldEqual, 1)
}

func TestLODParamsValidate(t *testing.T) {
	test.That(t, DefaultLODParams().Validate(), test.ShouldBeNil)
	test.That(t, LODParams{ThresholdDown: 0, ThresholdUp: 1}.Validate(), test.ShouldNotBeNil)
	test.That(t, LODParams{ThresholdDown: 2, ThresholdUp: 1}.Validate(), test.ShouldNotBeNil)
}
