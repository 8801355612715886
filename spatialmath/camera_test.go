package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func newTestCamera(t *testing.T, pos r3.Vector) *Camera {
	t.Helper()
	cam, err := NewCamera(pos, r3.Vector{Z: 1}, r3.Vector{Y: 1})
	test.That(t, err, test.ShouldBeNil)
	return cam
}

func TestCameraValidate(t *testing.T) {
	_, err := NewCamera(r3.Vector{}, r3.Vector{}, r3.Vector{Y: 1})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewCamera(r3.Vector{}, r3.Vector{Y: 1}, r3.Vector{Y: 2})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewCamera(r3.Vector{X: math.NaN()}, r3.Vector{Z: 1}, r3.Vector{Y: 1})
	test.That(t, err, test.ShouldNotBeNil)

	cam := newTestCamera(t, r3.Vector{})
	cam.FovDeg = 180
	test.That(t, cam.Validate(), test.ShouldNotBeNil)
}

func TestFrustumContainment(t *testing.T) {
	for _, origin := range []r3.Vector{{}, {X: 1e12, Y: -3e11, Z: 7e10}} {
		cam := newTestCamera(t, origin)
		f := cam.Frustum()

		test.That(t, f.ContainsPoint(origin.Add(r3.Vector{Z: 10})), test.ShouldBeTrue)
		test.That(t, f.ContainsPoint(origin.Add(r3.Vector{Z: -10})), test.ShouldBeFalse)
		test.That(t, f.ContainsPoint(origin.Add(r3.Vector{X: 100, Z: 1})), test.ShouldBeFalse)

		// A box behind the camera is culled, one straddling the view axis is kept.
		test.That(t, f.IntersectsAABB(NewCube(origin.Add(r3.Vector{Z: -50}), 5)), test.ShouldBeFalse)
		test.That(t, f.IntersectsAABB(NewCube(origin.Add(r3.Vector{Z: 50}), 5)), test.ShouldBeTrue)
		// The camera sits inside this box.
		test.That(t, f.IntersectsAABB(NewCube(origin, 1)), test.ShouldBeTrue)

		test.That(t, f.IntersectsSphere(origin.Add(r3.Vector{X: 30, Z: 10}), 1), test.ShouldBeFalse)
		test.That(t, f.IntersectsSphere(origin.Add(r3.Vector{X: 30, Z: 10}), 100), test.ShouldBeTrue)
	}
}

func TestFrustumRecomputedAfterMove(t *testing.T) {
	cam := newTestCamera(t, r3.Vector{})
	p := r3.Vector{Z: 10}
	test.That(t, cam.Frustum().ContainsPoint(p), test.ShouldBeTrue)

	cam.MoveTo(r3.Vector{}, r3.Vector{Z: -1})
	test.That(t, cam.Frustum().ContainsPoint(p), test.ShouldBeFalse)
}

func TestViewAngleMonotonic(t *testing.T) {
	center := r3.Vector{X: 3, Y: -2, Z: 8}
	radius := 2.5
	prev := math.Inf(1)
	for d := 0.0; d < 1e6; d = d*1.5 + 0.1 {
		eye := center.Add(r3.Vector{X: d})
		angle := ViewAngle(eye, center, radius, 1.2)
		test.That(t, angle, test.ShouldBeLessThanOrEqualTo, prev)
		prev = angle
	}
	test.That(t, ViewAngle(center, center, radius, 1), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, ViewAngle(r3.Vector{X: 10}, r3.Vector{}, 10, 1), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, ViewAngle(r3.Vector{X: 20}, r3.Vector{}, 20/math.Sqrt(3), 1), test.ShouldAlmostEqual, math.Pi/6)
}

func TestAABB(t *testing.T) {
	cube := NewCube(r3.Vector{X: 1}, 2)
	test.That(t, cube.Min, test.ShouldResemble, r3.Vector{X: -1, Y: -2, Z: -2})
	test.That(t, cube.Max, test.ShouldResemble, r3.Vector{X: 3, Y: 2, Z: 2})
	test.That(t, cube.Volume(), test.ShouldAlmostEqual, 64.)
	test.That(t, cube.Center(), test.ShouldResemble, r3.Vector{X: 1})
	test.That(t, cube.BoundingSphereRadius(), test.ShouldAlmostEqual, 2*math.Sqrt(3))
	test.That(t, cube.Contains(r3.Vector{X: 3, Y: 2, Z: 2}), test.ShouldBeTrue)
	test.That(t, cube.Contains(r3.Vector{X: 3.01}), test.ShouldBeFalse)

	for _, v := range cube.Vertices() {
		test.That(t, cube.Contains(v), test.ShouldBeTrue)
	}

	span := NewAABBSpanning(r3.Vector{X: 4, Y: -1, Z: 2}, r3.Vector{X: -2, Y: 3, Z: 2})
	test.That(t, span.Dims(), test.ShouldResemble, r3.Vector{X: 6, Y: 4, Z: 0})
	test.That(t, span.Volume(), test.ShouldEqual, 0.)
	test.That(t, span.LongestSide(), test.ShouldEqual, 6.)
	test.That(t, span.Extend(r3.Vector{Z: 10}).Max.Z, test.ShouldEqual, 10.)
}
