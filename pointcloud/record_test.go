package pointcloud

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.starlod.dev/starlod/spatialmath"
)

func TestRecordValidate(t *testing.T) {
	r := NewRecord(1, r3.Vector{X: 1, Y: 2, Z: 3}, 4.5)
	test.That(t, r.Validate(), test.ShouldBeNil)

	r.Pos.Y = math.Inf(1)
	err := r.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "y component")

	r = NewRecord(2, r3.Vector{}, math.NaN())
	test.That(t, r.Validate(), test.ShouldNotBeNil)

	r = NewRecord(3, r3.Vector{}, 1)
	r.HasVel = true
	r.Vel = r3.Vector{Z: math.NaN()}
	test.That(t, r.Validate(), test.ShouldNotBeNil)
}

func TestRecordPropagate(t *testing.T) {
	r := NewRecord(1, r3.Vector{X: 10}, 0)
	r.Epoch = 2451545.0
	r.Propagate(2451645.0)
	test.That(t, r.RenderPos, test.ShouldResemble, r3.Vector{X: 10})

	r.HasVel = true
	r.Vel = r3.Vector{Y: 0.5}
	r.Propagate(2451645.0)
	test.That(t, r.RenderPos, test.ShouldResemble, r3.Vector{X: 10, Y: 50})
	// The catalog position is untouched.
	test.That(t, r.Pos, test.ShouldResemble, r3.Vector{X: 10})
}

func TestRecordClaim(t *testing.T) {
	r := NewRecord(1, r3.Vector{}, 0)
	test.That(t, r.Claimed(), test.ShouldBeFalse)
	test.That(t, r.Claim(), test.ShouldBeTrue)
	test.That(t, r.Claim(), test.ShouldBeFalse)
	test.That(t, r.Claimed(), test.ShouldBeTrue)
	Records{r}.ReleaseClaims()
	test.That(t, r.Claimed(), test.ShouldBeFalse)
}

func TestSortByBrightness(t *testing.T) {
	recs := Records{
		NewRecord(5, r3.Vector{}, 3),
		NewRecord(2, r3.Vector{}, -1),
		NewRecord(4, r3.Vector{}, 3),
		NewRecord(1, r3.Vector{}, 7),
		NewRecord(3, r3.Vector{}, -1),
	}
	recs.SortByBrightness()
	ids := make([]uint64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	test.That(t, ids, test.ShouldResemble, []uint64{2, 3, 4, 5, 1})
}

func TestMetaData(t *testing.T) {
	recs := Records{
		NewRecord(1, r3.Vector{X: -4, Y: 1, Z: 2}, 0),
		NewRecord(2, r3.Vector{X: 3, Y: -6, Z: 0}, 0),
	}
	meta := recs.MetaData()
	test.That(t, meta.Count, test.ShouldEqual, 2)
	test.That(t, meta.Bounds().Min, test.ShouldResemble, r3.Vector{X: -4, Y: -6, Z: 0})
	test.That(t, meta.Bounds().Max, test.ShouldResemble, r3.Vector{X: 3, Y: 1, Z: 2})
	test.That(t, meta.MaxAbsCoordinate(), test.ShouldEqual, 6.)
	test.That(t, meta.MaxDistSq, test.ShouldEqual, 45.)

	other := NewMetaData()
	other.Merge(r3.Vector{Z: 10})
	meta.Combine(other)
	test.That(t, meta.Count, test.ShouldEqual, 3)
	test.That(t, meta.MaxZ, test.ShouldEqual, 10.)

	empty := NewMetaData()
	test.That(t, empty.MaxAbsCoordinate(), test.ShouldEqual, 0.)
	meta.Combine(empty)
	test.That(t, meta.Count, test.ShouldEqual, 3)
}

func TestRecordsTransform(t *testing.T) {
	r := NewRecord(1, r3.Vector{Z: 1}, 0)
	r.HasVel = true
	r.Vel = r3.Vector{Z: 2}
	Records{r}.Transform(spatialmath.EquatorialToEcliptic)
	test.That(t, r.Pos.Y, test.ShouldBeGreaterThan, 0)
	test.That(t, r.Vel.Norm(), test.ShouldAlmostEqual, 2.)
	test.That(t, r.RenderPos, test.ShouldResemble, r.Pos)
}
