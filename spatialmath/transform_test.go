package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestParseFrameTransform(t *testing.T) {
	ft, err := ParseFrameTransform("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ft, test.ShouldEqual, Identity)

	ft, err = ParseFrameTransform("EQ2GAL")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ft, test.ShouldEqual, EquatorialToGalactic)
	test.That(t, ft.String(), test.ShouldEqual, "eq2gal")

	_, err = ParseFrameTransform("eq2moon")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFrameTransformRoundTrip(t *testing.T) {
	v := r3.Vector{X: 1.5, Y: -20, Z: 300}
	for _, pair := range [][2]FrameTransform{
		{EquatorialToEcliptic, EclipticToEquatorial},
		{EquatorialToGalactic, GalacticToEquatorial},
	} {
		there := pair[0].Apply(v)
		test.That(t, there.Norm(), test.ShouldAlmostEqual, v.Norm(), 1e-9)
		back := pair[1].Apply(there)
		test.That(t, back.Distance(v), test.ShouldBeLessThan, 1e-9)
	}
	test.That(t, Identity.Apply(v), test.ShouldResemble, v)

	// The equatorial x axis lies in the ecliptic plane.
	test.That(t, EquatorialToEcliptic.Apply(r3.Vector{X: 1}).Distance(r3.Vector{X: 1}), test.ShouldBeLessThan, 1e-12)
	// The celestial north pole tilts towards the ecliptic y axis by the obliquity.
	pole := EquatorialToEcliptic.Apply(r3.Vector{Z: 1})
	test.That(t, pole.Y, test.ShouldBeGreaterThan, 0)
}
