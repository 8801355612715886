package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestLint(t *testing.T) {
	test.That(t, Lint(0.5, 0, 1, 0, 1), test.ShouldAlmostEqual, 0.5)
	test.That(t, Lint(-3, 0, 1, 0, 1), test.ShouldEqual, 0.)
	test.That(t, Lint(7, 0, 1, 0, 1), test.ShouldEqual, 1.)
	test.That(t, Lint(2, 1, 3, 10, 20), test.ShouldAlmostEqual, 15.)
	test.That(t, Lint(1, 1, 1, 0, 1), test.ShouldEqual, 1.)
	test.That(t, Lint(0.9, 1, 1, 0, 1), test.ShouldEqual, 0.)
}

func TestClampAndFinite(t *testing.T) {
	test.That(t, Clamp(5, 0, 2), test.ShouldEqual, 2.)
	test.That(t, Clamp(-5, 0, 2), test.ShouldEqual, 0.)
	test.That(t, Clamp(1, 0, 2), test.ShouldEqual, 1.)
	test.That(t, IsFinite(1), test.ShouldBeTrue)
	test.That(t, IsFinite(math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90.)
}
