package pages

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.starlod.dev/starlod/spatialmath"
)

func newCamera(t *testing.T) *spatialmath.Camera {
	t.Helper()
	cam, err := spatialmath.NewCamera(r3.Vector{X: 0.5, Y: 0.5, Z: -0.5}, r3.Vector{Z: 1}, r3.Vector{Y: 1})
	test.That(t, err, test.ShouldBeNil)
	return cam
}
