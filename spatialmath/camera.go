package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.starlod.dev/starlod/utils"
)

// Default camera parameters.
const (
	DefaultFovDeg = 45.0
	DefaultNear   = 1e-6
	DefaultFar    = 1e25

	// referenceFovDeg is the field of view at which the fov factor is 1.
	referenceFovDeg = 40.0
)

// Camera is the observer state supplied by the camera collaborator every frame.
type Camera struct {
	Pos    r3.Vector
	Dir    r3.Vector
	Up     r3.Vector
	FovDeg float64
	Aspect float64
	Near   float64
	Far    float64

	// Focus is the ID of the record the camera is tracking, if HasFocus is set.
	Focus    uint64
	HasFocus bool

	frustum *Frustum
}

// NewCamera returns a camera at pos looking along dir with the default projection.
func NewCamera(pos, dir, up r3.Vector) (*Camera, error) {
	cam := &Camera{
		Pos:    pos,
		Dir:    dir,
		Up:     up,
		FovDeg: DefaultFovDeg,
		Aspect: 16.0 / 9.0,
		Near:   DefaultNear,
		Far:    DefaultFar,
	}
	if err := cam.Validate(); err != nil {
		return nil, err
	}
	return cam, nil
}

// Validate checks that the camera describes a usable view volume.
func (c *Camera) Validate() error {
	if c.Dir.Norm() == 0 {
		return errors.New("camera direction must be non-zero")
	}
	if c.Up.Norm() == 0 || c.Dir.Cross(c.Up).Norm() == 0 {
		return errors.New("camera up vector must be non-zero and not parallel to the direction")
	}
	if c.FovDeg <= 0 || c.FovDeg >= 180 {
		return errors.Errorf("invalid field of view %.2f", c.FovDeg)
	}
	if c.Near <= 0 || c.Far <= c.Near {
		return errors.Errorf("invalid clip planes near=%v far=%v", c.Near, c.Far)
	}
	if c.Aspect <= 0 {
		return errors.Errorf("invalid aspect ratio %v", c.Aspect)
	}
	for _, v := range []float64{c.Pos.X, c.Pos.Y, c.Pos.Z} {
		if !utils.IsFinite(v) {
			return errors.New("camera position must be finite")
		}
	}
	return nil
}

// FovFactor scales angular LOD thresholds with the field of view.
func (c *Camera) FovFactor() float64 {
	return c.FovDeg / referenceFovDeg
}

// MoveTo changes the camera pose. The frustum is recomputed on next use.
func (c *Camera) MoveTo(pos, dir r3.Vector) {
	c.Pos = pos
	c.Dir = dir
	c.frustum = nil
}

// View returns the view matrix. The view is built relative to the camera position so large world
// coordinates keep their precision.
func (c *Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(mgl64.Vec3{}, toVec3(c.Dir), toVec3(c.Up))
}

// Projection returns the perspective projection matrix.
func (c *Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(utils.DegToRad(c.FovDeg), c.Aspect, c.Near, c.Far)
}

// Frustum returns the camera view volume in world coordinates.
func (c *Camera) Frustum() *Frustum {
	if c.frustum != nil {
		return c.frustum
	}
	local := NewFrustum(c.Projection().Mul4(c.View()))
	// Shift the camera-relative planes back to world space.
	for i, pl := range local.Planes {
		local.Planes[i].D = pl.D - pl.Normal.Dot(c.Pos)
	}
	c.frustum = local
	return c.frustum
}

// DistanceSq returns the squared distance from the camera to p.
func (c *Camera) DistanceSq(p r3.Vector) float64 {
	d := p.Sub(c.Pos)
	return d.Dot(d)
}

// AngularSize returns the apparent angular radius of a sphere, scaled by the fov factor.
func (c *Camera) AngularSize(center r3.Vector, radius float64) float64 {
	return ViewAngle(c.Pos, center, radius, c.FovFactor())
}

func toVec3(v r3.Vector) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func fromVec3(v mgl64.Vec3) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
