package spatialmath

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.starlod.dev/starlod/utils"
)

// FrameTransform identifies a fixed rotation between celestial reference frames. Transforms are
// resolved from their names once, when configuration is loaded.
type FrameTransform int

// Supported frame transforms.
const (
	Identity FrameTransform = iota
	EquatorialToEcliptic
	EclipticToEquatorial
	EquatorialToGalactic
	GalacticToEquatorial
)

// obliquityDeg is the J2000 obliquity of the ecliptic.
const obliquityDeg = 23.4392911

var frameTransformNames = map[string]FrameTransform{
	"identity": Identity,
	"eq2ecl":   EquatorialToEcliptic,
	"ecl2eq":   EclipticToEquatorial,
	"eq2gal":   EquatorialToGalactic,
	"gal2eq":   GalacticToEquatorial,
}

var frameTransformMatrices = func() map[FrameTransform]mgl64.Mat3 {
	eps := utils.DegToRad(obliquityDeg)
	eqToEcl := mgl64.HomogRotate3DX(-eps).Mat3()
	eqToGal := mgl64.Mat3FromRows(
		mgl64.Vec3{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
		mgl64.Vec3{0.4941094278755837, -0.4448296299600112, 0.7469822444972189},
		mgl64.Vec3{-0.8676661490190047, -0.1980763734312015, 0.4559837761750669},
	)
	return map[FrameTransform]mgl64.Mat3{
		Identity:             mgl64.Ident3(),
		EquatorialToEcliptic: eqToEcl,
		EclipticToEquatorial: eqToEcl.Transpose(),
		EquatorialToGalactic: eqToGal,
		GalacticToEquatorial: eqToGal.Transpose(),
	}
}()

// ParseFrameTransform resolves a transform by name. The empty name is the identity.
func ParseFrameTransform(name string) (FrameTransform, error) {
	if name == "" {
		return Identity, nil
	}
	ft, ok := frameTransformNames[strings.ToLower(name)]
	if !ok {
		return Identity, errors.Errorf("unknown frame transform %q", name)
	}
	return ft, nil
}

// String returns the configuration name of the transform.
func (ft FrameTransform) String() string {
	for name, v := range frameTransformNames {
		if v == ft {
			return name
		}
	}
	return "unknown"
}

// Matrix returns the rotation matrix of the transform.
func (ft FrameTransform) Matrix() mgl64.Mat3 {
	m, ok := frameTransformMatrices[ft]
	if !ok {
		return mgl64.Ident3()
	}
	return m
}

// Apply rotates v.
func (ft FrameTransform) Apply(v r3.Vector) r3.Vector {
	if ft == Identity {
		return v
	}
	return fromVec3(ft.Matrix().Mul3x1(toVec3(v)))
}
