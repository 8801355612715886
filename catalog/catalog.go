// Package catalog generates synthetic star catalogs for building and exercising octrees.
package catalog

import (
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"go.starlod.dev/starlod/pointcloud"
)

// Shape is the spatial distribution of a generated catalog.
type Shape string

// Supported shapes.
const (
	ShapeUniform Shape = "uniform"
	ShapeCluster Shape = "cluster"
)

// Defaults for generated magnitudes, roughly those of nearby main sequence stars.
const (
	DefaultMagMean  = 4.8
	DefaultMagSigma = 2.5
)

// Spec describes a synthetic catalog.
type Spec struct {
	Count int   `json:"count"`
	Shape Shape `json:"shape"`
	// HalfSize is the half side of the cube for uniform catalogs.
	HalfSize float64 `json:"half_size"`
	// Center and Sigma describe a gaussian cluster.
	Center r3.Vector `json:"center"`
	Sigma  float64   `json:"sigma"`

	MagMean  float64 `json:"mag_mean"`
	MagSigma float64 `json:"mag_sigma"`
	// ProperMotion is the standard deviation of each velocity component in world units per
	// day. Zero generates stationary records.
	ProperMotion float64 `json:"proper_motion"`
	Epoch        float64 `json:"epoch"`

	FirstID uint64 `json:"first_id"`
	Seed    uint64 `json:"seed"`
}

// Validate checks the spec describes a catalog that can be generated.
func (s Spec) Validate() error {
	if s.Count < 0 {
		return errors.Errorf("count must not be negative, got %d", s.Count)
	}
	switch s.Shape {
	case ShapeUniform, "":
		if s.HalfSize <= 0 {
			return errors.New("uniform catalogs need a positive half_size")
		}
	case ShapeCluster:
		if s.Sigma <= 0 {
			return errors.New("cluster catalogs need a positive sigma")
		}
	default:
		return errors.Errorf("unknown catalog shape %q", s.Shape)
	}
	if s.MagSigma < 0 || s.ProperMotion < 0 {
		return errors.New("mag_sigma and proper_motion must not be negative")
	}
	return nil
}

// Generate returns the records described by spec. The same spec always yields the same records.
func Generate(spec Spec) (pointcloud.Records, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.MagMean == 0 && spec.MagSigma == 0 {
		spec.MagMean = DefaultMagMean
		spec.MagSigma = DefaultMagSigma
	}

	src := rand.NewPCG(spec.Seed, spec.Seed^0x9e3779b97f4a7c15)
	var x, y, z distuv.Rander
	switch spec.Shape {
	case ShapeCluster:
		x = distuv.Normal{Mu: spec.Center.X, Sigma: spec.Sigma, Src: src}
		y = distuv.Normal{Mu: spec.Center.Y, Sigma: spec.Sigma, Src: src}
		z = distuv.Normal{Mu: spec.Center.Z, Sigma: spec.Sigma, Src: src}
	default:
		u := distuv.Uniform{Min: -spec.HalfSize, Max: spec.HalfSize, Src: src}
		x, y, z = u, u, u
	}
	mag := distuv.Normal{Mu: spec.MagMean, Sigma: spec.MagSigma, Src: src}
	var vel distuv.Rander
	if spec.ProperMotion > 0 {
		vel = distuv.Normal{Mu: 0, Sigma: spec.ProperMotion, Src: src}
	}

	out := make(pointcloud.Records, spec.Count)
	for i := range out {
		pos := r3.Vector{X: x.Rand(), Y: y.Rand(), Z: z.Rand()}
		if spec.Shape != ShapeCluster {
			pos = pos.Add(spec.Center)
		}
		rec := pointcloud.NewRecord(spec.FirstID+uint64(i), pos, mag.Rand())
		rec.Epoch = spec.Epoch
		if vel != nil {
			rec.Vel = r3.Vector{X: vel.Rand(), Y: vel.Rand(), Z: vel.Rand()}
			rec.HasVel = true
		}
		out[i] = rec
	}
	return out, nil
}
