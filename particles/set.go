// Package particles keeps the render-visible subset of large point sets current. Each Set has a
// fixed render budget K; its Updater recomputes a relevance score per record on the executor and
// publishes the K best record indices to the render thread.
package particles

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.starlod.dev/starlod/pointcloud"
	"go.starlod.dev/starlod/utils"
)

// Kind selects how a set scores its records.
type Kind uint8

// Set kinds.
const (
	// KindParticles ranks records by squared distance to the camera.
	KindParticles = Kind(iota)
	// KindStars ranks records by a brightness proxy from magnitude and distance.
	KindStars
)

func (k Kind) String() string {
	switch k {
	case KindParticles:
		return "particles"
	case KindStars:
		return "stars"
	}
	return "unknown"
}

// SimTime is the simulation clock state for a frame.
type SimTime struct {
	// JD is the Julian date being rendered.
	JD float64
	// Warp is the ratio of simulated to real time.
	Warp float64
}

// Set is one dataset drawn as points. Records and K are fixed at creation.
//
// Metadata is written only by the set's Updater on the executor. Indices and the last-sort
// fields are written only on the render thread when a selection is published.
type Set struct {
	ID      uuid.UUID
	Name    string
	Kind    Kind
	Records pointcloud.Records
	// Metadata holds one score per record. Lower is more relevant.
	Metadata []float64
	// Indices holds the published selection, best first, padded with -1.
	Indices []int
	Opacity float64
	Filter  Filter

	LastSortCamPos r3.Vector
	LastSortTime   float64
	hasSorted      bool
}

// NewSet returns a set drawing at most k of recs.
func NewSet(name string, kind Kind, recs pointcloud.Records, k int) (*Set, error) {
	if k < 0 {
		return nil, errors.Errorf("render budget must not be negative, got %d", k)
	}
	if len(recs) == 0 {
		return nil, errors.Errorf("particle set %q has no records", name)
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = -1
	}
	return &Set{
		ID:       uuid.New(),
		Name:     name,
		Kind:     kind,
		Records:  recs,
		Metadata: make([]float64, len(recs)),
		Indices:  indices,
		Opacity:  1,
	}, nil
}

// K returns the render budget.
func (s *Set) K() int {
	return len(s.Indices)
}

// Sorted reports whether a selection has been published.
func (s *Set) Sorted() bool {
	return s.hasSorted
}

// Visible returns the records of the published selection, best first. It must be called on the
// render thread.
func (s *Set) Visible() []*pointcloud.Record {
	out := make([]*pointcloud.Record, 0, len(s.Indices))
	for _, i := range s.Indices {
		if i < 0 {
			break
		}
		out = append(out, s.Records[i])
	}
	return out
}

// publish installs a selection. It must run on the render thread.
func (s *Set) publish(winners []int, camPos r3.Vector, jd float64) {
	n := copy(s.Indices, winners)
	for i := n; i < len(s.Indices); i++ {
		s.Indices[i] = -1
	}
	s.LastSortCamPos = camPos
	s.LastSortTime = jd
	s.hasSorted = true
}

// Magnitude table defaults, covering everything from the brightest stars to faint galaxies.
const (
	DefaultMinMag  = -30.0
	DefaultMaxMag  = 30.0
	DefaultMagStep = 0.01
)

// MagnitudeTable precomputes the relative flux of absolute magnitudes so the brightness proxy
// needs no power evaluation per record.
type MagnitudeTable struct {
	MinMag float64
	MaxMag float64
	Step   float64
	table  []float64
}

// NewMagnitudeTable builds a table over [minMag, maxMag] at the given step.
func NewMagnitudeTable(minMag, maxMag, step float64) (*MagnitudeTable, error) {
	if step <= 0 {
		return nil, errors.Errorf("magnitude step must be positive, got %v", step)
	}
	if maxMag <= minMag {
		return nil, errors.Errorf("magnitude range [%v, %v] is empty", minMag, maxMag)
	}
	size := int(math.Ceil((maxMag-minMag)/step)) + 1
	t := &MagnitudeTable{MinMag: minMag, MaxMag: maxMag, Step: step, table: make([]float64, size)}
	for i := range t.table {
		mag := minMag + float64(i)*step
		// Flux relative to the faintest magnitude in the table, so every entry is at least 1.
		t.table[i] = math.Pow(10, -0.4*(mag-maxMag))
	}
	return t, nil
}

// Len returns the number of entries.
func (t *MagnitudeTable) Len() int {
	return len(t.table)
}

// Lookup returns the tabulated flux for mag, or 0 outside the table's range.
func (t *MagnitudeTable) Lookup(mag float64) float64 {
	if mag < t.MinMag || mag > t.MaxMag || math.IsNaN(mag) {
		return 0
	}
	i := int((mag - t.MinMag) / t.Step)
	return t.table[utils.MinInt(utils.MaxInt(i, 0), len(t.table)-1)]
}

// Proxy returns a brightness proxy for a record of absolute magnitude absMag at squared distance
// dist2. Brighter records get lower, more negative, values.
func (t *MagnitudeTable) Proxy(absMag, dist2 float64) float64 {
	const minDist2 = 1e-12
	return -t.Lookup(absMag) / math.Max(dist2, minDist2)
}
