package pointcloud

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.starlod.dev/starlod/spatialmath"
	"go.starlod.dev/starlod/utils"
)

// Record is a star or particle. Its catalog position never changes after creation; RenderPos
// and Opacity are per-frame render state written by the record's current container.
type Record struct {
	ID     uint64
	Pos    r3.Vector
	Vel    r3.Vector // world units per day, meaningful when HasVel
	HasVel bool
	AbsMag float64
	AppMag float64
	Size   float64
	Color  color.NRGBA
	Names  []string
	Tag    uint32
	// Epoch is the Julian date at which Pos is valid.
	Epoch float64

	RenderPos r3.Vector
	Opacity   float64

	claimed bool
}

// NewRecord returns a record at pos with the given absolute magnitude.
func NewRecord(id uint64, pos r3.Vector, absMag float64) *Record {
	return &Record{
		ID:        id,
		Pos:       pos,
		AbsMag:    absMag,
		Size:      1,
		Color:     color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		RenderPos: pos,
		Opacity:   1,
	}
}

// Validate checks that the record can be placed in a spatial index.
func (r *Record) Validate() error {
	if !utils.IsFinite(r.Pos.X) {
		return errors.Errorf("record %d: x component %v is not finite", r.ID, r.Pos.X)
	}
	if !utils.IsFinite(r.Pos.Y) {
		return errors.Errorf("record %d: y component %v is not finite", r.ID, r.Pos.Y)
	}
	if !utils.IsFinite(r.Pos.Z) {
		return errors.Errorf("record %d: z component %v is not finite", r.ID, r.Pos.Z)
	}
	if !utils.IsFinite(r.AbsMag) {
		return errors.Errorf("record %d: magnitude %v is not finite", r.ID, r.AbsMag)
	}
	if r.HasVel && !(utils.IsFinite(r.Vel.X) && utils.IsFinite(r.Vel.Y) && utils.IsFinite(r.Vel.Z)) {
		return errors.Errorf("record %d: velocity is not finite", r.ID)
	}
	return nil
}

// Name returns the first name of the record, if any.
func (r *Record) Name() string {
	if len(r.Names) == 0 {
		return ""
	}
	return r.Names[0]
}

// PositionAt returns the record position at Julian date jd, propagating proper motion.
func (r *Record) PositionAt(jd float64) r3.Vector {
	if !r.HasVel {
		return r.Pos
	}
	return r.Pos.Add(r.Vel.Mul(jd - r.Epoch))
}

// Propagate updates RenderPos to the position at Julian date jd.
func (r *Record) Propagate(jd float64) {
	r.RenderPos = r.PositionAt(jd)
}

// Claim marks the record as owned by an aggregation. It returns false if the record was already
// claimed.
func (r *Record) Claim() bool {
	if r.claimed {
		return false
	}
	r.claimed = true
	return true
}

// Claimed reports whether the record has been claimed.
func (r *Record) Claimed() bool {
	return r.claimed
}

// ReleaseClaim clears the claim marker so the record can be aggregated again.
func (r *Record) ReleaseClaim() {
	r.claimed = false
}

func (r *Record) String() string {
	return fmt.Sprintf("record %d at %v mag %.2f", r.ID, r.Pos, r.AbsMag)
}

// Records is a list of records.
type Records []*Record

// SortByBrightness orders the records brightest (lowest magnitude) first. Ties are broken by ID
// so the order is reproducible.
func (rs Records) SortByBrightness() {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].AbsMag != rs[j].AbsMag {
			return rs[i].AbsMag < rs[j].AbsMag
		}
		return rs[i].ID < rs[j].ID
	})
}

// MetaData computes the metadata of the records.
func (rs Records) MetaData() MetaData {
	meta := NewMetaData()
	for _, r := range rs {
		meta.Merge(r.Pos)
	}
	return meta
}

// Transform rotates positions and velocities of every record in place.
func (rs Records) Transform(ft spatialmath.FrameTransform) {
	if ft == spatialmath.Identity {
		return
	}
	for _, r := range rs {
		r.Pos = ft.Apply(r.Pos)
		r.RenderPos = r.Pos
		if r.HasVel {
			r.Vel = ft.Apply(r.Vel)
		}
	}
}

// ReleaseClaims clears the claim marker of every record.
func (rs Records) ReleaseClaims() {
	for _, r := range rs {
		r.ReleaseClaim()
	}
}
