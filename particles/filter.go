package particles

import (
	"go.starlod.dev/starlod/pointcloud"
)

// A Filter decides which records of a set may be selected. Rejected records are scored so they
// are never selected.
type Filter interface {
	Keep(rec *pointcloud.Record) bool
}

// FilterFunc adapts a function to a Filter.
type FilterFunc func(rec *pointcloud.Record) bool

// Keep calls f.
func (f FilterFunc) Keep(rec *pointcloud.Record) bool {
	return f(rec)
}

// TimeWindowFilter keeps records whose epoch lies within [Start, End].
type TimeWindowFilter struct {
	Start float64
	End   float64
}

// Keep implements Filter.
func (f TimeWindowFilter) Keep(rec *pointcloud.Record) bool {
	return rec.Epoch >= f.Start && rec.Epoch <= f.End
}

// TagFilter keeps records sharing at least one tag bit with Mask.
type TagFilter struct {
	Mask uint32
}

// Keep implements Filter.
func (f TagFilter) Keep(rec *pointcloud.Record) bool {
	return rec.Tag&f.Mask != 0
}

// AllFilters keeps records kept by every filter.
type AllFilters []Filter

// Keep implements Filter.
func (fs AllFilters) Keep(rec *pointcloud.Record) bool {
	for _, f := range fs {
		if !f.Keep(rec) {
			return false
		}
	}
	return true
}
