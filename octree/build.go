package octree

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/pointcloud"
	"go.starlod.dev/starlod/spatialmath"
	"go.starlod.dev/starlod/utils"
)

// BuildParams configures Build.
type BuildParams struct {
	// MaxPart is the number of records a node may hold directly.
	MaxPart int
	// MaxDepth stops subdivision. A node at this depth keeps every record routed to it.
	MaxDepth int
	// SunCentre centres the root on the origin instead of on the catalog's extent.
	SunCentre bool
	// MaxDistanceCap discards records further than this from the origin. Zero disables it.
	MaxDistanceCap float64
	// Aggregation picks each node's representatives. Defaults to BrightestAggregation.
	Aggregation Aggregation
}

func (p *BuildParams) setDefaults() {
	if p.MaxPart <= 0 {
		p.MaxPart = DefaultMaxPart
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.Aggregation == nil {
		p.Aggregation = BrightestAggregation{}
	}
}

// catalogBounds is the result of the measuring pass over the catalog.
type catalogBounds struct {
	meta      pointcloud.MetaData
	kept      []*pointcloud.Record
	furthest  *pointcloud.Record
	discarded int
}

// Build constructs an octree over catalog. Invalid records are dropped with a warning and records
// beyond params.MaxDistanceCap are discarded. Records are claimed by the nodes that hold them, so
// a catalog can only be built once unless its claims are released.
func Build(ctx context.Context, catalog []*pointcloud.Record, params BuildParams, logger logging.Logger) (*Tree, error) {
	params.setDefaults()

	valid := make([]*pointcloud.Record, 0, len(catalog))
	dropped := 0
	for _, rec := range catalog {
		if rec == nil {
			dropped++
			continue
		}
		if err := rec.Validate(); err != nil {
			logger.Warnw("dropping invalid record", "error", err)
			dropped++
			continue
		}
		valid = append(valid, rec)
	}

	bounds, err := measure(ctx, valid, params.MaxDistanceCap)
	if err != nil {
		return nil, err
	}
	if bounds.discarded > 0 {
		logger.Infow("discarded records beyond distance cap", "count", bounds.discarded, "cap", params.MaxDistanceCap)
	}

	center, halfSize := rootCube(bounds, params.SunCentre)
	root := NewNode(center, halfSize, 0)
	b := &builder{params: params, logger: logger}
	if err := b.build(ctx, root, bounds.kept); err != nil {
		return nil, err
	}

	tree := newTree(root, params)
	tree.Dropped = dropped
	tree.Discarded = bounds.discarded
	logger.Debugw("octree built",
		"records", root.NumObjectsRec, "nodes", tree.Len(), "depth", tree.Depth(), "dropped", dropped)
	return tree, nil
}

// measure makes one parallel pass over recs, discarding anything beyond distanceCap and
// collecting bounds and the record furthest from the origin.
func measure(ctx context.Context, recs []*pointcloud.Record, distanceCap float64) (catalogBounds, error) {
	capSq := math.Inf(1)
	if distanceCap > 0 {
		capSq = distanceCap * distanceCap
	}

	var mu sync.Mutex
	var groups []catalogBounds
	err := utils.GroupWorkParallel(
		ctx,
		len(recs),
		func(numGroups int) {
			groups = make([]catalogBounds, numGroups)
		},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			local := catalogBounds{meta: pointcloud.NewMetaData(), kept: make([]*pointcloud.Record, 0, groupSize)}
			return func(memberNum, workNum int) {
					rec := recs[workNum]
					distSq := rec.Pos.Dot(rec.Pos)
					if distSq > capSq {
						local.discarded++
						return
					}
					if local.furthest == nil || distSq > local.meta.MaxDistSq {
						local.furthest = rec
					}
					local.meta.Merge(rec.Pos)
					local.kept = append(local.kept, rec)
				}, func() {
					mu.Lock()
					groups[groupNum] = local
					mu.Unlock()
				}
		},
	)
	if err != nil {
		return catalogBounds{}, err
	}

	// Groups are merged in order so the kept slice preserves catalog order.
	out := catalogBounds{meta: pointcloud.NewMetaData(), kept: make([]*pointcloud.Record, 0, len(recs))}
	for _, g := range groups {
		if g.furthest != nil && (out.furthest == nil || g.meta.MaxDistSq > out.meta.MaxDistSq) {
			out.furthest = g.furthest
		}
		out.meta.Combine(g.meta)
		out.kept = append(out.kept, g.kept...)
		out.discarded += g.discarded
	}
	return out, nil
}

// rootCube returns the root node's cube. With sunCentre it is centred on the origin and reaches
// the largest coordinate magnitude. Otherwise it is centred on the box spanned by the furthest
// record and whichever other record maximises that box's volume, sized by the box's longest
// side. That box is an approximation found in a single pass, so the cube is then grown about its
// centre to reach any record left outside.
func rootCube(bounds catalogBounds, sunCentre bool) (r3.Vector, float64) {
	if len(bounds.kept) == 0 {
		return r3.Vector{}, 1
	}

	var center r3.Vector
	var halfSize float64
	if sunCentre {
		halfSize = bounds.meta.MaxAbsCoordinate()
	} else {
		far := bounds.furthest.Pos
		best := spatialmath.NewAABBSpanning(far, far)
		bestVolume := -1.0
		for _, rec := range bounds.kept {
			if rec == bounds.furthest {
				continue
			}
			box := spatialmath.NewAABBSpanning(far, rec.Pos)
			if v := box.Volume(); v > bestVolume {
				best = box
				bestVolume = v
			}
		}
		center = best.Center()
		halfSize = best.LongestSide() / 2
	}

	for _, rec := range bounds.kept {
		d := rec.Pos.Sub(center)
		halfSize = math.Max(halfSize, math.Max(math.Abs(d.X), math.Max(math.Abs(d.Y), math.Abs(d.Z))))
	}
	if halfSize == 0 {
		halfSize = 1
	}
	return center, halfSize
}

type builder struct {
	params BuildParams
	logger logging.Logger
}

func (b *builder) build(ctx context.Context, node *Node, candidates []*pointcloud.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node.NumObjectsRec = len(candidates)

	if node.Depth >= b.params.MaxDepth {
		keep := lo.Filter(candidates, func(rec *pointcloud.Record, _ int) bool { return rec.Claim() })
		if len(keep) > b.params.MaxPart {
			b.logger.Warnw("maximum depth reached, node holds more than max part",
				"depth", node.Depth, "records", len(keep), "max_part", b.params.MaxPart)
		}
		node.SetRecords(keep)
		node.NumObjects = len(keep)
		return nil
	}

	selected, consumedAll := b.params.Aggregation.Select(node, candidates, b.params.MaxPart)
	if len(selected) > b.params.MaxPart {
		return errors.Errorf("aggregation selected %d records for a node of capacity %d", len(selected), b.params.MaxPart)
	}
	node.SetRecords(selected)
	node.NumObjects = len(selected)
	if consumedAll {
		return nil
	}

	leftovers := lo.Reject(candidates, func(rec *pointcloud.Record, _ int) bool { return rec.Claimed() })
	if len(leftovers) == 0 {
		return nil
	}
	var buckets [8][]*pointcloud.Record
	for _, rec := range leftovers {
		i := node.Octant(rec.Pos)
		buckets[i] = append(buckets[i], rec)
	}
	// All eight children are created so the subdivision stays regular. Empty ones are leaves.
	for i := range node.Children {
		child := NewNode(octantCenter(node.Center, node.HalfSize, i), node.HalfSize/2, node.Depth+1)
		node.Children[i] = child
		if err := b.build(ctx, child, buckets[i]); err != nil {
			return err
		}
	}
	return nil
}
