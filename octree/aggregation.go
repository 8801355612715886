package octree

import (
	"math/rand/v2"

	"github.com/pkg/errors"

	"go.starlod.dev/starlod/pointcloud"
)

// Aggregation picks the records that represent a node at its level of detail.
//
// Select is given every record routed to node that no shallower node has claimed. It claims and
// returns at most maxPart of them, and reports whether every candidate was claimed. Records that
// are already claimed must never be selected again.
type Aggregation interface {
	Select(node *Node, candidates []*pointcloud.Record, maxPart int) (selected []*pointcloud.Record, consumedAll bool)
}

// Names of the built in aggregations.
const (
	AggregationBrightest = "brightest"
	AggregationRandom    = "random"
)

// AggregationByName returns the built in aggregation with the given name. The empty name selects
// the brightest-first aggregation.
func AggregationByName(name string, seed uint64) (Aggregation, error) {
	switch name {
	case "", AggregationBrightest:
		return BrightestAggregation{}, nil
	case AggregationRandom:
		return RandomAggregation{Seed: seed}, nil
	default:
		return nil, errors.Errorf("unknown aggregation %q", name)
	}
}

// BrightestAggregation represents a node by its brightest records.
type BrightestAggregation struct{}

// Select claims the maxPart brightest unclaimed candidates.
func (BrightestAggregation) Select(node *Node, candidates []*pointcloud.Record, maxPart int) ([]*pointcloud.Record, bool) {
	sorted := make(pointcloud.Records, len(candidates))
	copy(sorted, candidates)
	sorted.SortByBrightness()
	return claimInOrder(sorted, maxPart)
}

// RandomAggregation represents a node by a reproducible random sample of its candidates. It
// suits particle catalogs without meaningful magnitudes.
type RandomAggregation struct {
	Seed uint64
}

// Select claims a random sample of at most maxPart unclaimed candidates. The sample depends only
// on the seed, the node's depth and the candidate order.
func (ra RandomAggregation) Select(node *Node, candidates []*pointcloud.Record, maxPart int) ([]*pointcloud.Record, bool) {
	shuffled := make([]*pointcloud.Record, len(candidates))
	copy(shuffled, candidates)
	r := rand.New(rand.NewPCG(ra.Seed, uint64(node.Depth)))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return claimInOrder(shuffled, maxPart)
}

func claimInOrder(candidates []*pointcloud.Record, maxPart int) ([]*pointcloud.Record, bool) {
	if maxPart < 0 {
		maxPart = 0
	}
	selected := make([]*pointcloud.Record, 0, min(maxPart, len(candidates)))
	left := 0
	for _, rec := range candidates {
		if rec.Claimed() {
			continue
		}
		if len(selected) < maxPart && rec.Claim() {
			selected = append(selected, rec)
			continue
		}
		left++
	}
	return selected, left == 0
}
