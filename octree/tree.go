package octree

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.starlod.dev/starlod/pointcloud"
)

// Tree is a built octree. Nodes are numbered by PageID in pre-order from the root.
type Tree struct {
	Root   *Node
	Params BuildParams

	// Dropped counts invalid catalog records, Discarded those beyond the distance cap.
	Dropped   int
	Discarded int

	nodes []*Node
}

func newTree(root *Node, params BuildParams) *Tree {
	t := &Tree{Root: root, Params: params}
	root.Walk(func(n *Node) bool {
		n.PageID = uint64(len(t.nodes))
		t.nodes = append(t.nodes, n)
		return true
	})
	return t
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given page ID, or nil.
func (t *Tree) Node(pageID uint64) *Node {
	if pageID >= uint64(len(t.nodes)) {
		return nil
	}
	return t.nodes[pageID]
}

// Nodes returns every node in page order.
func (t *Tree) Nodes() []*Node {
	return t.nodes
}

// Depth returns the depth of the deepest node.
func (t *Tree) Depth() int {
	depth := 0
	for _, n := range t.nodes {
		depth = max(depth, n.Depth)
	}
	return depth
}

// Records returns every resident record in page order.
func (t *Tree) Records() pointcloud.Records {
	out := make(pointcloud.Records, 0, t.Root.NumObjectsRec)
	for _, n := range t.nodes {
		out = append(out, n.Records...)
	}
	return out
}

// Validate checks the structural invariants of the tree: every node holds at most MaxPart
// records (except at MaxDepth), every record lies inside its node, no record is held twice and
// each subtree's count equals its node's count plus its children's. Record checks are skipped
// for nodes that are not resident.
func (t *Tree) Validate() error {
	var err error
	seen := make(map[*pointcloud.Record]uint64, t.Root.NumObjectsRec)
	for _, n := range t.nodes {
		if len(n.Records) > t.Params.MaxPart && n.Depth < t.Params.MaxDepth {
			err = multierr.Append(err, errors.Errorf("node %d holds %d records, more than %d", n.PageID, len(n.Records), t.Params.MaxPart))
		}
		sum := n.NumObjects
		for _, c := range n.Children {
			if c != nil {
				sum += c.NumObjectsRec
			}
		}
		if sum != n.NumObjectsRec {
			err = multierr.Append(err, errors.Errorf("node %d subtree count %d does not match contents %d", n.PageID, n.NumObjectsRec, sum))
		}
		if n.status != Loaded {
			continue
		}
		if len(n.Records) != n.NumObjects {
			err = multierr.Append(err, errors.Errorf("node %d holds %d records, built with %d", n.PageID, len(n.Records), n.NumObjects))
		}
		for _, rec := range n.Records {
			if !n.Contains(rec.Pos) {
				err = multierr.Append(err, errors.Errorf("node %d holds record %d outside its bounds", n.PageID, rec.ID))
			}
			if other, ok := seen[rec]; ok {
				err = multierr.Append(err, errors.Errorf("record %d held by nodes %d and %d", rec.ID, other, n.PageID))
			}
			seen[rec] = n.PageID
		}
	}
	return err
}
