package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"

	"go.starlod.dev/starlod/octree"
	"go.starlod.dev/starlod/particles"
)

func treeSummary(tree *octree.Tree, written int) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Nodes", "Depth", "Records", "Dropped", "Discarded", "Root Center", "Root Half Size", "Pages"})
	root := tree.Root
	t.AppendRow(table.Row{
		tree.Len(),
		tree.Depth(),
		root.NumObjectsRec,
		tree.Dropped,
		tree.Discarded,
		fmt.Sprintf("(%.3g, %.3g, %.3g)", root.Center.X, root.Center.Y, root.Center.Z),
		fmt.Sprintf("%.4g", root.HalfSize),
		written,
	})
	return t.Render()
}

// depthTable breaks the tree down by level.
func depthTable(tree *octree.Tree) string {
	type level struct {
		nodes, leaves, records, largest int
	}
	levels := make([]level, tree.Depth()+1)
	for _, n := range tree.Nodes() {
		l := &levels[n.Depth]
		l.nodes++
		if n.IsLeaf() {
			l.leaves++
		}
		l.records += n.NumObjects
		l.largest = max(l.largest, n.NumObjects)
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Depth", "Nodes", "Leaves", "Records", "Largest Node"})
	for depth, l := range levels {
		t.AppendRow(table.Row{depth, l.nodes, l.leaves, l.records, l.largest})
	}
	return t.Render()
}

func newFrameTable() table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Frame", "Camera", "Octants", "Objects", "Rendered", "Resident", "Evicted", "Loads", "Focus"})
	return t
}

func appendFrameRow(t table.Writer, frame octree.FrameStats, camera string) {
	t.AppendRow(table.Row{
		frame.Frame,
		camera,
		frame.OctantsObserved,
		frame.ObjectsObserved,
		frame.Rendered,
		frame.ResidentObjects,
		frame.Evicted,
		frame.LoadsRequested,
		frame.FocusForced,
	})
}

func datasetTable(updaters []*particles.Updater) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Dataset", "Kind", "Records", "K", "Visible", "Triggers", "Published", "Failures"})
	for _, u := range updaters {
		set, counts := u.Set(), u.Stats()
		t.AppendRow(table.Row{
			set.Name,
			set.Kind,
			len(set.Records),
			set.K(),
			len(set.Visible()),
			counts.Triggers,
			counts.Published,
			counts.Failures,
		})
	}
	return t.Render()
}

// frameTimeSummary describes the distribution of frame times, given in milliseconds.
func frameTimeSummary(ms []float64) (string, error) {
	data := stats.Float64Data(ms)
	mean, err := data.Mean()
	if err != nil {
		return "", err
	}
	median, err := data.Median()
	if err != nil {
		return "", err
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return "", err
	}
	slowest, err := data.Max()
	if err != nil {
		return "", err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Frames", "Mean (ms)", "Median (ms)", "P95 (ms)", "Max (ms)"})
	t.AppendRow(table.Row{
		len(ms),
		fmt.Sprintf("%.3f", mean),
		fmt.Sprintf("%.3f", median),
		fmt.Sprintf("%.3f", p95),
		fmt.Sprintf("%.3f", slowest),
	})
	return t.Render(), nil
}
