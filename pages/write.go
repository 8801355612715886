package pages

import (
	"context"

	"golang.org/x/sync/errgroup"

	"go.starlod.dev/starlod/octree"
)

// WriteTree saves the page of every non-empty resident node of tree, using up to parallelism
// concurrent writes.
func WriteTree(ctx context.Context, w Writer, tree *octree.Tree, parallelism int) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallelism, 1))

	written := 0
	for _, n := range tree.Nodes() {
		if n.Status() != octree.Loaded || len(n.Records) == 0 {
			continue
		}
		pageID, recs := n.PageID, n.Records
		written++
		g.Go(func() error {
			return w.Save(ctx, pageID, recs)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return written, nil
}
