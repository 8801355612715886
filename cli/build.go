package cli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.starlod.dev/starlod/catalog"
	"go.starlod.dev/starlod/octree"
	"go.starlod.dev/starlod/pages"
)

// BuildAction is the corresponding action for 'build'.
func BuildAction(c *cli.Context) (err error) {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.close())
	}()
	tree, err := r.buildTree(c.Context)
	if err != nil {
		return err
	}
	if c.Bool(buildFlagValidate) {
		if err := tree.Validate(); err != nil {
			return errors.Wrap(err, "octree failed validation")
		}
	}

	dir := r.cfg.Pages.Dir
	if c.IsSet(buildFlagOut) {
		dir = c.String(buildFlagOut)
	}
	written := 0
	if dir != "" {
		if written, err = r.writePages(c.Context, dir, tree); err != nil {
			return err
		}
	}

	printf(c.App.Writer, "%s", treeSummary(tree, written))
	printf(c.App.Writer, "%s", depthTable(tree))
	if dir != "" {
		size, err := pagesSize(dir)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "wrote %d pages (%s) to %s", written, units.HumanSize(float64(size)), dir)
	}
	return nil
}

// buildTree generates the catalog, rotates it into the configured frame and builds the octree.
func (r *runner) buildTree(ctx context.Context) (*octree.Tree, error) {
	recs, err := catalog.Generate(r.catalogSpec())
	if err != nil {
		return nil, errors.Wrap(err, "error generating catalog")
	}
	recs.Transform(r.cfg.Frame.FrameTransform())

	params, err := r.cfg.Octree.BuildParams()
	if err != nil {
		return nil, err
	}
	return octree.Build(ctx, recs, params, r.logger.Sublogger("octree"))
}

func (r *runner) writePages(ctx context.Context, dir string, tree *octree.Tree) (int, error) {
	store, err := pages.NewFileStore(dir, r.logger.Sublogger("pages"))
	if err != nil {
		return 0, err
	}
	written, err := pages.WriteTree(ctx, store, tree, runtime.NumCPU())
	if err != nil {
		return 0, errors.Wrapf(err, "error writing pages to %s", dir)
	}
	return written, nil
}

// pagesSize returns the total size in bytes of the page files in dir.
func pagesSize(dir string) (int64, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.page"))
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
