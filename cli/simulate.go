package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.starlod.dev/starlod/catalog"
	"go.starlod.dev/starlod/executor"
	"go.starlod.dev/starlod/octree"
	"go.starlod.dev/starlod/pages"
	"go.starlod.dev/starlod/particles"
	"go.starlod.dev/starlod/spatialmath"
	"go.starlod.dev/starlod/utils"
)

const fadeInDuration = time.Second

// SimulateAction is the corresponding action for 'simulate'.
func SimulateAction(c *cli.Context) (err error) {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.close())
	}()
	ctx := c.Context

	from, err := parseVector(c.String(simulateFlagFrom))
	if err != nil {
		return err
	}
	to, err := parseVector(c.String(simulateFlagTo))
	if err != nil {
		return err
	}
	frames := c.Int(simulateFlagFrames)
	if frames <= 0 {
		return errors.Errorf("--%s must be positive", simulateFlagFrames)
	}

	if addr := c.String(simulateFlagMetricsAddr); addr != "" {
		stop := r.serveMetrics(addr)
		defer stop()
	}

	tree, sets, err := r.loadScene(ctx)
	if err != nil {
		return err
	}

	exec := executor.New(r.cfg.Executor.Service(), r.logger.Sublogger("executor"))
	queue := executor.NewRenderQueue()
	defer func() {
		err = multierr.Combine(err, exec.Shutdown())
		queue.Drain()
	}()

	opts := []octree.Option{
		octree.WithFader(octree.NewLinearFader(nil, fadeInDuration)),
	}
	if dir := r.cfg.Pages.Dir; dir != "" {
		loader, closeLoader, err := r.newLoader(ctx, dir, tree, queue)
		if err != nil {
			return err
		}
		defer closeLoader()
		opts = append(opts, octree.WithPager(loader))
	}
	idx, err := octree.NewIndex(tree, r.cfg.LOD.IndexConfig("catalog"), r.logger.Sublogger("octree"), opts...)
	if err != nil {
		return err
	}
	defer idx.Dispose()

	updaters, err := r.newUpdaters(sets, exec, queue)
	if err != nil {
		return err
	}

	dir := to.Sub(from)
	if dir.Norm() == 0 {
		dir = r3.Vector{Z: 1}
	}
	up := r3.Vector{Y: 1}
	if dir.Cross(up).Norm() == 0 {
		up = r3.Vector{X: 1}
	}
	cam, err := spatialmath.NewCamera(from, dir, up)
	if err != nil {
		return err
	}
	if c.IsSet(simulateFlagFocus) {
		cam.Focus, cam.HasFocus = c.Uint64(simulateFlagFocus), true
	}

	every := max(c.Int(simulateFlagEvery), 1)
	warp := c.Float64(simulateFlagWarp)
	frameTable := newFrameTable()
	frameTimes := make([]float64, 0, frames)
	for f := 0; f < frames; f++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		queue.Drain()

		progress := float64(f) / float64(max(frames-1, 1))
		pos := from.Add(to.Sub(from).Mul(progress))
		cam.MoveTo(pos, dir)
		jd := c.Float64(simulateFlagJD) + float64(f)*warp

		start := time.Now()
		if err := idx.FrameUpdate(ctx, jd, cam); err != nil {
			return err
		}
		for _, u := range updaters {
			u.Update(cam, particles.SimTime{JD: jd, Warp: warp})
		}
		frameTimes = append(frameTimes, float64(time.Since(start))/float64(time.Millisecond))

		if f%every == 0 || f == frames-1 {
			appendFrameRow(frameTable, idx.Stats(), fmt.Sprintf("(%.4g, %.4g, %.4g)", pos.X, pos.Y, pos.Z))
		}
	}

	printf(c.App.Writer, "%s", frameTable.Render())
	timing, err := frameTimeSummary(frameTimes)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", timing)
	if len(updaters) > 0 {
		printf(c.App.Writer, "%s", datasetTable(updaters))
	}
	return nil
}

// loadScene builds the octree and every configured particle set concurrently.
func (r *runner) loadScene(ctx context.Context) (*octree.Tree, []*particles.Set, error) {
	var tree *octree.Tree
	sets := make([]*particles.Set, len(r.cfg.Datasets))

	fs := []utils.SimpleFunc{
		func(ctx context.Context) error {
			var err error
			tree, err = r.buildTree(ctx)
			return err
		},
	}
	for i, ds := range r.cfg.Datasets {
		fs = append(fs, func(ctx context.Context) error {
			recs, err := catalog.Generate(ds.Catalog)
			if err != nil {
				return errors.Wrapf(err, "error generating dataset %q", ds.Name)
			}
			recs.Transform(r.cfg.Frame.FrameTransform())
			set, err := particles.NewSet(ds.Name, ds.ParticleKind(), recs, ds.K)
			if err != nil {
				return err
			}
			set.Filter = ds.Filter()
			sets[i] = set
			return nil
		})
	}

	elapsed, err := utils.RunInParallel(ctx, fs)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Infow("scene loaded", "nodes", tree.Len(), "datasets", len(sets), "elapsed", elapsed)
	return tree, sets, nil
}

// newLoader writes the tree's pages to dir and returns a pager that reads them back through a
// decoded-page cache.
func (r *runner) newLoader(
	ctx context.Context,
	dir string,
	tree *octree.Tree,
	queue *executor.RenderQueue,
) (*pages.Loader, func(), error) {
	if _, err := r.writePages(ctx, dir, tree); err != nil {
		return nil, nil, err
	}
	store, err := pages.NewFileStore(dir, r.logger.Sublogger("pages"))
	if err != nil {
		return nil, nil, err
	}
	cached, err := pages.NewCachedStore(store, r.cfg.Pages.CacheMaxRecords)
	if err != nil {
		return nil, nil, err
	}
	loader := pages.NewLoader(cached, queue, r.cfg.Pages.LoadWorkers, r.logger.Sublogger("pages"))
	return loader, func() {
		loader.Close()
		cached.Close()
	}, nil
}

func (r *runner) newUpdaters(
	sets []*particles.Set,
	exec *executor.Service,
	queue *executor.RenderQueue,
) ([]*particles.Updater, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	mags, err := r.cfg.Updater.MagnitudeTable()
	if err != nil {
		return nil, err
	}
	cfg := particles.UpdaterConfig{
		DistanceThreshold: r.cfg.Updater.DistanceThreshold,
		WarpThreshold:     r.cfg.Updater.WarpThreshold,
		Magnitudes:        mags,
	}
	updaters := make([]*particles.Updater, 0, len(sets))
	for _, set := range sets {
		u, err := particles.NewUpdater(set, exec, queue, cfg, r.logger.Sublogger("particles"))
		if err != nil {
			return nil, err
		}
		updaters = append(updaters, u)
	}
	return updaters, nil
}

// serveMetrics serves the default prometheus registry on addr until the returned func is called.
func (r *runner) serveMetrics(addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	goutils.PanicCapturingGo(func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Errorw("metrics server stopped", "addr", addr, "error", err)
		}
	})
	r.logger.Infow("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		goutils.UncheckedError(srv.Shutdown(ctx))
	}
}
