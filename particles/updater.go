package particles

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.starlod.dev/starlod/executor"
	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/metrics"
	"go.starlod.dev/starlod/spatialmath"
	"go.starlod.dev/starlod/topn"
	"go.starlod.dev/starlod/utils"
)

// Stage is the pipeline state of an Updater.
type Stage int32

// Pipeline stages. A triggered pipeline runs Metadata, Sort1 and Sort2 as separate executor
// tasks and then publishes on the render thread. Busy marks a stage in flight.
const (
	StageMetadata = Stage(iota)
	StageSort1
	StageSort2
	StageBusy
)

func (s Stage) String() string {
	switch s {
	case StageMetadata:
		return "metadata"
	case StageSort1:
		return "sort1"
	case StageSort2:
		return "sort2"
	case StageBusy:
		return "busy"
	}
	return "unknown"
}

// Default trigger thresholds.
const (
	// DefaultDistanceThreshold is how far, in world units, the camera moves before a re-sort.
	DefaultDistanceThreshold = 0.1
	// DefaultWarpThreshold is the time warp beyond which every frame re-sorts.
	DefaultWarpThreshold = 1e12
)

// UpdaterConfig configures an Updater.
type UpdaterConfig struct {
	DistanceThreshold float64
	WarpThreshold     float64
	// Magnitudes is required for star sets.
	Magnitudes *MagnitudeTable
	Clock      clock.Clock
}

// UpdaterStats counts what an Updater has done.
type UpdaterStats struct {
	Triggers  int64
	Published int64
	Failures  int64
}

// Updater keeps one Set's selection current. Update is called every frame on the render thread;
// the scoring and selection run on the executor and the result comes back through the render
// queue.
type Updater struct {
	set    *Set
	exec   *executor.Service
	queue  *executor.RenderQueue
	logger logging.Logger
	cfg    UpdaterConfig
	clock  clock.Clock

	stage *atomic.Int32

	triggers  *atomic.Int64
	published *atomic.Int64
	failures  *atomic.Int64

	// Owned by whichever stage is running.
	buffer     *topn.Buffer
	triggerPos r3.Vector
	triggerJD  float64
}

// NewUpdater returns an Updater for set running its stages on exec.
func NewUpdater(
	set *Set,
	exec *executor.Service,
	queue *executor.RenderQueue,
	cfg UpdaterConfig,
	logger logging.Logger,
) (*Updater, error) {
	if set == nil {
		return nil, errors.New("updater needs a particle set")
	}
	if set.Kind == KindStars && cfg.Magnitudes == nil {
		return nil, errors.Errorf("star set %q needs a magnitude table", set.Name)
	}
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = DefaultDistanceThreshold
	}
	if cfg.WarpThreshold <= 0 {
		cfg.WarpThreshold = DefaultWarpThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Updater{
		set:       set,
		exec:      exec,
		queue:     queue,
		logger:    logger.Sublogger(set.Name),
		cfg:       cfg,
		clock:     cfg.Clock,
		stage:     atomic.NewInt32(int32(StageMetadata)),
		triggers:  atomic.NewInt64(0),
		published: atomic.NewInt64(0),
		failures:  atomic.NewInt64(0),
		buffer:    topn.New(set.K()),
	}, nil
}

// Set returns the updated set.
func (u *Updater) Set() *Set {
	return u.set
}

// Stage returns the current pipeline stage.
func (u *Updater) Stage() Stage {
	return Stage(u.stage.Load())
}

// Stats returns the updater's counters.
func (u *Updater) Stats() UpdaterStats {
	return UpdaterStats{
		Triggers:  u.triggers.Load(),
		Published: u.published.Load(),
		Failures:  u.failures.Load(),
	}
}

// shouldTrigger decides whether a new pipeline starts this frame. It runs on the render thread.
func (u *Updater) shouldTrigger(cam *spatialmath.Camera, t SimTime) bool {
	if u.set.Opacity <= 0 {
		return false
	}
	if !u.set.hasSorted {
		return true
	}
	moved := cam.Pos.Sub(u.set.LastSortCamPos)
	return moved.Dot(moved) > u.cfg.DistanceThreshold*u.cfg.DistanceThreshold || math.Abs(t.Warp) > u.cfg.WarpThreshold
}

// Update schedules the set's next pipeline stage if one is due, and reports whether it did.
// A pipeline starts when the camera has moved past the distance threshold since the last
// published selection, or time is warping faster than the warp threshold. Once started it runs
// to completion as long as the set stays visible. Update never blocks.
func (u *Updater) Update(cam *spatialmath.Camera, t SimTime) bool {
	stage := u.Stage()
	switch stage {
	case StageMetadata:
		if !u.shouldTrigger(cam, t) {
			return false
		}
	case StageSort1, StageSort2:
		if u.set.Opacity <= 0 {
			return false
		}
	case StageBusy:
		return false
	}

	if !u.stage.CompareAndSwap(int32(stage), int32(StageBusy)) {
		return false
	}

	var task executor.Task
	switch stage {
	case StageMetadata:
		pos, jd := cam.Pos, t.JD
		task = func(ctx context.Context) error { return u.runMetadata(pos, jd) }
	case StageSort1:
		task = func(ctx context.Context) error { return u.runSort1() }
	case StageSort2:
		task = func(ctx context.Context) error { return u.runSort2() }
	case StageBusy:
	}

	err := u.exec.SubmitWithHandler(task, func(err error) {
		if err != nil {
			u.fail(stage, err)
		}
	})
	if err != nil {
		u.stage.Store(int32(stage))
		u.logger.Debugw("could not schedule particle set stage", "stage", stage, "error", err)
		return false
	}
	if stage == StageMetadata {
		u.triggers.Inc()
	}
	return true
}

func (u *Updater) fail(stage Stage, err error) {
	u.failures.Inc()
	metrics.PipelineFailures.WithLabelValues(u.set.Name).Inc()
	u.logger.Errorw("particle set pipeline stage failed, restarting from metadata", "stage", stage, "error", err)
	u.stage.Store(int32(StageMetadata))
}

func (u *Updater) observe(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage.String()).Observe(u.clock.Since(start).Seconds())
}

func (u *Updater) runMetadata(camPos r3.Vector, jd float64) error {
	defer u.observe(StageMetadata, u.clock.Now())
	set := u.set
	for i, rec := range set.Records {
		if set.Filter != nil && !set.Filter.Keep(rec) {
			set.Metadata[i] = math.MaxFloat64
			continue
		}
		d := rec.PositionAt(jd).Sub(camPos)
		dist2 := d.Dot(d)
		score := dist2
		if set.Kind == KindStars {
			score = u.cfg.Magnitudes.Proxy(rec.AbsMag, dist2)
		}
		// Records with non-finite data are never selected.
		if !utils.IsFinite(score) {
			score = math.MaxFloat64
		}
		set.Metadata[i] = score
	}
	u.triggerPos = camPos
	u.triggerJD = jd
	u.stage.Store(int32(StageSort1))
	return nil
}

// offer feeds scores[from:to] to the buffer. Filtered records are never offered.
func (u *Updater) offer(from, to int) {
	for i := from; i < to; i++ {
		if score := u.set.Metadata[i]; score != math.MaxFloat64 {
			u.buffer.Add(i, score)
		}
	}
}

func (u *Updater) runSort1() error {
	defer u.observe(StageSort1, u.clock.Now())
	u.buffer.Clear()
	u.offer(0, len(u.set.Metadata)/2)
	u.stage.Store(int32(StageSort2))
	return nil
}

func (u *Updater) runSort2() error {
	defer u.observe(StageSort2, u.clock.Now())
	u.offer(len(u.set.Metadata)/2, len(u.set.Metadata))
	u.buffer.Sort()
	winners := u.buffer.IndexArray()
	pos, jd := u.triggerPos, u.triggerJD

	// The stage stays busy until the selection is installed on the render thread.
	u.queue.Post(func() {
		u.set.publish(winners, pos, jd)
		u.published.Inc()
		metrics.SortsPublished.WithLabelValues(u.set.Name).Inc()
		u.stage.Store(int32(StageMetadata))
	})
	return nil
}
