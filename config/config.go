// Package config defines the starlod configuration file: octree construction, level of detail,
// particle-set updaters, the executor, the reference frame and the page store.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.starlod.dev/starlod/catalog"
	"go.starlod.dev/starlod/executor"
	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/octree"
	"go.starlod.dev/starlod/particles"
	"go.starlod.dev/starlod/spatialmath"
	rutils "go.starlod.dev/starlod/utils"
)

// Config is a full starlod configuration.
type Config struct {
	ConfigFilePath string `json:"-"`

	LogLevel string          `json:"log_level,omitempty"`
	Octree   OctreeConfig    `json:"octree"`
	LOD      LODConfig       `json:"lod"`
	Updater  UpdaterConfig   `json:"updater"`
	Executor ExecutorConfig  `json:"executor"`
	Frame    FrameConfig     `json:"frame"`
	Pages    PagesConfig     `json:"pages"`
	Catalog  *catalog.Spec   `json:"catalog,omitempty"`
	Datasets []DatasetConfig `json:"datasets,omitempty"`
}

// Ensure validates every section, filling in defaults, and resolves names to values.
func (c *Config) Ensure(logger logging.Logger) error {
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return utils.NewConfigValidationError("log_level", err)
	}
	if err := c.Octree.Validate("octree"); err != nil {
		return err
	}
	if err := c.LOD.Validate("lod"); err != nil {
		return err
	}
	if err := c.Updater.Validate("updater"); err != nil {
		return err
	}
	if err := c.Executor.Validate("executor"); err != nil {
		return err
	}
	if err := c.Frame.Validate("frame"); err != nil {
		return err
	}
	if err := c.Pages.Validate("pages"); err != nil {
		return err
	}
	if (c.LOD.MaxResidentObjects > 0 || c.LOD.StartUnloaded) && c.Pages.Dir == "" {
		return utils.NewConfigValidationError("lod",
			errors.New("max_resident_objects and start_unloaded need pages.dir to reload evicted pages"))
	}
	if c.Catalog != nil {
		if err := c.Catalog.Validate(); err != nil {
			return utils.NewConfigValidationError("catalog", err)
		}
	}

	seen := make(map[string]struct{}, len(c.Datasets))
	for idx := range c.Datasets {
		path := fmt.Sprintf("%s.%d", "datasets", idx)
		if err := c.Datasets[idx].Validate(path); err != nil {
			return err
		}
		if _, ok := seen[c.Datasets[idx].Name]; ok {
			return utils.NewConfigValidationError(path, errors.Errorf("duplicate dataset name %q", c.Datasets[idx].Name))
		}
		seen[c.Datasets[idx].Name] = struct{}{}
		if c.Datasets[idx].K == 0 {
			c.Datasets[idx].K = c.Updater.K
		}
	}
	if len(c.Datasets) > 0 && !c.Executor.MultiThreading && c.Executor.Workers == 0 {
		logger.Debugw("particle sets will share a single executor worker", "datasets", len(c.Datasets))
	}
	return nil
}

// OctreeConfig configures octree construction.
type OctreeConfig struct {
	MaxPart        int     `json:"max_part,omitempty"`
	MaxDepth       int     `json:"max_depth,omitempty"`
	SunCentre      bool    `json:"sun_centre,omitempty"`
	MaxDistanceCap float64 `json:"max_distance_cap,omitempty"`
	Aggregation    string  `json:"aggregation,omitempty"`
	// Seed drives the random aggregation.
	Seed uint64 `json:"seed,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *OctreeConfig) Validate(path string) error {
	if c.MaxPart < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("max_part must not be negative, got %d", c.MaxPart))
	}
	if c.MaxDepth < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("max_depth must not be negative, got %d", c.MaxDepth))
	}
	if c.MaxDistanceCap < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_distance_cap must not be negative"))
	}
	if _, err := octree.AggregationByName(c.Aggregation, c.Seed); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if c.MaxPart == 0 {
		c.MaxPart = octree.DefaultMaxPart
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = octree.DefaultMaxDepth
	}
	return nil
}

// BuildParams returns the octree build parameters for the config.
func (c OctreeConfig) BuildParams() (octree.BuildParams, error) {
	agg, err := octree.AggregationByName(c.Aggregation, c.Seed)
	if err != nil {
		return octree.BuildParams{}, err
	}
	return octree.BuildParams{
		MaxPart:        c.MaxPart,
		MaxDepth:       c.MaxDepth,
		SunCentre:      c.SunCentre,
		MaxDistanceCap: c.MaxDistanceCap,
		Aggregation:    agg,
	}, nil
}

// LODConfig configures level-of-detail selection. Angles are in degrees.
type LODConfig struct {
	ThresholdDownDeg   float64 `json:"threshold_down_deg,omitempty"`
	ThresholdUpDeg     float64 `json:"threshold_up_deg,omitempty"`
	MaxResidentObjects int     `json:"max_resident_objects,omitempty"`
	StartUnloaded      bool    `json:"start_unloaded,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *LODConfig) Validate(path string) error {
	defaults := octree.DefaultLODParams()
	if c.ThresholdDownDeg == 0 {
		c.ThresholdDownDeg = rutils.RadToDeg(defaults.ThresholdDown)
	}
	if c.ThresholdUpDeg == 0 {
		c.ThresholdUpDeg = rutils.RadToDeg(defaults.ThresholdUp)
	}
	if err := c.Params().Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if c.MaxResidentObjects < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_resident_objects must not be negative"))
	}
	return nil
}

// Params returns the thresholds in radians.
func (c LODConfig) Params() octree.LODParams {
	return octree.LODParams{
		ThresholdDown: rutils.DegToRad(c.ThresholdDownDeg),
		ThresholdUp:   rutils.DegToRad(c.ThresholdUpDeg),
	}
}

// IndexConfig returns the runtime index configuration for the named index.
func (c LODConfig) IndexConfig(name string) octree.IndexConfig {
	return octree.IndexConfig{
		Name:               name,
		LOD:                c.Params(),
		MaxResidentObjects: c.MaxResidentObjects,
		StartUnloaded:      c.StartUnloaded,
	}
}

// UpdaterConfig configures particle-set updaters.
type UpdaterConfig struct {
	// K is the default render budget of a dataset.
	K                 int     `json:"k,omitempty"`
	DistanceThreshold float64 `json:"distance_threshold,omitempty"`
	WarpThreshold     float64 `json:"warp_threshold,omitempty"`
	MinMag            float64 `json:"min_mag,omitempty"`
	MaxMag            float64 `json:"max_mag,omitempty"`
	MagStep           float64 `json:"mag_step,omitempty"`
}

// DefaultK is the render budget used when none is configured.
const DefaultK = 5000

// Validate ensures all parts of the config are valid.
func (c *UpdaterConfig) Validate(path string) error {
	if c.K < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("k must not be negative, got %d", c.K))
	}
	if c.DistanceThreshold < 0 || c.WarpThreshold < 0 {
		return utils.NewConfigValidationError(path, errors.New("thresholds must not be negative"))
	}
	if c.K == 0 {
		c.K = DefaultK
	}
	if c.DistanceThreshold == 0 {
		c.DistanceThreshold = particles.DefaultDistanceThreshold
	}
	if c.WarpThreshold == 0 {
		c.WarpThreshold = particles.DefaultWarpThreshold
	}
	if c.MinMag == 0 && c.MaxMag == 0 {
		c.MinMag, c.MaxMag = particles.DefaultMinMag, particles.DefaultMaxMag
	}
	if c.MagStep == 0 {
		c.MagStep = particles.DefaultMagStep
	}
	if _, err := c.MagnitudeTable(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// MagnitudeTable builds the table for the configured magnitude range.
func (c UpdaterConfig) MagnitudeTable() (*particles.MagnitudeTable, error) {
	return particles.NewMagnitudeTable(c.MinMag, c.MaxMag, c.MagStep)
}

// ExecutorConfig configures the executor service.
type ExecutorConfig struct {
	MultiThreading  bool   `json:"multithreading,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`

	shutdownTimeout time.Duration
}

// Validate ensures all parts of the config are valid.
func (c *ExecutorConfig) Validate(path string) error {
	if c.Workers < 0 || c.QueueSize < 0 {
		return utils.NewConfigValidationError(path, errors.New("workers and queue_size must not be negative"))
	}
	c.shutdownTimeout = executor.DefaultShutdownTimeout
	if c.ShutdownTimeout != "" {
		dur, err := time.ParseDuration(c.ShutdownTimeout)
		if err != nil {
			return utils.NewConfigValidationError(path, errors.Wrap(err, "error validating shutdown_timeout"))
		}
		if dur <= 0 {
			return utils.NewConfigValidationError(path, errors.New("shutdown_timeout must be positive"))
		}
		c.shutdownTimeout = dur
	}
	return nil
}

// Service returns the executor configuration. Validate must have been called.
func (c ExecutorConfig) Service() executor.Config {
	return executor.Config{
		MultiThreading:  c.MultiThreading,
		Workers:         c.Workers,
		QueueSize:       c.QueueSize,
		ShutdownTimeout: c.shutdownTimeout,
	}
}

// FrameConfig selects the reference frame the catalog is rendered in.
type FrameConfig struct {
	Transform string `json:"transform,omitempty"`

	transform spatialmath.FrameTransform
}

// Validate resolves the transform name.
func (c *FrameConfig) Validate(path string) error {
	ft, err := spatialmath.ParseFrameTransform(c.Transform)
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	c.transform = ft
	return nil
}

// FrameTransform returns the resolved transform.
func (c FrameConfig) FrameTransform() spatialmath.FrameTransform {
	return c.transform
}

// PagesConfig configures the page store. An empty Dir keeps every page in memory.
type PagesConfig struct {
	Dir string `json:"dir,omitempty"`
	// CacheMaxRecords bounds the decoded-page cache, in records.
	CacheMaxRecords int64 `json:"cache_max_records,omitempty"`
	LoadWorkers     int   `json:"load_workers,omitempty"`
}

// Page store defaults.
const (
	DefaultCacheMaxRecords = 1 << 20
	DefaultLoadWorkers     = 2
)

// Validate ensures all parts of the config are valid.
func (c *PagesConfig) Validate(path string) error {
	if c.CacheMaxRecords < 0 || c.LoadWorkers < 0 {
		return utils.NewConfigValidationError(path, errors.New("cache_max_records and load_workers must not be negative"))
	}
	if c.CacheMaxRecords == 0 {
		c.CacheMaxRecords = DefaultCacheMaxRecords
	}
	if c.LoadWorkers == 0 {
		c.LoadWorkers = DefaultLoadWorkers
	}
	return nil
}

// DatasetConfig describes one particle set drawn from a synthetic catalog.
type DatasetConfig struct {
	Name    string       `json:"name"`
	Kind    string       `json:"kind,omitempty"`
	K       int          `json:"k,omitempty"`
	TagMask uint32       `json:"tag_mask,omitempty"`
	Catalog catalog.Spec `json:"catalog"`

	kind particles.Kind
}

// Validate ensures all parts of the config are valid.
func (c *DatasetConfig) Validate(path string) error {
	if c.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	switch c.Kind {
	case "", particles.KindParticles.String():
		c.kind = particles.KindParticles
	case particles.KindStars.String():
		c.kind = particles.KindStars
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown dataset kind %q", c.Kind))
	}
	if c.K < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("k must not be negative, got %d", c.K))
	}
	if err := c.Catalog.Validate(); err != nil {
		return utils.NewConfigValidationError(path+".catalog", err)
	}
	return nil
}

// ParticleKind returns the resolved kind.
func (c DatasetConfig) ParticleKind() particles.Kind {
	return c.kind
}

// Filter returns the dataset's record filter, or nil if it keeps everything.
func (c DatasetConfig) Filter() particles.Filter {
	if c.TagMask == 0 {
		return nil
	}
	return particles.TagFilter{Mask: c.TagMask}
}
