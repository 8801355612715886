// Package cli contains the starlod command line: building octrees from synthetic catalogs and
// simulating camera flights over them.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.starlod.dev/starlod/catalog"
	"go.starlod.dev/starlod/config"
	"go.starlod.dev/starlod/logging"
)

const (
	// Flags.
	generalFlagConfig  = "config"
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	catalogFlagCount    = "count"
	catalogFlagHalfSize = "half-size"
	catalogFlagSeed     = "seed"

	buildFlagOut      = "out"
	buildFlagValidate = "validate"

	simulateFlagFrames      = "frames"
	simulateFlagFrom        = "from"
	simulateFlagTo          = "to"
	simulateFlagFocus       = "focus"
	simulateFlagEvery       = "every"
	simulateFlagJD          = "jd"
	simulateFlagWarp        = "warp"
	simulateFlagMetricsAddr = "metrics-addr"

	defaultCatalogCount    = 10000
	defaultCatalogHalfSize = 1000.0
)

func catalogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  catalogFlagCount,
			Usage: "number of records to generate",
			Value: defaultCatalogCount,
		},
		&cli.Float64Flag{
			Name:  catalogFlagHalfSize,
			Usage: "half side of the generated catalog cube when the config has no catalog section",
			Value: defaultCatalogHalfSize,
		},
		&cli.Uint64Flag{
			Name:  catalogFlagSeed,
			Usage: "seed for catalog generation",
			Value: 1,
		},
	}
}

// NewApp returns the starlod CLI writing command output to out.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "starlod",
		Usage:           "build and exercise level-of-detail octrees over point catalogs",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  generalFlagLogFile,
				Usage: "also write JSON logs to `FILE`, rotated as it grows",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "build an octree from a catalog and optionally write its pages",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  buildFlagOut,
						Usage: "write one page file per node into `DIR`, overriding pages.dir",
					},
					&cli.BoolFlag{
						Name:  buildFlagValidate,
						Usage: "check the structural invariants of the built tree",
					},
				}, catalogFlags()...),
				Action: BuildAction,
			},
			{
				Name:  "simulate",
				Usage: "fly a camera through an octree and the configured particle sets",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  simulateFlagFrames,
						Usage: "number of frames to render",
						Value: 120,
					},
					&cli.StringFlag{
						Name:  simulateFlagFrom,
						Usage: "camera start position as `X,Y,Z`",
						Value: "0,0,-3000",
					},
					&cli.StringFlag{
						Name:  simulateFlagTo,
						Usage: "camera end position as `X,Y,Z`",
						Value: "0,0,0",
					},
					&cli.Uint64Flag{
						Name:  simulateFlagFocus,
						Usage: "ID of a record the camera tracks",
					},
					&cli.IntFlag{
						Name:  simulateFlagEvery,
						Usage: "print statistics every N frames",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  simulateFlagJD,
						Usage: "Julian date of the first frame",
						Value: 2451545.0,
					},
					&cli.Float64Flag{
						Name:  simulateFlagWarp,
						Usage: "simulated days per frame",
					},
					&cli.StringFlag{
						Name:  simulateFlagMetricsAddr,
						Usage: "serve prometheus metrics on `ADDR` while simulating",
					},
				}, catalogFlags()...),
				Action: SimulateAction,
			},
		},
	}
}

// runner holds what every command needs: the loaded config and a logger.
type runner struct {
	c       *cli.Context
	cfg     *config.Config
	logger  logging.Logger
	logFile io.Closer
}

func newRunner(c *cli.Context) (*runner, error) {
	logger := logging.NewLogger("starlod")
	if c.Bool(generalFlagDebug) {
		logger = logging.NewDebugLogger("starlod")
	}
	var logFile io.Closer
	if path := c.String(generalFlagLogFile); path != "" {
		var appender logging.Appender
		appender, logFile = logging.NewFileAppender(path, logging.DefaultLogFileMaxSizeMB)
		logger.AddAppender(appender)
	}

	var cfg *config.Config
	var err error
	if path := c.String(generalFlagConfig); path != "" {
		cfg, err = config.Read(path, logger)
	} else {
		cfg, err = config.Default(logger)
	}
	r := &runner{c: c, cfg: cfg, logger: logger, logFile: logFile}
	if err != nil {
		return nil, multierr.Combine(err, r.close())
	}
	if !c.Bool(generalFlagDebug) {
		level, err := logging.LevelFromString(cfg.LogLevel)
		if err != nil {
			return nil, multierr.Combine(err, r.close())
		}
		logger.SetLevel(level)
	}
	logging.ReplaceGlobal(logger)
	return r, nil
}

// close releases the log file, if any.
func (r *runner) close() error {
	if r.logFile == nil {
		return nil
	}
	return r.logFile.Close()
}

// catalogSpec returns the configured catalog, or a uniform cube described by the command's flags.
// Explicit count and seed flags override the config.
func (r *runner) catalogSpec() catalog.Spec {
	if r.cfg.Catalog != nil {
		spec := *r.cfg.Catalog
		if r.c.IsSet(catalogFlagCount) {
			spec.Count = r.c.Int(catalogFlagCount)
		}
		if r.c.IsSet(catalogFlagSeed) {
			spec.Seed = r.c.Uint64(catalogFlagSeed)
		}
		return spec
	}
	return catalog.Spec{
		Count:    r.c.Int(catalogFlagCount),
		Shape:    catalog.ShapeUniform,
		HalfSize: r.c.Float64(catalogFlagHalfSize),
		Seed:     r.c.Uint64(catalogFlagSeed),
	}
}

// parseVector parses "x,y,z".
func parseVector(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, errors.Errorf("expected X,Y,Z but got %q", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "error parsing component %d of %q", i, s)
		}
		xyz[i] = v
	}
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	_, err := fmt.Fprintf(w, format+"\n", a...)
	goutils.UncheckedError(err)
}
