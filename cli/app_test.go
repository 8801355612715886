package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	err := app.RunContext(context.Background(), append([]string{"starlod"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "starlod.json")
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)
	return path
}

func TestParseVector(t *testing.T) {
	v, err := parseVector("1, -2.5,3e2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldResemble, r3.Vector{X: 1, Y: -2.5, Z: 300})

	_, err = parseVector("1,2")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = parseVector("1,two,3")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "component 1")
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := runApp(t, "build", "--count", "3000", "--seed", "4", "--validate", "--out", dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "LARGEST NODE")

	files, err := filepath.Glob(filepath.Join(dir, "*.page"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(files), test.ShouldBeGreaterThan, 0)
	test.That(t, out, test.ShouldContainSubstring, fmt.Sprintf("wrote %d pages (", len(files)))
	test.That(t, out, test.ShouldContainSubstring, dir)
}

func TestBuildCommandUsesConfig(t *testing.T) {
	path := writeConfig(t, `{
		"log_level": "error",
		"octree": {"max_part": 50, "aggregation": "random"},
		"catalog": {"count": 500, "shape": "cluster", "sigma": 10, "seed": 3}
	}`)
	out, err := runApp(t, "--config", path, "build", "--validate")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "500")
	test.That(t, out, test.ShouldNotContainSubstring, "wrote")

	_, err = runApp(t, "--config", writeConfig(t, `{"octree": {"aggregation": "faintest"}}`), "build")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "faintest")
}

func TestSimulateCommand(t *testing.T) {
	pagesDir := t.TempDir()
	path := writeConfig(t, fmt.Sprintf(`{
		"log_level": "error",
		"octree": {"max_part": 100},
		"lod": {"max_resident_objects": 1000, "start_unloaded": true},
		"executor": {"workers": 2},
		"pages": {"dir": %q},
		"catalog": {"count": 5000, "half_size": 500, "seed": 9},
		"datasets": [
			{"name": "gas", "k": 20, "catalog": {"count": 2000, "shape": "cluster", "sigma": 50}},
			{"name": "bright", "kind": "stars", "k": 10, "catalog": {"count": 500, "half_size": 100}}
		]
	}`, pagesDir))

	out, err := runApp(t, "--config", path, "simulate",
		"--frames", "40", "--every", "5", "--from", "0,0,-2000", "--to", "0,0,-10", "--focus", "3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "OCTANTS")
	test.That(t, out, test.ShouldContainSubstring, "gas")
	test.That(t, out, test.ShouldContainSubstring, "bright")
	test.That(t, out, test.ShouldContainSubstring, "stars")
	test.That(t, out, test.ShouldContainSubstring, "P95 (MS)")

	files, err := filepath.Glob(filepath.Join(pagesDir, "*.page"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(files), test.ShouldBeGreaterThan, 0)
}

func TestSimulateCommandErrors(t *testing.T) {
	_, err := runApp(t, "simulate", "--count", "100", "--frames", "0")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "simulate", "--count", "100", "--from", "nowhere")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "X,Y,Z")
}

func TestFrameTimeSummary(t *testing.T) {
	out, err := frameTimeSummary([]float64{1, 2, 3, 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "2.500")
	test.That(t, out, test.ShouldContainSubstring, "4.000")

	_, err = frameTimeSummary(nil)
	test.That(t, err, test.ShouldNotBeNil)
}
