package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starlod.log")
	appender, closer := NewFileAppender(path, 0)

	logger := NewBlankLogger("octree")
	logger.AddAppender(appender)
	logger.Infow("evicted octree pages", "pages", 3)
	logger.Debug("walk done")
	test.That(t, logger.Sync(), test.ShouldBeNil)
	test.That(t, closer.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	test.That(t, lines, test.ShouldHaveLength, 2)

	var entry map[string]interface{}
	test.That(t, json.Unmarshal([]byte(lines[0]), &entry), test.ShouldBeNil)
	test.That(t, entry["msg"], test.ShouldEqual, "evicted octree pages")
	test.That(t, entry["level"], test.ShouldEqual, "INFO")
	test.That(t, entry["logger"], test.ShouldEqual, "octree")
	test.That(t, entry["pages"], test.ShouldEqual, 3.0)
}
