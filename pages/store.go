// Package pages stores octree node records outside of memory, one page per node, and loads them
// back in the background when the octree index asks for them.
package pages

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/pointcloud"
)

// ErrPageNotFound is returned when loading a page that was never saved.
var ErrPageNotFound = errors.New("page not found")

// Store loads and evicts pages by ID.
type Store interface {
	Load(ctx context.Context, pageID uint64) (pointcloud.Records, error)
	Evict(pageID uint64)
}

// Writer saves pages.
type Writer interface {
	Save(ctx context.Context, pageID uint64, recs pointcloud.Records) error
}

// FileStore keeps one framed, checksummed file per page in a directory.
type FileStore struct {
	dir    string
	logger logging.Logger
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string, logger logging.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("page directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating page directory %q", dir)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the directory holding the pages.
func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) path(pageID uint64) string {
	return filepath.Join(fs.dir, fmt.Sprintf("%016x.page", pageID))
}

// Save writes the page atomically: it is written to a temporary file that is then renamed.
func (fs *FileStore) Save(ctx context.Context, pageID uint64, recs pointcloud.Records) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var payload bytes.Buffer
	if err := pointcloud.WriteRecords(&payload, recs); err != nil {
		return errors.Wrapf(err, "encoding page %d", pageID)
	}

	tmp, err := os.CreateTemp(fs.dir, "page-*.tmp")
	if err != nil {
		return err
	}
	if err := writeFrame(tmp, payload.Bytes()); err != nil {
		goutils.UncheckedError(tmp.Close())
		goutils.UncheckedError(os.Remove(tmp.Name()))
		return errors.Wrapf(err, "writing page %d", pageID)
	}
	if err := tmp.Close(); err != nil {
		goutils.UncheckedError(os.Remove(tmp.Name()))
		return err
	}
	return os.Rename(tmp.Name(), fs.path(pageID))
}

// Load reads and decodes a page.
func (fs *FileStore) Load(ctx context.Context, pageID uint64) (pointcloud.Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	//nolint:gosec
	f, err := os.Open(fs.path(pageID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrPageNotFound, "page %d", pageID)
		}
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			fs.logger.Debugw("closing page file", "page", pageID, "error", err)
		}
	}()

	payload, err := readFrame(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading page %d", pageID)
	}
	recs, err := pointcloud.ReadRecords(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding page %d", pageID)
	}
	return recs, nil
}

// Evict is a no-op: pages stay on disk.
func (fs *FileStore) Evict(pageID uint64) {}

// CachedStore keeps recently loaded pages decoded in memory in front of another Store. Evicting
// a page from an index does not drop it from the cache, so it can come back without being read
// again; the cache bounds its own size by record count.
type CachedStore struct {
	backing Store
	cache   *ristretto.Cache[uint64, pointcloud.Records]
}

// NewCachedStore returns a cache holding at most maxRecords decoded records.
func NewCachedStore(backing Store, maxRecords int64) (*CachedStore, error) {
	if maxRecords <= 0 {
		return nil, errors.New("page cache size must be positive")
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, pointcloud.Records]{
		// Ten counters per expected page, assuming pages of roughly a hundred records.
		NumCounters:        max(maxRecords/10, 100),
		MaxCost:            maxRecords,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &CachedStore{backing: backing, cache: cache}, nil
}

// Load returns the cached page or loads it from the backing store.
func (cs *CachedStore) Load(ctx context.Context, pageID uint64) (pointcloud.Records, error) {
	if recs, ok := cs.cache.Get(pageID); ok {
		return recs, nil
	}
	recs, err := cs.backing.Load(ctx, pageID)
	if err != nil {
		return nil, err
	}
	cs.cache.Set(pageID, recs, int64(max(len(recs), 1)))
	return recs, nil
}

// Evict forwards to the backing store.
func (cs *CachedStore) Evict(pageID uint64) {
	cs.backing.Evict(pageID)
}

// Invalidate drops a page from the cache.
func (cs *CachedStore) Invalidate(pageID uint64) {
	cs.cache.Del(pageID)
}

// Wait blocks until pending cache writes are visible.
func (cs *CachedStore) Wait() {
	cs.cache.Wait()
}

// Close releases the cache.
func (cs *CachedStore) Close() {
	cs.cache.Close()
}
