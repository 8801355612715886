package pages

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.starlod.dev/starlod/catalog"
	"go.starlod.dev/starlod/executor"
	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/octree"
	"go.starlod.dev/starlod/pointcloud"
)

func testRecords(t *testing.T, n int) pointcloud.Records {
	t.Helper()
	recs, err := catalog.Generate(catalog.Spec{Count: n, HalfSize: 5, Seed: 3})
	test.That(t, err, test.ShouldBeNil)
	recs[0].Names = []string{"Sol"}
	return recs
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, writeFrame(&buf, []byte("payload")), test.ShouldBeNil)
	raw := buf.Bytes()

	payload, err := readFrame(bytes.NewReader(raw))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(payload), test.ShouldEqual, "payload")

	corrupt := append([]byte(nil), raw...)
	corrupt[len(corrupt)-1] ^= 0xff
	_, err = readFrame(bytes.NewReader(corrupt))
	test.That(t, err, test.ShouldEqual, ErrChecksumMismatch)

	badMagic := append([]byte(nil), raw...)
	badMagic[0] = 'X'
	_, err = readFrame(bytes.NewReader(badMagic))
	test.That(t, err, test.ShouldEqual, ErrInvalidMagic)

	_, err = readFrame(bytes.NewReader(raw[:len(raw)-2]))
	test.That(t, err, test.ShouldEqual, ErrIncompleteFrame)
	_, err = readFrame(bytes.NewReader(raw[:5]))
	test.That(t, err, test.ShouldEqual, ErrIncompleteFrame)
}

func TestFileStore(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := filepath.Join(t.TempDir(), "pages")
	store, err := NewFileStore(dir, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, store.Dir(), test.ShouldEqual, dir)

	ctx := context.Background()
	recs := testRecords(t, 20)
	test.That(t, store.Save(ctx, 7, recs), test.ShouldBeNil)

	loaded, err := store.Load(ctx, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(loaded), test.ShouldEqual, 20)
	for i, rec := range loaded {
		test.That(t, rec.ID, test.ShouldEqual, recs[i].ID)
		test.That(t, rec.Pos, test.ShouldResemble, recs[i].Pos)
		test.That(t, rec.AbsMag, test.ShouldEqual, recs[i].AbsMag)
	}
	test.That(t, loaded[0].Name(), test.ShouldEqual, "Sol")

	_, err = store.Load(ctx, 8)
	test.That(t, errors.Is(err, ErrPageNotFound), test.ShouldBeTrue)

	// Corrupt the page on disk.
	path := store.path(7)
	raw, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	raw[len(raw)-1] ^= 0xff
	test.That(t, os.WriteFile(path, raw, 0o600), test.ShouldBeNil)
	_, err = store.Load(ctx, 7)
	test.That(t, errors.Is(err, ErrChecksumMismatch), test.ShouldBeTrue)

	_, err = NewFileStore("", logger)
	test.That(t, err, test.ShouldNotBeNil)
}

type countingStore struct {
	mu      sync.Mutex
	pages   map[uint64]pointcloud.Records
	loads   map[uint64]int
	evicted []uint64
	release chan struct{}
}

func newCountingStore() *countingStore {
	return &countingStore{pages: map[uint64]pointcloud.Records{}, loads: map[uint64]int{}}
}

func (cs *countingStore) Load(ctx context.Context, pageID uint64) (pointcloud.Records, error) {
	if cs.release != nil {
		<-cs.release
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.loads[pageID]++
	recs, ok := cs.pages[pageID]
	if !ok {
		return nil, ErrPageNotFound
	}
	return recs, nil
}

func (cs *countingStore) Evict(pageID uint64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.evicted = append(cs.evicted, pageID)
}

func (cs *countingStore) loadCount(pageID uint64) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.loads[pageID]
}

func TestCachedStore(t *testing.T) {
	backing := newCountingStore()
	backing.pages[1] = testRecords(t, 10)
	cached, err := NewCachedStore(backing, 1000)
	test.That(t, err, test.ShouldBeNil)
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Load(ctx, 1)
	test.That(t, err, test.ShouldBeNil)
	cached.Wait()
	second, err := cached.Load(ctx, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second, test.ShouldResemble, first)
	test.That(t, backing.loadCount(1), test.ShouldEqual, 1)

	cached.Evict(1)
	test.That(t, backing.evicted, test.ShouldResemble, []uint64{1})
	_, err = cached.Load(ctx, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, backing.loadCount(1), test.ShouldEqual, 1)

	cached.Invalidate(1)
	_, err = cached.Load(ctx, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, backing.loadCount(1), test.ShouldEqual, 2)

	_, err = cached.Load(ctx, 2)
	test.That(t, errors.Is(err, ErrPageNotFound), test.ShouldBeTrue)

	_, err = NewCachedStore(backing, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoaderDeliversOnRenderQueue(t *testing.T) {
	logger := logging.NewTestLogger(t)
	backing := newCountingStore()
	backing.pages[3] = testRecords(t, 5)
	backing.release = make(chan struct{})
	queue := executor.NewRenderQueue()
	loader := NewLoader(backing, queue, 2, logger)
	defer loader.Close()

	var got []pointcloud.Records
	var errs []error
	done := func(recs pointcloud.Records, err error) {
		got = append(got, recs)
		errs = append(errs, err)
	}
	loader.Request(3, done)
	loader.Request(3, done)
	loader.Request(4, done)
	test.That(t, loader.Pending(), test.ShouldEqual, 2)
	close(backing.release)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, queue.Len(), test.ShouldEqual, 2)
	})
	test.That(t, got, test.ShouldBeEmpty)
	test.That(t, loader.Pending(), test.ShouldEqual, 0)

	test.That(t, queue.Drain(), test.ShouldEqual, 2)
	test.That(t, len(got), test.ShouldEqual, 3)
	test.That(t, backing.loadCount(3), test.ShouldEqual, 1)
	test.That(t, backing.loadCount(4), test.ShouldEqual, 1)

	failures := 0
	for i, err := range errs {
		if err != nil {
			failures++
			test.That(t, errors.Is(err, ErrPageNotFound), test.ShouldBeTrue)
			continue
		}
		test.That(t, len(got[i]), test.ShouldEqual, 5)
	}
	test.That(t, failures, test.ShouldEqual, 1)

	loader.Evict(3)
	test.That(t, backing.evicted, test.ShouldResemble, []uint64{3})
}

func TestWriteTreeAndReload(t *testing.T) {
	logger := logging.NewTestLogger(t)
	recs, err := catalog.Generate(catalog.Spec{Count: 1500, HalfSize: 10, Seed: 11})
	test.That(t, err, test.ShouldBeNil)
	tree, err := octree.Build(context.Background(), recs, octree.BuildParams{MaxPart: 100}, logger)
	test.That(t, err, test.ShouldBeNil)

	store, err := NewFileStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)
	written, err := WriteTree(context.Background(), store, tree, 4)
	test.That(t, err, test.ShouldBeNil)
	nonEmpty := 0
	for _, n := range tree.Nodes() {
		if n.NumObjects > 0 {
			nonEmpty++
		}
	}
	test.That(t, written, test.ShouldEqual, nonEmpty)

	// Drive an index entirely from disk.
	queue := executor.NewRenderQueue()
	loader := NewLoader(store, queue, 2, logger)
	defer loader.Close()
	idx, err := octree.NewIndex(tree, octree.IndexConfig{StartUnloaded: true}, logger, octree.WithPager(loader))
	test.That(t, err, test.ShouldBeNil)

	cam := newCamera(t)
	ctx := context.Background()
	test.That(t, idx.FrameUpdate(ctx, 0, cam), test.ShouldBeNil)
	requested := idx.Stats().LoadsRequested
	test.That(t, requested, test.ShouldBeGreaterThan, 0)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, loader.Pending(), test.ShouldEqual, 0)
	})
	queue.Drain()
	test.That(t, idx.ResidentObjects(), test.ShouldBeGreaterThan, len(tree.Root.Records))
	test.That(t, tree.Validate(), test.ShouldBeNil)
}

func TestWriteTreeStopsOnError(t *testing.T) {
	logger := logging.NewTestLogger(t)
	recs := pointcloud.Records{pointcloud.NewRecord(1, r3.Vector{X: 1}, 0)}
	tree, err := octree.Build(context.Background(), recs, octree.BuildParams{}, logger)
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store, err := NewFileStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = WriteTree(ctx, store, tree, 1)
	test.That(t, err, test.ShouldEqual, context.Canceled)
}
