package octree

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"

	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/metrics"
	"go.starlod.dev/starlod/pointcloud"
	"go.starlod.dev/starlod/spatialmath"
)

// ErrDisposed is returned when using an Index after Dispose.
var ErrDisposed = errors.New("octree index has been disposed")

// IndexConfig configures an Index.
type IndexConfig struct {
	// Name labels the index's metrics.
	Name string
	LOD  LODParams
	// MaxResidentObjects is the number of records kept in memory before unobserved pages are
	// evicted. Zero means unlimited. Eviction needs a Pager.
	MaxResidentObjects int
	// StartUnloaded evicts every page but the root's when the index is created, so pages are
	// loaded on demand from the start.
	StartUnloaded bool
}

// FrameStats summarises one frame walk.
type FrameStats struct {
	Frame           uint64
	OctantsObserved int
	ObjectsObserved int
	Rendered        int
	ResidentObjects int
	Evicted         int
	LoadsRequested  int
	FocusForced     bool
}

// Option configures optional collaborators of an Index.
type Option func(*Index)

// WithPager loads and evicts pages through p.
func WithPager(p Pager) Option {
	return func(idx *Index) {
		idx.pager = p
	}
}

// WithFader multiplies every rendered record's opacity by f's opacity.
func WithFader(f Fader) Option {
	return func(idx *Index) {
		idx.fader = f
	}
}

// WithListener sends every frame's output to l.
func WithListener(l RenderListener) Option {
	return func(idx *Index) {
		idx.listener = l
	}
}

type residentKey struct {
	lastObserved uint64
	pageID       uint64
}

func residentLess(a, b residentKey) bool {
	if a.lastObserved != b.lastObserved {
		return a.lastObserved < b.lastObserved
	}
	return a.pageID < b.pageID
}

type noopListener struct{}

func (noopListener) RenderListDirty(int)                {}
func (noopListener) Render(*pointcloud.Record, float64) {}

// Index owns a tree at runtime. Every frame it walks the tree against the camera, hands the
// selected records to its RenderListener and keeps the resident pages within budget.
//
// An Index is not safe for concurrent use. FrameUpdate and the page-load callbacks delivered by
// its Pager must all run on the render thread.
type Index struct {
	logger   logging.Logger
	cfg      IndexConfig
	tree     *Tree
	pager    Pager
	fader    Fader
	listener RenderListener

	// parenthood maps each resident record to the node that holds it. It never owns anything.
	parenthood map[*pointcloud.Record]*Node
	byID       map[uint64]*pointcloud.Record

	frame      FrameState
	active     ActiveSet
	lastActive int
	stats      FrameStats

	resident        *btree.BTreeG[residentKey]
	residentKeys    map[uint64]residentKey
	residentObjects int
	loadsRequested  int

	disposed bool
}

// NewIndex wraps tree.
func NewIndex(tree *Tree, cfg IndexConfig, logger logging.Logger, opts ...Option) (*Index, error) {
	if tree == nil || tree.Root == nil {
		return nil, errors.New("octree index needs a tree")
	}
	if cfg.Name == "" {
		cfg.Name = "octree"
	}
	if cfg.LOD == (LODParams{}) {
		cfg.LOD = DefaultLODParams()
	}
	if err := cfg.LOD.Validate(); err != nil {
		return nil, err
	}

	idx := &Index{
		logger:       logger,
		cfg:          cfg,
		tree:         tree,
		fader:        FullOpacity{},
		listener:     noopListener{},
		parenthood:   make(map[*pointcloud.Record]*Node, tree.Root.NumObjectsRec),
		byID:         make(map[uint64]*pointcloud.Record, tree.Root.NumObjectsRec),
		resident:     btree.NewBTreeG[residentKey](residentLess),
		residentKeys: make(map[uint64]residentKey),
		lastActive:   -1,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.pager != nil {
		idx.frame.request = idx.requestPage
	} else if cfg.MaxResidentObjects > 0 || cfg.StartUnloaded {
		return nil, errors.New("paging options need a pager")
	}

	for _, n := range tree.Nodes() {
		if n.status != Loaded {
			continue
		}
		if cfg.StartUnloaded && n != tree.Root {
			n.Unload()
			continue
		}
		idx.addResident(n)
	}
	return idx, nil
}

// Tree returns the wrapped tree.
func (idx *Index) Tree() *Tree {
	return idx.tree
}

// Parent returns the node that holds rec, if rec is resident.
func (idx *Index) Parent(rec *pointcloud.Record) (*Node, bool) {
	n, ok := idx.parenthood[rec]
	return n, ok
}

// Record returns the resident record with the given ID.
func (idx *Index) Record(id uint64) (*pointcloud.Record, bool) {
	rec, ok := idx.byID[id]
	return rec, ok
}

// Stats returns the summary of the last frame.
func (idx *Index) Stats() FrameStats {
	return idx.stats
}

// ResidentObjects returns the number of records held by resident nodes.
func (idx *Index) ResidentObjects() int {
	return idx.residentObjects
}

// FrameUpdate walks the tree for one frame at Julian date jd. Observed records have their render
// position and opacity updated and are passed to the RenderListener. Pages needed by observed
// nodes are requested without waiting for them.
func (idx *Index) FrameUpdate(ctx context.Context, jd float64, cam *spatialmath.Camera) error {
	if idx.disposed {
		return ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.frame.reset(idx.frame.Frame + 1)
	idx.loadsRequested = 0
	idx.tree.Root.Update(cam, idx.cfg.LOD, &idx.frame, &idx.active, 1)

	size := idx.active.Len()
	if size != idx.lastActive {
		idx.listener.RenderListDirty(size)
		idx.lastActive = size
	}

	fade := idx.fader.FadeOpacity()
	var last *Node
	for _, e := range idx.active.Entries() {
		e.Record.Propagate(jd)
		e.Record.Opacity = e.Opacity * fade
		idx.listener.Render(e.Record, e.Record.Opacity)
		if e.Node != last {
			idx.touchResident(e.Node)
			last = e.Node
		}
	}
	idx.active.Clear()

	focusForced := false
	var focusNode *Node
	if cam.HasFocus {
		if rec, ok := idx.byID[cam.Focus]; ok {
			focusNode = idx.parenthood[rec]
			if focusNode != nil && !focusNode.Observed {
				rec.Propagate(jd)
				focusForced = true
			}
		}
	}

	evicted := idx.evict(focusNode)

	idx.stats = FrameStats{
		Frame:           idx.frame.Frame,
		OctantsObserved: idx.frame.OctantsObserved,
		ObjectsObserved: idx.frame.ObjectsObserved,
		Rendered:        size,
		ResidentObjects: idx.residentObjects,
		Evicted:         evicted,
		LoadsRequested:  idx.loadsRequested,
		FocusForced:     focusForced,
	}
	metrics.OctantsObserved.WithLabelValues(idx.cfg.Name).Set(float64(idx.frame.OctantsObserved))
	metrics.ObjectsObserved.WithLabelValues(idx.cfg.Name).Set(float64(idx.frame.ObjectsObserved))
	metrics.ResidentObjects.WithLabelValues(idx.cfg.Name).Set(float64(idx.residentObjects))
	return nil
}

func (idx *Index) addResident(n *Node) {
	for _, rec := range n.Records {
		idx.parenthood[rec] = n
		idx.byID[rec.ID] = rec
	}
	idx.residentObjects += len(n.Records)
	if len(n.Records) == 0 {
		return
	}
	key := residentKey{lastObserved: n.lastObserved, pageID: n.PageID}
	idx.resident.Set(key)
	idx.residentKeys[n.PageID] = key
}

func (idx *Index) removeResident(n *Node) {
	if key, ok := idx.residentKeys[n.PageID]; ok {
		idx.resident.Delete(key)
		delete(idx.residentKeys, n.PageID)
	}
	for _, rec := range n.Records {
		delete(idx.parenthood, rec)
		if idx.byID[rec.ID] == rec {
			delete(idx.byID, rec.ID)
		}
	}
	idx.residentObjects -= len(n.Records)
}

func (idx *Index) touchResident(n *Node) {
	old, ok := idx.residentKeys[n.PageID]
	if !ok || old.lastObserved == n.lastObserved {
		return
	}
	idx.resident.Delete(old)
	key := residentKey{lastObserved: n.lastObserved, pageID: n.PageID}
	idx.resident.Set(key)
	idx.residentKeys[n.PageID] = key
}

// evict unloads the least recently observed pages until the resident records fit the budget.
// Observed nodes, the root and keep are never evicted.
func (idx *Index) evict(keep *Node) int {
	if idx.cfg.MaxResidentObjects <= 0 || idx.residentObjects <= idx.cfg.MaxResidentObjects {
		return 0
	}
	excess := idx.residentObjects - idx.cfg.MaxResidentObjects
	var victims []*Node
	idx.resident.Scan(func(key residentKey) bool {
		if key.lastObserved >= idx.frame.Frame {
			return false
		}
		n := idx.tree.Node(key.pageID)
		if n == nil || n == idx.tree.Root || n == keep || n.Observed {
			return true
		}
		victims = append(victims, n)
		excess -= len(n.Records)
		return excess > 0
	})

	for _, n := range victims {
		idx.removeResident(n)
		n.Unload()
		idx.pager.Evict(n.PageID)
		metrics.PageEvictions.Inc()
	}
	if len(victims) > 0 {
		idx.logger.Debugw("evicted octree pages", "pages", len(victims), "resident", idx.residentObjects)
	}
	return len(victims)
}

func (idx *Index) requestPage(n *Node) {
	idx.loadsRequested++
	idx.pager.Request(n.PageID, func(recs pointcloud.Records, err error) {
		idx.applyPage(n, recs, err)
	})
}

// applyPage installs a loaded page. It runs on the render thread.
func (idx *Index) applyPage(n *Node, recs pointcloud.Records, err error) {
	if idx.disposed || n.status != Loading {
		return
	}
	if err != nil {
		n.status = LoadingFailed
		metrics.PageLoads.WithLabelValues("failed").Inc()
		idx.logger.Warnw("octree page failed to load, node stays empty", "page", n.PageID, "error", err)
		return
	}
	n.SetRecords(recs)
	idx.addResident(n)
	metrics.PageLoads.WithLabelValues("ok").Inc()
}

// Dispose drops every record from the tree along with the parenthood map. The index cannot be
// used afterwards.
func (idx *Index) Dispose() {
	if idx.disposed {
		return
	}
	idx.tree.Root.Walk(func(n *Node) bool {
		n.Records = nil
		n.status = NotLoaded
		return true
	})
	clear(idx.parenthood)
	clear(idx.byID)
	idx.resident.Clear()
	clear(idx.residentKeys)
	idx.residentObjects = 0
	idx.active.Clear()
	idx.disposed = true
	metrics.ResidentObjects.WithLabelValues(idx.cfg.Name).Set(0)
}
