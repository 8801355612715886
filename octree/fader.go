package octree

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.starlod.dev/starlod/utils"
)

// Fader supplies a whole-index opacity that the renderer multiplies into every record's LOD
// opacity.
type Fader interface {
	FadeOpacity() float64
}

// FullOpacity is a Fader that never fades.
type FullOpacity struct{}

// FadeOpacity always returns 1.
func (FullOpacity) FadeOpacity() float64 {
	return 1
}

// LinearFader fades in from transparent to opaque over a duration, starting the first time it is
// queried.
type LinearFader struct {
	clock    clock.Clock
	duration time.Duration

	mu      sync.Mutex
	started bool
	start   time.Time
}

// NewLinearFader returns a LinearFader driven by clk.
func NewLinearFader(clk clock.Clock, duration time.Duration) *LinearFader {
	if clk == nil {
		clk = clock.New()
	}
	return &LinearFader{clock: clk, duration: duration}
}

// FadeOpacity returns the fraction of the fade-in that has elapsed.
func (f *LinearFader) FadeOpacity() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	if !f.started {
		f.started = true
		f.start = now
	}
	if f.duration <= 0 {
		return 1
	}
	return utils.Clamp(float64(now.Sub(f.start))/float64(f.duration), 0, 1)
}

// Reset makes the next query start a new fade-in.
func (f *LinearFader) Reset() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}
