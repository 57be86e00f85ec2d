package scroll

import (
	"context"
	"math"
	"sync"

	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/transcript"
)

// DefaultThreshold is the distance in pixels (or rows) a scroll event must
// move away from the last programmatic position to count as manual.
const DefaultThreshold = 50

// Metrics is a snapshot of the scroll container.
type Metrics struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// Scrollable reports whether the content overflows the viewport.
func (m Metrics) Scrollable() bool {
	return m.ScrollHeight > m.ClientHeight
}

// Bottom is the scroll offset showing the newest content.
func (m Metrics) Bottom() float64 {
	return math.Max(0, m.ScrollHeight-m.ClientHeight)
}

// Viewport is the UI toolkit's scroll container.
type Viewport interface {
	Metrics() Metrics
	ScrollTo(top float64)
}

// Pager is the history loader as seen from the viewport.
type Pager interface {
	LoadMore(ctx context.Context) error
	HasMore() bool
	Loading() bool
}

// Controller keeps the newest message in view and turns deliberate upward
// scrolls to the top into history loads.
type Controller struct {
	viewport  Viewport
	pager     Pager
	threshold float64

	mu          sync.Mutex
	manual      bool
	expectedTop float64
	anchor      *Metrics
	prepended   bool
	stickBottom bool
}

// NewController creates a controller; threshold <= 0 selects DefaultThreshold.
func NewController(viewport Viewport, pager Pager, threshold float64) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Controller{viewport: viewport, pager: pager, threshold: threshold}
}

// ScrolledManually reports whether a user scroll has been observed since the
// transcript was last replaced.
func (c *Controller) ScrolledManually() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// HandleEvent reacts to transcript mutations. Subscribe it to the store.
func (c *Controller) HandleEvent(evt transcript.Event) {
	switch evt.Kind {
	case transcript.Appended:
		c.mu.Lock()
		c.anchor = nil
		c.stickBottom = true
		c.mu.Unlock()
		c.scrollToBottom()
	case transcript.Replaced:
		c.mu.Lock()
		c.manual = false
		c.anchor = nil
		c.prepended = false
		c.stickBottom = true
		c.mu.Unlock()
		c.scrollToBottom()
	case transcript.Prepended:
		c.mu.Lock()
		c.prepended = true
		c.mu.Unlock()
	case transcript.Adopted:
		c.mu.Lock()
		c.manual = false
		c.mu.Unlock()
	}
}

// TypingChanged scrolls to the newest message on every typing transition.
func (c *Controller) TypingChanged(bool) {
	c.mu.Lock()
	c.stickBottom = true
	c.mu.Unlock()
	c.scrollToBottom()
}

// ContentResized must be called by the UI after it laid out new content. It
// keeps the visual position after a prepend, or settles a pending scroll to
// the bottom.
func (c *Controller) ContentResized() {
	m := c.viewport.Metrics()

	c.mu.Lock()
	switch {
	case c.anchor != nil && c.prepended:
		top := c.anchor.ScrollTop + (m.ScrollHeight - c.anchor.ScrollHeight)
		c.anchor = nil
		c.prepended = false
		c.mu.Unlock()
		c.scrollTo(top, m)
	case c.stickBottom:
		c.stickBottom = false
		c.mu.Unlock()
		c.scrollTo(m.Bottom(), m)
	default:
		c.mu.Unlock()
	}
}

// HandleScroll processes a scroll event from the viewport and fires a history
// load when the user deliberately reached the top. It reports whether a load
// was attempted.
func (c *Controller) HandleScroll(ctx context.Context) bool {
	m := c.viewport.Metrics()

	c.mu.Lock()
	if !c.manual && math.Abs(m.ScrollTop-c.expectedTop) > c.threshold {
		c.manual = true
	}

	if !c.manual || m.ScrollTop > 0 || !m.Scrollable() || c.anchor != nil {
		c.mu.Unlock()
		return false
	}
	if c.pager == nil || !c.pager.HasMore() || c.pager.Loading() {
		c.mu.Unlock()
		return false
	}
	snapshot := m
	c.anchor = &snapshot
	c.prepended = false
	c.mu.Unlock()

	err := c.pager.LoadMore(ctx)

	c.mu.Lock()
	if err != nil || !c.prepended {
		// nothing to restore; the next scroll to the top retries
		if c.anchor == &snapshot {
			c.anchor = nil
		}
	}
	c.mu.Unlock()
	return true
}

func (c *Controller) scrollToBottom() {
	m := c.viewport.Metrics()
	c.scrollTo(m.Bottom(), m)
}

func (c *Controller) scrollTo(top float64, m Metrics) {
	top = math.Max(0, math.Min(top, m.Bottom()))

	c.mu.Lock()
	c.expectedTop = top
	c.mu.Unlock()

	c.viewport.ScrollTo(top)
}
