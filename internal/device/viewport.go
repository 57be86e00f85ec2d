package device

import (
	"math"
	"sync"

	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/scroll"
)

// LineHeight is the number of scroll units one terminal line occupies, so
// pixel-based thresholds keep their meaning.
const LineHeight = 20

// Viewport is a terminal window over the rendered transcript. Its own API
// counts lines; Metrics and ScrollTo speak scroll units.
type Viewport struct {
	mu      sync.Mutex
	rows    float64
	content float64
	top     float64
}

// NewViewport creates a window rows lines tall.
func NewViewport(rows int) *Viewport {
	if rows <= 0 {
		rows = 20
	}
	return &Viewport{rows: float64(rows)}
}

// Metrics implements scroll.Viewport.
func (v *Viewport) Metrics() scroll.Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return scroll.Metrics{
		ScrollTop:    v.top * LineHeight,
		ScrollHeight: v.content * LineHeight,
		ClientHeight: v.rows * LineHeight,
	}
}

// ScrollTo implements scroll.Viewport.
func (v *Viewport) ScrollTo(top float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.top = v.clamp(math.Round(top / LineHeight))
}

// ScrollBy moves the window by delta lines, negative is upward.
func (v *Viewport) ScrollBy(delta int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.top = v.clamp(v.top + float64(delta))
}

// SetContentHeight records the rendered transcript height.
func (v *Viewport) SetContentHeight(lines int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.content = float64(lines)
	v.top = v.clamp(v.top)
}

// Rows returns the window height in lines.
func (v *Viewport) Rows() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return int(v.rows)
}

// Window returns the half-open range of visible lines.
func (v *Viewport) Window() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := int(v.top)
	end := int(math.Min(v.top+v.rows, v.content))
	return start, end
}

func (v *Viewport) clamp(top float64) float64 {
	return math.Max(0, math.Min(top, math.Max(0, v.content-v.rows)))
}
