// Package surface presents the shared conversation on the embedded panel and
// the floating widget.
package surface

import "sync"

// Default panel geometry.
const (
	DefaultWidth    = 400
	DefaultMinWidth = 300
	DefaultMaxWidth = 800
)

// Layout holds presentation state for both surfaces. It is independent of
// the chat protocol.
type Layout struct {
	mu           sync.RWMutex
	embeddedOpen bool
	floatingOpen bool
	width        int
	minWidth     int
	maxWidth     int
}

// NewLayout creates a layout with both surfaces closed. Invalid bounds fall
// back to the defaults.
func NewLayout(width, minWidth, maxWidth int) *Layout {
	if minWidth <= 0 || maxWidth < minWidth {
		minWidth, maxWidth = DefaultMinWidth, DefaultMaxWidth
	}
	if width == 0 {
		width = DefaultWidth
	}
	l := &Layout{minWidth: minWidth, maxWidth: maxWidth}
	l.width = l.clamp(width)
	return l
}

// ToggleEmbedded flips the embedded panel and returns the new flag.
func (l *Layout) ToggleEmbedded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.embeddedOpen = !l.embeddedOpen
	return l.embeddedOpen
}

// ToggleFloating flips the floating widget and returns the new flag.
func (l *Layout) ToggleFloating() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.floatingOpen = !l.floatingOpen
	return l.floatingOpen
}

// SetWidth stores w clamped to the configured range and returns the result.
func (l *Layout) SetWidth(w int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.width = l.clamp(w)
	return l.width
}

func (l *Layout) EmbeddedOpen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.embeddedOpen
}

func (l *Layout) FloatingOpen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.floatingOpen
}

func (l *Layout) Width() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.width
}

// Bounds returns the allowed width range.
func (l *Layout) Bounds() (minWidth, maxWidth int) {
	return l.minWidth, l.maxWidth
}

func (l *Layout) clamp(w int) int {
	if w < l.minWidth {
		return l.minWidth
	}
	if w > l.maxWidth {
		return l.maxWidth
	}
	return w
}
