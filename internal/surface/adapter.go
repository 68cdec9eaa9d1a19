package surface

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/menuchat/internal/conversation"
)

// Kind names a surface.
type Kind string

const (
	KindEmbedded Kind = "embedded"
	KindFloating Kind = "floating"
)

// Renderer draws a full conversation view.
type Renderer interface {
	Render(kind Kind, view conversation.Snapshot)
}

// Scroller moves a surface to its newest message.
type Scroller interface {
	ScrollToLatest(kind Kind)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(kind Kind, view conversation.Snapshot)

func (f RendererFunc) Render(kind Kind, view conversation.Snapshot) { f(kind, view) }

// ScrollerFunc adapts a function to Scroller.
type ScrollerFunc func(kind Kind)

func (f ScrollerFunc) ScrollToLatest(kind Kind) { f(kind) }

// Store is the part of the conversation store a surface uses.
type Store interface {
	Submit(text string) error
	Snapshot() conversation.Snapshot
	Subscribe(fn conversation.Observer) string
	Unsubscribe(id string)
}

// Options configures an Adapter. Renderer and Scroller may be nil.
type Options struct {
	Kind        Kind
	Renderer    Renderer
	Scroller    Scroller
	ScrollDelay time.Duration
	// ScrollWhileHidden keeps scrolling when the surface is closed.
	ScrollWhileHidden bool
	Logger            zerolog.Logger
}

// Adapter binds one surface to the shared store and layout.
type Adapter struct {
	kind              Kind
	store             Store
	layout            *Layout
	renderer          Renderer
	scroller          Scroller
	scrollDelay       time.Duration
	scrollWhileHidden bool
	logger            zerolog.Logger

	mu     sync.Mutex
	view   conversation.Snapshot
	subID  string
	scroll *time.Timer
}

// NewEmbedded creates the embedded panel. It scrolls regardless of visibility.
func NewEmbedded(store Store, layout *Layout, r Renderer, s Scroller, scrollDelay time.Duration, logger zerolog.Logger) *Adapter {
	return NewAdapter(store, layout, Options{
		Kind:              KindEmbedded,
		Renderer:          r,
		Scroller:          s,
		ScrollDelay:       scrollDelay,
		ScrollWhileHidden: true,
		Logger:            logger,
	})
}

// NewFloating creates the floating widget. It does not scroll while closed.
func NewFloating(store Store, layout *Layout, r Renderer, s Scroller, scrollDelay time.Duration, logger zerolog.Logger) *Adapter {
	return NewAdapter(store, layout, Options{
		Kind:        KindFloating,
		Renderer:    r,
		Scroller:    s,
		ScrollDelay: scrollDelay,
		Logger:      logger,
	})
}

// NewAdapter subscribes a surface to store and seeds its view with the
// current snapshot.
func NewAdapter(store Store, layout *Layout, opts Options) *Adapter {
	a := &Adapter{
		kind:              opts.Kind,
		store:             store,
		layout:            layout,
		renderer:          opts.Renderer,
		scroller:          opts.Scroller,
		scrollDelay:       opts.ScrollDelay,
		scrollWhileHidden: opts.ScrollWhileHidden,
		logger:            opts.Logger.With().Str("component", "surface").Str("surface", string(opts.Kind)).Logger(),
	}
	a.view = store.Snapshot()
	a.subID = store.Subscribe(a.onChange)
	return a
}

// Kind returns which surface this is.
func (a *Adapter) Kind() Kind { return a.kind }

// Submit forwards user input to the store.
func (a *Adapter) Submit(text string) error {
	return a.store.Submit(strings.TrimSpace(text))
}

// View returns the last snapshot this surface rendered.
func (a *Adapter) View() conversation.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// Visible reports the surface's own flag from the layout.
func (a *Adapter) Visible() bool {
	if a.kind == KindFloating {
		return a.layout.FloatingOpen()
	}
	return a.layout.EmbeddedOpen()
}

// Close stops observing the store and cancels a pending scroll.
func (a *Adapter) Close() {
	a.store.Unsubscribe(a.subID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scroll != nil {
		a.scroll.Stop()
		a.scroll = nil
	}
}

func (a *Adapter) onChange(s conversation.Snapshot) {
	a.mu.Lock()
	a.view = s
	a.mu.Unlock()

	if a.renderer != nil {
		a.renderer.Render(a.kind, s)
	}
	a.scheduleScroll()
}

// scheduleScroll coalesces bursts of updates into one scroll after the delay.
func (a *Adapter) scheduleScroll() {
	if a.scroller == nil {
		return
	}
	if !a.scrollWhileHidden && !a.Visible() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scroll != nil {
		a.scroll.Stop()
	}
	a.scroll = time.AfterFunc(a.scrollDelay, func() {
		a.scroller.ScrollToLatest(a.kind)
	})
}
