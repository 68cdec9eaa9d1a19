package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/xiaot623/gogo/menuchat/internal/conversation"
	"github.com/xiaot623/gogo/menuchat/internal/surface"
)

// terminalRenderer prints the conversation incrementally: each snapshot
// only adds the answer text not printed yet. Only the active surface is
// printed so the two surfaces do not echo each other.
type terminalRenderer struct {
	out    io.Writer
	layout *surface.Layout

	mu      sync.Mutex
	cursor  int  // index of the first message not fully printed
	written int  // bytes of messages[cursor] already printed
	started bool // whether the prefix of messages[cursor] was printed
}

func newTerminalRenderer(out io.Writer, layout *surface.Layout) *terminalRenderer {
	return &terminalRenderer{out: out, layout: layout}
}

// active is the surface whose updates are printed.
func (r *terminalRenderer) active() surface.Kind {
	if r.layout.FloatingOpen() && !r.layout.EmbeddedOpen() {
		return surface.KindFloating
	}
	return surface.KindEmbedded
}

func (r *terminalRenderer) Render(kind surface.Kind, view conversation.Snapshot) {
	if kind != r.active() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.cursor < len(view.Messages) {
		m := view.Messages[r.cursor]
		if m.IsUser {
			r.cursor++
			continue
		}
		if !r.started {
			fmt.Fprint(r.out, "assistant> ")
			r.started = true
		}
		if len(m.Text) > r.written {
			fmt.Fprint(r.out, m.Text[r.written:])
			r.written = len(m.Text)
		}
		if m.IsStreaming {
			return
		}
		fmt.Fprintln(r.out)
		r.cursor++
		r.written = 0
		r.started = false
	}
}
