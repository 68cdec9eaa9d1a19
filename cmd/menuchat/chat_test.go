package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/menuchat/internal/chat"
	"github.com/xiaot623/gogo/menuchat/internal/config"
	"github.com/xiaot623/gogo/menuchat/internal/conversation"
	"github.com/xiaot623/gogo/menuchat/internal/surface"
)

func snapshot(msgs ...conversation.Message) conversation.Snapshot {
	return conversation.Snapshot{Messages: msgs}
}

func TestTerminalRendererPrintsDeltas(t *testing.T) {
	var out bytes.Buffer
	r := newTerminalRenderer(&out, surface.NewLayout(0, 0, 0))
	user := conversation.Message{Text: "Hi", IsUser: true}

	r.Render(surface.KindEmbedded, snapshot(user, conversation.Message{IsStreaming: true}))
	r.Render(surface.KindFloating, snapshot(user, conversation.Message{Text: "Hel", IsStreaming: true}))
	r.Render(surface.KindEmbedded, snapshot(user, conversation.Message{Text: "Hel", IsStreaming: true}))
	r.Render(surface.KindEmbedded, snapshot(user, conversation.Message{Text: "Hello!", IsStreaming: true}))
	r.Render(surface.KindEmbedded, snapshot(user, conversation.Message{Text: "Hello!"}))

	assert.Equal(t, "assistant> Hello!\n", out.String())
}

func TestTerminalRendererFollowsFloatingWidget(t *testing.T) {
	var out bytes.Buffer
	layout := surface.NewLayout(0, 0, 0)
	layout.ToggleFloating()
	r := newTerminalRenderer(&out, layout)

	view := snapshot(conversation.Message{Text: "q", IsUser: true}, conversation.Message{Text: "a"})
	r.Render(surface.KindEmbedded, view)
	assert.Empty(t, out.String())
	r.Render(surface.KindFloating, view)
	assert.Equal(t, "assistant> a\n", out.String())
}

func TestHandleLineCommands(t *testing.T) {
	cfg := config.Load().Client
	cfg.ChatURL = "ws://127.0.0.1:1/ws/chat"
	cfg.SendRetryDelay = time.Hour
	s, err := chat.NewSession(cfg, chat.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer s.Close()

	var out bytes.Buffer
	assert.False(t, handleLine(&out, s, "/panel"))
	assert.True(t, s.Layout.EmbeddedOpen())
	assert.False(t, handleLine(&out, s, "/float"))
	assert.True(t, s.Layout.FloatingOpen())
	assert.False(t, handleLine(&out, s, "/width 2000"))
	assert.Equal(t, 800, s.Layout.Width())
	assert.False(t, handleLine(&out, s, "/width wide"))
	assert.Contains(t, out.String(), "usage: /width N")

	assert.False(t, handleLine(&out, s, "   "))
	assert.Empty(t, s.Store.Snapshot().Messages)
	assert.False(t, handleLine(&out, s, "Any desserts?"))
	assert.Len(t, s.Store.Snapshot().Messages, 2)

	assert.False(t, handleLine(&out, s, "/status"))
	assert.Contains(t, out.String(), "messages: 2")
	assert.True(t, handleLine(&out, s, "/quit"))
}
