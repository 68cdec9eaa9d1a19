// Package chat wires the connection, conversation, stream and surface
// components into one chat session.
package chat

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/menuchat/internal/config"
	"github.com/xiaot623/gogo/menuchat/internal/connection"
	"github.com/xiaot623/gogo/menuchat/internal/conversation"
	"github.com/xiaot623/gogo/menuchat/internal/stream"
	"github.com/xiaot623/gogo/menuchat/internal/surface"
)

// Options holds the pluggable parts of a session. All fields are optional.
type Options struct {
	Renderer surface.Renderer
	Scroller surface.Scroller
	Dialer   connection.Dialer
	OnDrop   connection.DropHook
	Logger   zerolog.Logger
}

// Session is one chat session shared by the embedded and floating surfaces.
type Session struct {
	Manager   *connection.Manager
	Store     *conversation.Store
	Assembler *stream.Assembler
	Layout    *surface.Layout
	Embedded  *surface.Adapter
	Floating  *surface.Adapter

	logger zerolog.Logger
}

// Status summarizes a session for display.
type Status struct {
	State        connection.State
	Composing    bool
	Messages     int
	Pending      int
	EmbeddedOpen bool
	FloatingOpen bool
	Width        int
}

// NewSession builds a session from cfg. Call Start to open the channel.
func NewSession(cfg config.ClientConfig, opts Options) (*Session, error) {
	policy, err := conversation.ParseBusyPolicy(cfg.BusyPolicy)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = connection.WebsocketDialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	manager := connection.NewManager(connection.Options{
		URL:            cfg.ChatURL,
		ReconnectDelay: cfg.ReconnectDelay,
		WriteTimeout:   cfg.WriteTimeout,
		Dialer:         dialer,
		Logger:         opts.Logger,
	})
	deliverer := connection.NewRetryOnceDeliverer(manager, cfg.SendRetryDelay, opts.OnDrop, opts.Logger)
	store := conversation.NewStore(deliverer, policy, opts.Logger)
	assembler := stream.NewAssembler(store, opts.Logger)
	manager.SetReceiver(assembler.OnFragment)

	layout := surface.NewLayout(cfg.PanelWidth, cfg.PanelMinWidth, cfg.PanelMaxWidth)

	return &Session{
		Manager:   manager,
		Store:     store,
		Assembler: assembler,
		Layout:    layout,
		Embedded:  surface.NewEmbedded(store, layout, opts.Renderer, opts.Scroller, cfg.ScrollDelay, opts.Logger),
		Floating:  surface.NewFloating(store, layout, opts.Renderer, opts.Scroller, cfg.ScrollDelay, opts.Logger),
		logger:    opts.Logger.With().Str("component", "session").Logger(),
	}, nil
}

// Start opens the chat channel in the background.
func (s *Session) Start() {
	s.logger.Info().Msg("starting chat session")
	s.Manager.Connect()
}

// Close detaches both surfaces and closes the channel.
func (s *Session) Close() {
	s.Embedded.Close()
	s.Floating.Close()
	s.Manager.Disconnect()
}

// Status returns the current session summary.
func (s *Session) Status() Status {
	snap := s.Store.Snapshot()
	return Status{
		State:        s.Manager.State(),
		Composing:    snap.Composing,
		Messages:     len(snap.Messages),
		Pending:      s.Store.Pending(),
		EmbeddedOpen: s.Layout.EmbeddedOpen(),
		FloatingOpen: s.Layout.FloatingOpen(),
		Width:        s.Layout.Width(),
	}
}
