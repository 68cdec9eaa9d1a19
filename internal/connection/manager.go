// Package connection owns the single duplex channel between the chat client and the chat backend.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/menuchat/internal/protocol"
)

// ErrNotConnected is returned by Send when no channel is open.
var ErrNotConnected = errors.New("chat channel not connected")

// Receiver gets every inbound frame as an opaque string, in arrival order.
type Receiver func(fragment string)

// StateListener observes state changes. Listeners run in transition order
// and may call back into the manager.
type StateListener func(from, to State)

type stateChange struct {
	from, to State
	event    Event
}

// Options configures a Manager.
type Options struct {
	URL            string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	Dialer         Dialer
	Logger         zerolog.Logger
}

// Manager drives the connection state machine for one chat endpoint.
// It is safe for concurrent use.
type Manager struct {
	url            string
	reconnectDelay time.Duration
	writeTimeout   time.Duration
	dialer         Dialer
	logger         zerolog.Logger

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        uint64 // bumped whenever a dial or channel is invalidated
	retry      *time.Timer
	cancelDial context.CancelFunc
	receiver   Receiver
	listeners  []StateListener
	pending    []stateChange
	draining   bool

	// writeMu serializes frame writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// NewManager creates a manager in the Disconnected state.
func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{HandshakeTimeout: 5 * time.Second}
	}
	return &Manager{
		url:            opts.URL,
		reconnectDelay: opts.ReconnectDelay,
		writeTimeout:   opts.WriteTimeout,
		dialer:         opts.Dialer,
		logger:         opts.Logger.With().Str("component", "connection").Logger(),
		state:          StateDisconnected,
	}
}

// SetReceiver registers the single consumer of inbound frames.
func (m *Manager) SetReceiver(r Receiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiver = r
}

// OnStateChange registers a listener for state transitions.
func (m *Manager) OnStateChange(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the channel if none exists. It returns immediately; the
// dial happens in the background and failures are retried forever.
func (m *Manager) Connect() {
	m.dispatch(EventConnect, 0, nil)
}

// Disconnect closes the channel and cancels any pending reconnect.
func (m *Manager) Disconnect() {
	m.dispatch(EventDisconnect, 0, nil)
}

// Send writes one question frame on the open channel.
func (m *Manager) Send(q protocol.Question) error {
	data, err := q.Encode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send question: %w", err)
	}
	m.logger.Debug().Int("bytes", len(data)).Msg("question sent")
	return nil
}

// dispatch applies an event through the transition table. gen identifies
// the dial or read loop reporting the event; 0 means a caller-initiated
// event that is never stale. conn carries a freshly opened channel.
func (m *Manager) dispatch(ev Event, gen uint64, conn Conn) {
	m.mu.Lock()
	if gen != 0 && gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.logger.Debug().Str("event", string(ev)).Msg("stale event ignored")
		return
	}

	from := m.state
	t, ok := Next(from, ev)
	if !ok {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.logger.Debug().Str("state", string(from)).Str("event", string(ev)).Msg("event ignored")
		return
	}
	m.state = t.To

	var toClose Conn
	for _, eff := range t.Effects {
		switch eff {
		case EffectDial:
			m.startDialLocked()
		case EffectAttach:
			m.conn = conn
			go m.readLoop(conn, m.gen)
		case EffectClose:
			toClose = m.conn
			m.conn = nil
			if m.cancelDial != nil {
				m.cancelDial()
				m.cancelDial = nil
			}
			m.gen++
		case EffectScheduleRetry:
			m.scheduleRetryLocked()
		case EffectCancelRetry:
			if m.retry != nil {
				m.retry.Stop()
				m.retry = nil
			}
			m.gen++
		}
	}

	if from != t.To {
		m.pending = append(m.pending, stateChange{from: from, to: t.To, event: ev})
	}
	m.mu.Unlock()

	if toClose != nil {
		m.closeConn(toClose)
	}
	m.drainStateChanges()
}

// drainStateChanges delivers queued transitions to listeners. Only one
// goroutine drains at a time; changes queued meanwhile, including those
// caused by a listener itself, are picked up by the active drainer.
func (m *Manager) drainStateChanges() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.pending) > 0 {
		c := m.pending[0]
		m.pending = m.pending[1:]
		listeners := append([]StateListener(nil), m.listeners...)
		m.mu.Unlock()

		m.logger.Info().Str("from", string(c.from)).Str("to", string(c.to)).Str("event", string(c.event)).Msg("connection state changed")
		for _, l := range listeners {
			l(c.from, c.to)
		}

		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

// startDialLocked must be called with mu held.
func (m *Manager) startDialLocked() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	go m.dial(ctx, cancel, gen)
}

// scheduleRetryLocked must be called with mu held.
func (m *Manager) scheduleRetryLocked() {
	gen := m.gen
	if m.retry != nil {
		m.retry.Stop()
	}
	m.retry = time.AfterFunc(m.reconnectDelay, func() {
		m.dispatch(EventRetryDue, gen, nil)
	})
	m.logger.Warn().Dur("delay", m.reconnectDelay).Msg("chat channel unavailable, retry scheduled")
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	m.logger.Debug().Str("url", m.url).Msg("dialing chat endpoint")
	conn, err := m.dialer.Dial(ctx, m.url)
	cancel()
	if err != nil {
		m.logger.Warn().Err(err).Msg("chat channel open failed")
		m.dispatch(EventFailed, gen, nil)
		return
	}
	m.dispatch(EventOpened, gen, conn)
}

// readLoop forwards frames to the receiver until the channel fails.
func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Warn().Err(err).Msg("chat channel read failed")
			}
			m.dispatch(EventDropped, gen, nil)
			return
		}

		m.mu.Lock()
		current := gen == m.gen
		recv := m.receiver
		m.mu.Unlock()
		if !current {
			return
		}
		if recv != nil {
			recv(string(data))
		}
	}
}

func (m *Manager) closeConn(conn Conn) {
	m.writeMu.Lock()
	if m.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	m.writeMu.Unlock()
	if err := conn.Close(); err != nil {
		m.logger.Debug().Err(err).Msg("close chat channel")
	}
}
