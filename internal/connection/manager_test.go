package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/menuchat/internal/protocol"
)

type chatServer struct {
	*httptest.Server
	upgrades atomic.Int32
	conns    chan *websocket.Conn
	received chan string
	closed   chan error
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	s := &chatServer{
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan string, 32),
		closed:   make(chan error, 8),
	}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != protocol.DefaultPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.upgrades.Add(1)
		s.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				s.closed <- err
				return
			}
			s.received <- string(data)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *chatServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + protocol.DefaultPath
}

func (s *chatServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection accepted")
		return nil
	}
}

func newTestManager(t *testing.T, url string, opts ...func(*Options)) *Manager {
	t.Helper()
	o := Options{
		URL:            url,
		ReconnectDelay: 20 * time.Millisecond,
		WriteTimeout:   time.Second,
		Logger:         zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	m := NewManager(o)
	t.Cleanup(m.Disconnect)
	return m
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state never became %s", want)
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(t, srv.url())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Connect()
		}()
	}
	wg.Wait()
	waitState(t, m, StateConnected)

	m.Connect()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), srv.upgrades.Load())
	assert.Equal(t, StateConnected, m.State())
}

func TestReceiverGetsFramesInOrder(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(t, srv.url())

	var mu sync.Mutex
	var got []string
	m.SetReceiver(func(fragment string) {
		mu.Lock()
		got = append(got, fragment)
		mu.Unlock()
	})
	m.Connect()
	waitState(t, m, StateConnected)

	conn := srv.nextConn(t)
	for _, f := range []string{"Hel", "lo!", "  ", protocol.Sentinel} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Hel", "lo!", "  ", protocol.Sentinel}, got)
}

func TestSendWritesQuestionFrame(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(t, srv.url())
	m.Connect()
	waitState(t, m, StateConnected)

	require.NoError(t, m.Send(protocol.Question{Question: "Hi"}))
	select {
	case frame := <-srv.received:
		assert.JSONEq(t, `{"question":"Hi"}`, frame)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not receive the question")
	}
}

func TestSendWithoutChannel(t *testing.T) {
	m := newTestManager(t, "ws://127.0.0.1:1/ws/chat")
	err := m.Send(protocol.Question{Question: "Hi"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestReconnectsAfterDrop(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(t, srv.url())

	var mu sync.Mutex
	var seen []State
	m.OnStateChange(func(_, to State) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	})
	m.Connect()
	waitState(t, m, StateConnected)

	srv.nextConn(t).Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return srv.upgrades.Load() == 2 && len(seen) == 5 && seen[4] == StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateReconnecting, StateConnecting, StateConnected}, seen)
}

func TestDisconnectClosesChannel(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(t, srv.url())
	m.Connect()
	waitState(t, m, StateConnected)
	srv.nextConn(t)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	select {
	case err := <-srv.closed:
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("server side never saw the close")
	}

	assert.ErrorIs(t, m.Send(protocol.Question{Question: "later"}), ErrNotConnected)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), srv.upgrades.Load())
}

type flakyDialer struct {
	failures int32
	attempts atomic.Int32
	next     Dialer
}

func (d *flakyDialer) Dial(ctx context.Context, url string) (Conn, error) {
	n := d.attempts.Add(1)
	if d.next == nil || n <= d.failures {
		return nil, errors.New("connection refused")
	}
	return d.next.Dial(ctx, url)
}

func TestRetriesUntilEndpointAppears(t *testing.T) {
	srv := newChatServer(t)
	dialer := &flakyDialer{failures: 3, next: WebsocketDialer{HandshakeTimeout: time.Second}}
	m := newTestManager(t, srv.url(), func(o *Options) {
		o.Dialer = dialer
		o.ReconnectDelay = 5 * time.Millisecond
	})

	m.Connect()
	waitState(t, m, StateConnected)
	assert.Equal(t, int32(4), dialer.attempts.Load())
	assert.Equal(t, int32(1), srv.upgrades.Load())
}

func TestDisconnectStopsRetrying(t *testing.T) {
	dialer := &flakyDialer{}
	m := newTestManager(t, "ws://unused/ws/chat", func(o *Options) {
		o.Dialer = dialer
		o.ReconnectDelay = 5 * time.Millisecond
	})

	m.Connect()
	require.Eventually(t, func() bool { return dialer.attempts.Load() >= 3 }, 2*time.Second, time.Millisecond)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
	time.Sleep(20 * time.Millisecond)
	settled := dialer.attempts.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, dialer.attempts.Load())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestStateListenerMayCallBack(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(t, srv.url())

	var mu sync.Mutex
	var observed []State
	m.OnStateChange(func(_, to State) {
		current := m.State()
		mu.Lock()
		observed = append(observed, current)
		mu.Unlock()
		if to == StateConnected {
			m.Connect()
		}
	})

	m.Connect()
	waitState(t, m, StateConnected)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) == 2
	}, time.Second, 5*time.Millisecond)
}
