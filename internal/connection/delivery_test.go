package connection

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/menuchat/internal/protocol"
)

type fakeLink struct {
	mu       sync.Mutex
	state    State
	connects int
	results  []error
	sent     []protocol.Question
}

func (l *fakeLink) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLink) Connect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
}

func (l *fakeLink) Send(q protocol.Question) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if len(l.results) > 0 {
		err = l.results[0]
		l.results = l.results[1:]
	}
	if err == nil {
		l.sent = append(l.sent, q)
	}
	return err
}

func (l *fakeLink) sentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

func immediately(_ time.Duration, f func()) *time.Timer {
	f()
	return nil
}

func TestDeliverSendsWhenConnected(t *testing.T) {
	link := &fakeLink{state: StateConnected}
	d := NewRetryOnceDeliverer(link, time.Second, nil, zerolog.Nop())

	d.Deliver(protocol.Question{Question: "Hi"})

	assert.Equal(t, 0, link.connects)
	assert.Equal(t, []protocol.Question{{Question: "Hi"}}, link.sent)
}

func TestDeliverConnectsAndRetriesOnce(t *testing.T) {
	link := &fakeLink{state: StateConnecting, results: []error{ErrNotConnected, nil}}
	d := NewRetryOnceDeliverer(link, 10*time.Millisecond, nil, zerolog.Nop())

	d.Deliver(protocol.Question{Question: "What is spicy?"})

	assert.Equal(t, 1, link.connects)
	assert.Eventually(t, func() bool { return link.sentCount() == 1 }, time.Second, 2*time.Millisecond)
}

func TestDeliverDropsAfterSecondFailure(t *testing.T) {
	link := &fakeLink{results: []error{ErrNotConnected, ErrNotConnected, nil}}

	var mu sync.Mutex
	var dropped []protocol.Question
	var dropErr error
	d := NewRetryOnceDeliverer(link, time.Second, func(q protocol.Question, err error) {
		mu.Lock()
		defer mu.Unlock()
		dropped = append(dropped, q)
		dropErr = err
	}, zerolog.Nop())
	d.afterFunc = immediately

	d.Deliver(protocol.Question{Question: "Hi"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dropped, 1)
	assert.Equal(t, "Hi", dropped[0].Question)
	assert.ErrorIs(t, dropErr, ErrNotConnected)
	assert.Equal(t, 0, link.sentCount())
	assert.Len(t, link.results, 1, "exactly two send attempts expected")
}

func TestDeliverRetriesWriteErrors(t *testing.T) {
	link := &fakeLink{state: StateConnected, results: []error{errors.New("broken pipe"), nil}}
	d := NewRetryOnceDeliverer(link, time.Second, nil, zerolog.Nop())
	d.afterFunc = immediately

	d.Deliver(protocol.Question{Question: "Hi"})

	assert.Equal(t, 1, link.sentCount())
}

func TestDeliverThroughManager(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(t, srv.url())
	d := NewRetryOnceDeliverer(m, 200*time.Millisecond, func(q protocol.Question, err error) {
		t.Errorf("question dropped: %v", err)
	}, zerolog.Nop())

	d.Deliver(protocol.Question{Question: "Do you have noodles?"})

	select {
	case frame := <-srv.received:
		assert.JSONEq(t, `{"question":"Do you have noodles?"}`, frame)
	case <-time.After(2 * time.Second):
		t.Fatalf("question never reached the server")
	}
}
