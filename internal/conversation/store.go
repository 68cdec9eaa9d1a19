// Package conversation holds the ordered chat log shared by every surface.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/menuchat/internal/connection"
	"github.com/xiaot623/gogo/menuchat/internal/protocol"
)

var (
	// ErrEmptyInput is returned when the submitted text is blank.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned under BusyReject while an answer is streaming.
	ErrBusy = errors.New("answer in progress")
)

// Message is one entry of the conversation log.
type Message struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	IsUser      bool   `json:"is_user"`
	IsStreaming bool   `json:"is_streaming"`
}

// Snapshot is a copy of the store state handed to readers and observers.
type Snapshot struct {
	Messages  []Message `json:"messages"`
	Composing bool      `json:"composing"`
}

// Last returns the newest message, if any.
func (s Snapshot) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Observer receives a snapshot after every mutation. It must not call back
// into the store's mutating methods.
type Observer func(Snapshot)

// BusyPolicy decides what Submit does while an answer is still streaming.
type BusyPolicy string

const (
	// BusyAllow accepts the submit and finalizes the unfinished answer as-is.
	BusyAllow BusyPolicy = "allow"
	// BusyReject refuses the submit with ErrBusy.
	BusyReject BusyPolicy = "reject"
	// BusyQueue holds the submit until the current answer finishes.
	BusyQueue BusyPolicy = "queue"
)

// ParseBusyPolicy maps a config value to a policy. An empty value means BusyAllow.
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch p := BusyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return BusyAllow, nil
	case BusyAllow, BusyReject, BusyQueue:
		return p, nil
	default:
		return "", fmt.Errorf("unknown busy policy %q", s)
	}
}

// Store is the single source of truth for the conversation.
//
// Lock order is notifyMu then mu. Mutations run under both; observers run
// under notifyMu only, so they see mutations in order and Snapshot stays
// available to them.
type Store struct {
	deliverer connection.Deliverer
	policy    BusyPolicy
	logger    zerolog.Logger

	notifyMu sync.Mutex

	mu        sync.Mutex
	messages  []Message
	composing bool
	queue     []string
	observers map[string]Observer
	order     []string
	nextSubID int
}

// NewStore creates an empty store delivering questions through d.
func NewStore(d connection.Deliverer, policy BusyPolicy, logger zerolog.Logger) *Store {
	if policy == "" {
		policy = BusyAllow
	}
	return &Store{
		deliverer: d,
		policy:    policy,
		logger:    logger.With().Str("component", "conversation").Logger(),
		observers: make(map[string]Observer),
	}
}

// Submit records a user question, opens an answer placeholder and hands the
// question to the deliverer. Observers see the user message, the composing
// flag and the placeholder together in one snapshot before Submit returns.
func (s *Store) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	s.notifyMu.Lock()
	s.mu.Lock()
	if s.composing {
		switch s.policy {
		case BusyReject:
			s.mu.Unlock()
			s.notifyMu.Unlock()
			return ErrBusy
		case BusyQueue:
			s.queue = append(s.queue, text)
			queued := len(s.queue)
			s.mu.Unlock()
			s.notifyMu.Unlock()
			s.logger.Debug().Int("queued", queued).Msg("question queued behind streaming answer")
			return nil
		default:
			s.finalizeLocked()
		}
	}
	s.openTurnLocked(text)
	s.publishAndUnlock()

	s.deliverer.Deliver(protocol.Question{Question: text})
	return nil
}

// AppendChunk grows the streaming answer. It reports false, without
// mutating, when the last message is not a streaming answer.
func (s *Store) AppendChunk(chunk string) bool {
	s.notifyMu.Lock()
	s.mu.Lock()
	last := s.streamingLocked()
	if last == nil {
		s.mu.Unlock()
		s.notifyMu.Unlock()
		return false
	}
	last.Text += chunk
	s.publishAndUnlock()
	return true
}

// FinishAnswer clears composing and finalizes the streaming answer, if any.
// It reports whether anything changed. Under BusyQueue the next queued
// question is submitted afterwards.
func (s *Store) FinishAnswer() bool {
	s.notifyMu.Lock()
	s.mu.Lock()
	changed := s.composing
	s.composing = false
	if s.finalizeLocked() {
		changed = true
	}
	if !changed {
		s.mu.Unlock()
		s.notifyMu.Unlock()
		return false
	}

	var next string
	if len(s.queue) > 0 {
		next = s.queue[0]
		s.queue = s.queue[1:]
	}
	s.publishAndUnlock()

	if next != "" {
		if err := s.Submit(next); err != nil {
			s.logger.Warn().Err(err).Msg("queued question not submitted")
		}
	}
	return true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Pending returns the number of queued questions.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Subscribe registers an observer and returns its id.
func (s *Store) Subscribe(fn Observer) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := fmt.Sprintf("sub-%d", s.nextSubID)
	s.observers[id] = fn
	s.order = append(s.order, id)
	return id
}

// Unsubscribe removes an observer. Unknown ids are ignored.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.observers[id]; !ok {
		return
	}
	delete(s.observers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) openTurnLocked(text string) {
	s.messages = append(s.messages,
		Message{ID: uuid.NewString(), Text: text, IsUser: true},
		Message{ID: uuid.NewString(), IsStreaming: true},
	)
	s.composing = true
}

// finalizeLocked closes the streaming answer and reports whether there was one.
func (s *Store) finalizeLocked() bool {
	last := s.streamingLocked()
	if last == nil {
		return false
	}
	last.IsStreaming = false
	return true
}

// streamingLocked returns the last message when it is an open answer.
func (s *Store) streamingLocked() *Message {
	n := len(s.messages)
	if n == 0 || s.messages[n-1].IsUser || !s.messages[n-1].IsStreaming {
		return nil
	}
	return &s.messages[n-1]
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{Messages: msgs, Composing: s.composing}
}

// publishAndUnlock must be called with both locks held. It releases mu,
// notifies observers in subscription order, then releases notifyMu.
func (s *Store) publishAndUnlock() {
	snap := s.snapshotLocked()
	observers := make([]Observer, 0, len(s.order))
	for _, id := range s.order {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	s.notifyMu.Unlock()
}
