package connection

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/menuchat/internal/protocol"
)

// Deliverer hands a question to the transport. Deliver never blocks on the
// network and never reports failure to the caller.
type Deliverer interface {
	Deliver(q protocol.Question)
}

// Link is the part of the Manager a Deliverer needs.
type Link interface {
	State() State
	Connect()
	Send(q protocol.Question) error
}

// DropHook is called when a question is given up on.
type DropHook func(q protocol.Question, err error)

// RetryOnceDeliverer sends immediately when possible and otherwise retries
// a single time after RetryDelay before dropping the question.
type RetryOnceDeliverer struct {
	link       Link
	retryDelay time.Duration
	onDrop     DropHook
	logger     zerolog.Logger
	afterFunc  func(d time.Duration, f func()) *time.Timer
}

// NewRetryOnceDeliverer creates a deliverer bound to link. onDrop may be nil.
func NewRetryOnceDeliverer(link Link, retryDelay time.Duration, onDrop DropHook, logger zerolog.Logger) *RetryOnceDeliverer {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &RetryOnceDeliverer{
		link:       link,
		retryDelay: retryDelay,
		onDrop:     onDrop,
		logger:     logger.With().Str("component", "delivery").Logger(),
		afterFunc:  time.AfterFunc,
	}
}

// Deliver sends q now, or once more after the retry delay.
func (d *RetryOnceDeliverer) Deliver(q protocol.Question) {
	if d.link.State() != StateConnected {
		d.link.Connect()
	}

	err := d.link.Send(q)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrNotConnected) {
		d.logger.Warn().Err(err).Msg("send failed, retrying once")
	} else {
		d.logger.Debug().Dur("delay", d.retryDelay).Msg("channel not ready, retrying once")
	}

	d.afterFunc(d.retryDelay, func() {
		if err := d.link.Send(q); err != nil {
			d.drop(q, err)
		}
	})
}

func (d *RetryOnceDeliverer) drop(q protocol.Question, err error) {
	d.logger.Warn().Err(err).Int("length", len(q.Question)).Msg("question dropped")
	if d.onDrop != nil {
		d.onDrop(q, err)
	}
}
