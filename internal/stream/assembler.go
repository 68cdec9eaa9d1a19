// Package stream turns inbound answer fragments into conversation mutations.
package stream

import (
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/menuchat/internal/protocol"
)

// Sink is the part of the conversation store the assembler writes to.
type Sink interface {
	AppendChunk(chunk string) bool
	FinishAnswer() bool
}

// Assembler applies fragments in arrival order. It keeps no state of its own.
type Assembler struct {
	sink   Sink
	logger zerolog.Logger
}

// NewAssembler creates an assembler writing into sink.
func NewAssembler(sink Sink, logger zerolog.Logger) *Assembler {
	return &Assembler{
		sink:   sink,
		logger: logger.With().Str("component", "stream").Logger(),
	}
}

// OnFragment handles one raw inbound frame. The sentinel ends the current
// answer; any other fragment is appended verbatim to the streaming answer.
// Fragments with no open answer are dropped.
func (a *Assembler) OnFragment(raw string) {
	if protocol.IsSentinel(raw) {
		if !a.sink.FinishAnswer() {
			a.logger.Debug().Msg("end of answer with nothing streaming")
		}
		return
	}
	if !a.sink.AppendChunk(raw) {
		a.logger.Debug().Int("bytes", len(raw)).Msg("fragment without open answer dropped")
	}
}
