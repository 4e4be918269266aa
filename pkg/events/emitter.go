package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Emitter is the per-request event stream between the workflow engine
// and the HTTP edge. Emit blocks once the buffer is full, so a stalled
// transport stalls upstream backend iteration instead of queueing
// events without bound.
type Emitter struct {
	ch    chan Event
	stats Stats
}

// NewEmitter creates an emitter with a small delivery buffer.
func NewEmitter(buffer int) *Emitter {
	if buffer < 0 {
		buffer = 0
	}
	return &Emitter{ch: make(chan Event, buffer)}
}

// Emit delivers an event, blocking until the consumer accepts it or
// the context is cancelled. Token events update the running stats.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if ev.Type == TypeToken {
		e.stats.Tokens++
		switch ev.Channel {
		case ChannelReasoning:
			e.stats.ReasoningTokens++
		case ChannelFinal:
			e.stats.FinalTokens++
		}
	}
	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the stream.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Stats returns the token counts accumulated so far.
func (e *Emitter) Stats() Stats {
	return e.stats
}

// Close ends the stream. Must be called exactly once by the producer
// after the terminal event is emitted.
func (e *Emitter) Close() {
	close(e.ch)
}

// EncodeSSE renders the event as a single server-sent-events frame:
// a "data: " line carrying the compact JSON encoding of the record.
func EncodeSSE(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %q: %w", ev.Type, err)
	}
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	return buf, nil
}
