package chat

import (
	"context"
	"iter"
)

// EventType discriminates stream events.
type EventType string

// Stream event types.
const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
)

// Event is one item of a streamed chat turn. Chunk events carry answer
// fragments in Data; the final done event carries the full Result.
type Event struct {
	Type   EventType
	Data   string
	Result *Result
}

// Stream runs Answer and yields answer fragments as they are generated,
// then one done event with the complete result. Iteration stops early if
// the consumer breaks or the context is canceled; the generation goroutine
// always drains and exits.
func (e *Engine) Stream(ctx context.Context, req Request) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		events := make(chan Event)
		errs := make(chan error, 1)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			defer close(events)
			req.OnToken = func(token string) {
				select {
				case events <- Event{Type: EventChunk, Data: token}:
				case <-ctx.Done():
				}
			}
			result, err := e.Answer(ctx, req)
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- Event{Type: EventDone, Result: result}:
			case <-ctx.Done():
			}
		}()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					// Closed without a done event: an error follows.
					select {
					case err := <-errs:
						yield(Event{}, err)
					case <-ctx.Done():
						yield(Event{}, ctx.Err())
					}
					return
				}
				if !yield(ev, nil) {
					return
				}
				if ev.Type == EventDone {
					return
				}
			case <-ctx.Done():
				yield(Event{}, ctx.Err())
				return
			}
		}
	}
}
