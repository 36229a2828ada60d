package asfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/herlein/asfs/pkg/radio"
)

// Handle runs the handler of one radio event to completion. Events are
// serialized: a Handle call never overlaps another handler of this session.
// A returned error satisfying IsFatal means the radio must be considered
// unusable.
func (s *Session) Handle(ev radio.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle(ev)
}

func (s *Session) handle(ev radio.Event) error {
	switch ev {
	case radio.EventCadDoneDetected:
		return s.onCadDoneDetected()
	case radio.EventCadDoneUndetected:
		return s.onCadDoneUndetected()
	case radio.EventPreambleDetected:
		return s.onPreambleDetected()
	case radio.EventPreambleUndetected:
		return s.onPreambleUndetected()
	case radio.EventRxDone:
		return s.onRxDone()
	case radio.EventRxError:
		return s.onRxError()
	default:
		return fmt.Errorf("%w: %v", ErrUnknownEvent, ev)
	}
}

// OnCadDoneDetected handles a CAD that found activity
func (s *Session) OnCadDoneDetected() error { return s.Handle(radio.EventCadDoneDetected) }

// OnCadDoneUndetected handles a CAD that found nothing
func (s *Session) OnCadDoneUndetected() error { return s.Handle(radio.EventCadDoneUndetected) }

func (s *Session) OnPreambleDetected() error   { return s.Handle(radio.EventPreambleDetected) }
func (s *Session) OnPreambleUndetected() error { return s.Handle(radio.EventPreambleUndetected) }

// OnRxDone handles a completed reception
func (s *Session) OnRxDone() error { return s.Handle(radio.EventRxDone) }

// OnRxError handles a corrupted reception
func (s *Session) OnRxError() error { return s.Handle(radio.EventRxError) }

// Dispatcher feeds interrupt events to a session one at a time
type Dispatcher struct {
	session *Session
}

// NewDispatcher creates a dispatcher for session
func NewDispatcher(session *Session) *Dispatcher {
	return &Dispatcher{session: session}
}

// Run handles events until ctx is done, the channel is closed or a handler
// fails fatally. Non-fatal handler errors are logged and skipped.
func (d *Dispatcher) Run(ctx context.Context, events <-chan radio.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			err := d.session.Handle(ev)
			if err == nil {
				continue
			}
			if IsFatal(err) {
				return fmt.Errorf("handling %v: %w", ev, err)
			}
			if errors.Is(err, ErrUnknownEvent) {
				d.session.log.Warn().Stringer("event", ev).Msg("ignoring unknown event")
				continue
			}
			d.session.log.Error().Err(err).Stringer("event", ev).Msg("event handler failed")
		}
	}
}
