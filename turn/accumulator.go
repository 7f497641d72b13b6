// Package turn decides when a caller has finished speaking.
//
// Deepgram reports the end of a turn twice: as speech_final on the last final
// result and as a separate UtteranceEnd message after a silence timeout. The
// two can arrive in either order or not at all. The Accumulator latches the
// first one so that each spoken turn is flushed exactly once.
package turn

import (
	"strings"

	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
)

type State int

const (
	// StateIdle: nothing buffered, no turn has just ended.
	StateIdle State = iota
	// StateAccumulating: final fragments are buffered and the turn is still open.
	StateAccumulating
	// StateFlushed: the last turn was flushed on speech_final; a trailing UtteranceEnd is ignored.
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

type Option func(*Accumulator)

// WithEmptyFinalResetsLatch makes a blank final result clear the speech_final
// latch. By default a blank final leaves the latch alone.
func WithEmptyFinalResetsLatch() Option {
	return func(a *Accumulator) {
		a.emptyFinalResetsLatch = true
	}
}

// Accumulator is not safe for concurrent use; one goroutine per call feeds it
// events in arrival order.
type Accumulator struct {
	fragments   []string
	speechFinal bool

	emptyFinalResetsLatch bool
}

func New(opts ...Option) *Accumulator {
	a := &Accumulator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply feeds one event into the accumulator. When the event completes a
// turn it returns the turn text and true. Error events come back as a
// non-fatal ErrUpstreamError and leave the state untouched.
func (a *Accumulator) Apply(ev types.TranscriptEvent) (string, bool, error) {
	switch ev.Kind {
	case types.EventPartial:
		return "", false, nil

	case types.EventFinal:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			if a.emptyFinalResetsLatch {
				a.speechFinal = false
			}
			return "", false, nil
		}
		a.fragments = append(a.fragments, text)
		if ev.SpeechFinal {
			a.speechFinal = true
			return a.flush(), true, nil
		}
		a.speechFinal = false
		return "", false, nil

	case types.EventUtteranceEnd:
		if a.speechFinal || len(a.fragments) == 0 {
			return "", false, nil
		}
		a.speechFinal = true
		return a.flush(), true, nil

	case types.EventError:
		return "", false, errors.Wrap(types.ErrUpstreamError, ev.Reason)
	}

	return "", false, nil
}

func (a *Accumulator) flush() string {
	text := strings.Join(a.fragments, " ")
	a.fragments = a.fragments[:0]
	return text
}

// Pending returns the buffered text of the open turn.
func (a *Accumulator) Pending() string {
	return strings.Join(a.fragments, " ")
}

func (a *Accumulator) State() State {
	switch {
	case len(a.fragments) > 0:
		return StateAccumulating
	case a.speechFinal:
		return StateFlushed
	default:
		return StateIdle
	}
}
