package types

// EventKind tags a TranscriptEvent.
type EventKind int

const (
	EventPartial EventKind = iota
	EventFinal
	EventUtteranceEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// TranscriptEvent is one decoded message from the transcriber.
//
// Text is set for partial and final results, SpeechFinal only for final
// results, and Reason only for errors.
type TranscriptEvent struct {
	Kind        EventKind
	Text        string
	SpeechFinal bool
	Confidence  float64
	Reason      string
}

func Partial(text string) TranscriptEvent {
	return TranscriptEvent{Kind: EventPartial, Text: text}
}

func Final(text string, speechFinal bool) TranscriptEvent {
	return TranscriptEvent{Kind: EventFinal, Text: text, SpeechFinal: speechFinal}
}

func UtteranceEnd() TranscriptEvent {
	return TranscriptEvent{Kind: EventUtteranceEnd}
}

func Error(reason string) TranscriptEvent {
	return TranscriptEvent{Kind: EventError, Reason: reason}
}
