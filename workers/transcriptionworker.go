package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/model"
	"github.com/mrsingh-rishi/voice-bot/queue"
	"github.com/mrsingh-rishi/voice-bot/turn"
	"github.com/mrsingh-rishi/voice-bot/types"
)

// TranscriptionWorker applies transcript events to the turn accumulator in
// arrival order and queues every completed utterance for the AgentWorker.
type TranscriptionWorker struct {
	ctx                       context.Context
	cancel                    context.CancelFunc
	TranscriptionInputChannel <-chan types.TranscriptEvent
	Utterances                *queue.Queue[model.Utterance]
	accumulator               *turn.Accumulator
	logger                    *slog.Logger
	metrics                   *metrics.Metrics
	seq                       uint64
	done                      chan struct{}
}

func NewTranscriptionWorker(
	ctx context.Context,
	transcriptionInputChannel <-chan types.TranscriptEvent,
	utterances *queue.Queue[model.Utterance],
	accumulator *turn.Accumulator,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*TranscriptionWorker, error) {
	// Params Validation
	if transcriptionInputChannel == nil {
		return nil, fmt.Errorf("transcription input channel is required")
	}
	if utterances == nil {
		return nil, fmt.Errorf("utterance queue is required")
	}
	if accumulator == nil {
		return nil, fmt.Errorf("accumulator is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	return &TranscriptionWorker{
		ctx:                       ctx,
		cancel:                    cancel,
		TranscriptionInputChannel: transcriptionInputChannel,
		Utterances:                utterances,
		accumulator:               accumulator,
		logger:                    logger,
		metrics:                   m,
		done:                      make(chan struct{}),
	}, nil
}

func (tw *TranscriptionWorker) Start() {
	go func() {
		defer close(tw.done)
		for {
			select {
			case <-tw.ctx.Done():
				return
			case ev, ok := <-tw.TranscriptionInputChannel:
				if !ok {
					return
				}
				tw.handle(ev)
			}
		}
	}()
}

func (tw *TranscriptionWorker) handle(ev types.TranscriptEvent) {
	switch ev.Kind {
	case types.EventPartial:
		if ev.Text != "" {
			tw.logger.Debug("Got Partial Transcription", "text", ev.Text, "confidence", ev.Confidence)
		}
	case types.EventFinal:
		tw.logger.Info("Got Final Transcription", "text", ev.Text, "speech_final", ev.SpeechFinal, "confidence", ev.Confidence)
	}

	text, flushed, err := tw.accumulator.Apply(ev)
	if err != nil {
		tw.logger.Warn("Transcriber reported an error", "error", err)
		return
	}
	if !flushed {
		return
	}

	tw.seq++
	tw.metrics.RecordUtteranceFlushed()
	tw.logger.Info("Utterance complete", "seq", tw.seq, "text", text)
	if !tw.Utterances.Enqueue(model.Utterance{Seq: tw.seq, Text: text}) {
		tw.logger.Debug("Utterance dropped, session is closing", "seq", tw.seq)
	}
}

// Done is closed when the worker has stopped reading events.
func (tw *TranscriptionWorker) Done() <-chan struct{} {
	return tw.done
}

func (tw *TranscriptionWorker) Stop() {
	tw.cancel()
}
