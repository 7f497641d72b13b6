package call

import (
	"context"
	"log/slog"

	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/mrsingh-rishi/voice-bot/llm"
	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/model"
	"github.com/mrsingh-rishi/voice-bot/stt"
	"github.com/mrsingh-rishi/voice-bot/tts"
	"github.com/mrsingh-rishi/voice-bot/turn"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/mrsingh-rishi/voice-bot/workers"
	"github.com/pkg/errors"
)

// Transcriber is the live transcription connection of one call.
type Transcriber interface {
	Connect(ctx context.Context) error
	SendAudio(frame model.AudioFrame) error
	Events() <-chan types.TranscriptEvent
	Done() <-chan struct{}
	Close() error
}

// Dependencies builds the per-call collaborators. Synthesizer is shared by
// every call; the rest are created fresh for each session.
type Dependencies struct {
	NewTranscriber     func(logger *slog.Logger) Transcriber
	NewComposer        func() (workers.Composer, error)
	Synthesizer        workers.Synthesizer
	AccumulatorOptions []turn.Option
}

func NewDependencies(cfg *config.Config, m *metrics.Metrics) (Dependencies, error) {
	synthesizer, err := tts.NewElevenLabsClient(cfg.ElevenLabs)
	if err != nil {
		return Dependencies{}, errors.Wrap(err, "elevenlabs")
	}

	sttConfig := stt.Config{
		URL:          cfg.Deepgram.URL,
		APIKey:       cfg.Deepgram.APIKey,
		KeepAlive:    cfg.Deepgram.KeepAliveInterval(),
		WriteTimeout: cfg.Deepgram.WriteTimeoutDuration(),
		Options:      stt.OptionsFromConfig(cfg.Deepgram),
	}
	deps := Dependencies{
		NewTranscriber: func(logger *slog.Logger) Transcriber {
			return stt.NewDeepgramClient(sttConfig, logger, m)
		},
		Synthesizer: synthesizer,
	}

	switch cfg.Reply.Mode {
	case config.ReplyModeOpenAI:
		openaiConfig := cfg.OpenAI
		deps.NewComposer = func() (workers.Composer, error) {
			client, err := llm.NewOpenAIClient(openaiConfig)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	default:
		deps.NewComposer = func() (workers.Composer, error) {
			return llm.Echo{}, nil
		}
	}

	if cfg.Deepgram.EmptyFinalResetsLatch {
		deps.AccumulatorOptions = append(deps.AccumulatorOptions, turn.WithEmptyFinalResetsLatch())
	}
	return deps, nil
}
