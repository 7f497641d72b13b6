package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/model"
	"github.com/mrsingh-rishi/voice-bot/queue"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mrsingh-rishi/voice-bot/workers"

// Composer turns the caller's utterance into the text to speak back.
type Composer interface {
	Compose(ctx context.Context, input string) (string, error)
}

// Synthesizer converts reply text to caller-ready audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ReplySink plays reply audio to the caller and returns the mark name used.
type ReplySink interface {
	SendReply(audio []byte) (string, error)
}

// AgentWorker answers completed utterances one at a time. A single goroutine
// drains the utterance queue, so at most one synthesis request is in flight
// per call and replies reach the caller in the order their turns ended.
type AgentWorker struct {
	ctx         context.Context
	cancel      context.CancelFunc
	sessionID   string
	Utterances  *queue.Queue[model.Utterance]
	Composer    Composer
	Synthesizer Synthesizer
	Output      ReplySink
	// OnChannelClosed is called when the caller connection can no longer be written.
	OnChannelClosed func(error)
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	done            chan struct{}
}

func NewAgentWorker(
	ctx context.Context,
	sessionID string,
	utterances *queue.Queue[model.Utterance],
	composer Composer,
	synthesizer Synthesizer,
	output ReplySink,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*AgentWorker, error) {
	// Params Validation
	if utterances == nil {
		return nil, fmt.Errorf("utterance queue is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if output == nil {
		return nil, fmt.Errorf("output is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	return &AgentWorker{
		ctx:             ctx,
		cancel:          cancel,
		sessionID:       sessionID,
		Utterances:      utterances,
		Composer:        composer,
		Synthesizer:     synthesizer,
		Output:          output,
		OnChannelClosed: func(error) {},
		logger:          logger,
		metrics:         m,
		tracer:          otel.Tracer(tracerName),
		done:            make(chan struct{}),
	}, nil
}

func (aw *AgentWorker) Start() {
	go func() {
		defer close(aw.done)
		for {
			utterance, ok := aw.Utterances.Wait(aw.ctx)
			if !ok {
				return
			}
			aw.respond(utterance)
		}
	}()
}

func (aw *AgentWorker) respond(utterance model.Utterance) {
	ctx, span := aw.tracer.Start(aw.ctx, "agent.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", aw.sessionID),
		attribute.Int64("utterance.seq", int64(utterance.Seq)),
	)
	logger := aw.logger.With("seq", utterance.Seq)

	text, err := aw.Composer.Compose(ctx, utterance.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose failed")
		logger.Warn("Reply composition failed, skipping turn", "text", utterance.Text, "error", err)
		return
	}

	start := time.Now()
	audio, err := aw.Synthesizer.Synthesize(ctx, text)
	aw.metrics.RecordSynthesis(time.Since(start).Seconds(), err != nil)

	if aw.ctx.Err() != nil {
		aw.metrics.RecordReplyDiscarded()
		logger.Info("Call ended during synthesis, reply discarded")
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		logger.Warn("Synthesis failed, skipping turn", "text", text, "error", err)
		return
	}

	reply := model.SynthesisReply{SessionID: aw.sessionID, Audio: audio}
	reply.MarkName, err = aw.Output.SendReply(reply.Audio)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply write failed")
		if errors.Is(err, types.ErrChannelClosed) {
			aw.metrics.RecordReplyDiscarded()
			logger.Warn("Caller connection closed, reply discarded", "error", err)
			aw.OnChannelClosed(err)
			return
		}
		logger.Warn("Failed to send reply", "error", err)
		return
	}
	span.SetAttributes(attribute.String("reply.mark", reply.MarkName))
	logger.Info("Reply sent", "mark", reply.MarkName, "bytes", len(reply.Audio))
}

// Done is closed when the worker has exited.
func (aw *AgentWorker) Done() <-chan struct{} {
	return aw.done
}

// Stop cancels the in-flight turn and drops every queued utterance.
func (aw *AgentWorker) Stop() {
	aw.cancel()
	aw.Utterances.Close()
	if dropped := aw.Utterances.Clear(); dropped > 0 {
		aw.logger.Info("Dropped queued utterances", "count", dropped)
	}
}
