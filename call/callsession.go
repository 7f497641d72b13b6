package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/mrsingh-rishi/voice-bot/codec"
	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/model"
	"github.com/mrsingh-rishi/voice-bot/output"
	"github.com/mrsingh-rishi/voice-bot/queue"
	"github.com/mrsingh-rishi/voice-bot/turn"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/mrsingh-rishi/voice-bot/workers"
	"github.com/pkg/errors"
)

// Conn is the Twilio media stream websocket of one call.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// CallSession owns everything belonging to one phone call: the caller
// websocket, the transcription connection, the turn accumulator and the two
// workers between them. Nothing in it is shared with other calls.
type CallSession struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc

	ws                  Conn
	Transcriber         Transcriber
	OutputWorker        *output.TwilioOutput
	TranscriptionWorker *workers.TranscriptionWorker
	AgentWorker         *workers.AgentWorker

	logger  *slog.Logger
	metrics *metrics.Metrics

	// Only touched by the read loop.
	streamLogger *slog.Logger
	streamSid    string
	callSid      string
	mediaSeen    bool

	closeOnce sync.Once
}

func NewCallSession(ctx context.Context, ws Conn, deps Dependencies, logger *slog.Logger, m *metrics.Metrics) (*CallSession, error) {
	if ws == nil {
		return nil, fmt.Errorf("websocket connection is required")
	}
	if deps.NewTranscriber == nil || deps.NewComposer == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("incomplete call dependencies")
	}

	id := uuid.NewString()
	logger = logger.With("session_id", id)
	ctx, cancel := context.WithCancel(ctx)

	composer, err := deps.NewComposer()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "reply composer")
	}

	outputWorker, err := output.NewTwilioOutput(ws, logger, m)
	if err != nil {
		cancel()
		return nil, err
	}

	transcriber := deps.NewTranscriber(logger)
	utterances := queue.New[model.Utterance]()

	transcriptionWorker, err := workers.NewTranscriptionWorker(ctx, transcriber.Events(), utterances,
		turn.New(deps.AccumulatorOptions...), logger, m)
	if err != nil {
		cancel()
		return nil, err
	}
	agentWorker, err := workers.NewAgentWorker(ctx, id, utterances, composer, deps.Synthesizer,
		outputWorker, logger, m)
	if err != nil {
		cancel()
		return nil, err
	}

	cs := &CallSession{
		ID:                  id,
		ctx:                 ctx,
		cancel:              cancel,
		ws:                  ws,
		Transcriber:         transcriber,
		OutputWorker:        outputWorker,
		TranscriptionWorker: transcriptionWorker,
		AgentWorker:         agentWorker,
		logger:              logger,
		metrics:             m,
		streamLogger:        logger,
	}
	agentWorker.OnChannelClosed = func(err error) {
		cs.logger.Warn("Caller connection lost, ending call", "error", err)
		cs.Close()
	}
	return cs, nil
}

// Run serves the call until the caller hangs up or either connection drops.
// It blocks until every goroutine of the session has exited.
func (cs *CallSession) Run() {
	cs.metrics.RecordSessionStarted()
	cs.logger.Info("Call session started")

	cs.TranscriptionWorker.Start()
	cs.AgentWorker.Start()
	go cs.connectTranscriber()
	go cs.watchTranscriber()

	cs.readLoop()
	cs.Close()

	<-cs.TranscriptionWorker.Done()
	<-cs.AgentWorker.Done()
	cs.logger.Info("Call session ended")
}

// connectTranscriber dials in the background so caller frames keep being read
// while the handshake is pending; those frames are dropped as not ready.
func (cs *CallSession) connectTranscriber() {
	if err := cs.Transcriber.Connect(cs.ctx); err != nil {
		if cs.ctx.Err() == nil {
			cs.logger.Error("Failed to connect to transcriber", "error", err)
		}
		cs.Close()
	}
}

func (cs *CallSession) watchTranscriber() {
	select {
	case <-cs.Transcriber.Done():
		if cs.ctx.Err() == nil {
			cs.logger.Warn("Transcription connection ended, closing call")
			cs.Close()
		}
	case <-cs.ctx.Done():
	}
}

func (cs *CallSession) readLoop() {
	for {
		_, msg, err := cs.ws.ReadMessage()
		if err != nil {
			switch {
			case cs.ctx.Err() != nil:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				cs.streamLogger.Info("WebSocket closed normally", "error", err)
			default:
				cs.streamLogger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var ev twilioEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			cs.metrics.RecordFrameDropped(metrics.DropMalformed)
			cs.streamLogger.Warn("Dropping malformed message", "error", errors.Wrap(types.ErrMalformedFrame, err.Error()))
			continue
		}

		if ev.Event == "media" {
			cs.onFrame(ev)
			continue
		}
		if !cs.onControl(ev) {
			return
		}
	}
}

// onFrame forwards one caller audio frame to the transcriber, in arrival order
// and without buffering.
func (cs *CallSession) onFrame(ev twilioEvent) {
	if !cs.mediaSeen {
		cs.mediaSeen = true
		cs.streamLogger.Info("Receiving caller audio", "track", ev.Media.Track)
	}

	payload, err := codec.Decode(ev.Media.Payload)
	if err != nil {
		cs.metrics.RecordFrameDropped(metrics.DropMalformed)
		cs.streamLogger.Warn("Dropping audio frame", "chunk", ev.Media.Chunk, "error", err)
		return
	}

	err = cs.Transcriber.SendAudio(model.AudioFrame{StreamSid: ev.StreamSid, Payload: payload})
	switch {
	case err == nil:
		cs.metrics.RecordFrameForwarded()
	case errors.Is(err, types.ErrNotReady):
		cs.metrics.RecordFrameDropped(metrics.DropNotReady)
		cs.streamLogger.Debug("Transcriber not ready, audio frame dropped", "chunk", ev.Media.Chunk)
	case errors.Is(err, types.ErrChannelClosed):
		cs.metrics.RecordFrameDropped(metrics.DropClosed)
		cs.streamLogger.Warn("Transcription connection closed, ending call", "error", err)
		cs.Close()
	default:
		cs.streamLogger.Warn("Failed to forward audio frame", "error", err)
	}
}

// onControl updates session state for a lifecycle event. It reports false when
// the caller ended the stream.
func (cs *CallSession) onControl(ev twilioEvent) bool {
	switch ev.Event {
	case "connected":
		cs.streamLogger.Info("Media stream connected", "protocol", ev.Protocol)
	case "start":
		cs.streamSid = ev.Start.StreamSid
		if cs.streamSid == "" {
			cs.streamSid = ev.StreamSid
		}
		cs.callSid = ev.Start.CallSid
		cs.streamLogger = cs.streamLogger.With("stream_sid", cs.streamSid, "call_sid", cs.callSid)
		cs.OutputWorker.SetStreamSid(cs.streamSid)
		cs.streamLogger.Info("Stream started",
			"encoding", ev.Start.MediaFormat.Encoding,
			"sample_rate", ev.Start.MediaFormat.SampleRate,
			"channels", ev.Start.MediaFormat.Channels,
		)
	case "mark":
		cs.streamLogger.Info("Reply played", "mark", ev.Mark.Name)
	case "stop", "close":
		cs.streamLogger.Info("Stream stopped", "event", ev.Event)
		return false
	default:
		cs.streamLogger.Info("Unknown event", "event", ev.Event)
	}
	return true
}

// Close tears the call down. The caller output is closed first so that a reply
// finishing after this point is discarded instead of written. Close is safe to
// call more than once and from any goroutine.
func (cs *CallSession) Close() {
	cs.closeOnce.Do(func() {
		cs.OutputWorker.Close()
		cs.cancel()
		cs.AgentWorker.Stop()
		cs.TranscriptionWorker.Stop()
		if err := cs.Transcriber.Close(); err != nil {
			cs.logger.Debug("Error closing transcriber", "error", err)
		}
		if err := cs.ws.Close(); err != nil {
			cs.logger.Debug("Error closing websocket", "error", err)
		}
	})
}
