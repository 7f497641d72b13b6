package stt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/model"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
)

const (
	keepAliveMessage   = `{"type":"KeepAlive"}`
	closeStreamMessage = `{"type":"CloseStream"}`

	defaultWriteTimeout = 5 * time.Second
)

type Config struct {
	URL       string
	APIKey    string
	KeepAlive time.Duration
	// WriteTimeout bounds every write so a stalled upstream cannot hold the
	// connection lock. Zero means 5s.
	WriteTimeout time.Duration
	Options      Options
}

// DeepgramClient owns one live transcription websocket for one call.
//
// Audio written before Connect finishes is dropped with ErrNotReady. Decoded
// transcript events are delivered on Events in the order Deepgram sent them;
// the channel is closed when the connection ends.
type DeepgramClient struct {
	config  Config
	dialer  *gws.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics

	connMu sync.Mutex
	conn   *gws.Conn

	ready  atomic.Bool
	closed atomic.Bool

	events    chan types.TranscriptEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewDeepgramClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) *DeepgramClient {
	return &DeepgramClient{
		config:  cfg,
		dialer:  gws.DefaultDialer,
		logger:  logger,
		metrics: m,
		events:  make(chan types.TranscriptEvent),
		done:    make(chan struct{}),
	}
}

// Connect dials Deepgram and starts the reader and keep-alive goroutines.
// Both stop when ctx is done or the connection drops. Connect must be called
// at most once.
func (dg *DeepgramClient) Connect(ctx context.Context) error {
	listenURL, err := dg.config.Options.ListenURL(dg.config.URL)
	if err != nil {
		return errors.Wrap(err, "invalid deepgram url")
	}

	header := http.Header{
		"Authorization": {fmt.Sprintf("Token %s", dg.config.APIKey)},
	}
	conn, _, err := dg.dialer.DialContext(ctx, listenURL, header)
	if err != nil {
		dg.shutdown()
		close(dg.events)
		return errors.Wrap(err, "deepgram dial error")
	}

	dg.connMu.Lock()
	if dg.closed.Load() {
		dg.connMu.Unlock()
		conn.Close()
		close(dg.events)
		return errors.Wrap(types.ErrChannelClosed, "deepgram client closed while dialing")
	}
	dg.conn = conn
	dg.ready.Store(true)
	dg.connMu.Unlock()

	dg.logger.Info("Connected to Deepgram")

	go dg.readMessages(ctx, conn)
	go dg.keepAlive(ctx)

	return nil
}

func (dg *DeepgramClient) Ready() bool {
	return dg.ready.Load()
}

// Events returns the decoded transcript events.
func (dg *DeepgramClient) Events() <-chan types.TranscriptEvent {
	return dg.events
}

// Done is closed once the connection has ended for any reason.
func (dg *DeepgramClient) Done() <-chan struct{} {
	return dg.done
}

// SendAudio forwards one frame as a binary message.
func (dg *DeepgramClient) SendAudio(frame model.AudioFrame) error {
	if dg.closed.Load() {
		return errors.Wrap(types.ErrChannelClosed, "deepgram connection closed")
	}
	if !dg.ready.Load() {
		return types.ErrNotReady
	}
	// An empty binary message asks Deepgram to close the stream.
	if len(frame.Payload) == 0 {
		return nil
	}

	dg.connMu.Lock()
	defer dg.connMu.Unlock()
	if dg.conn == nil {
		return errors.Wrap(types.ErrChannelClosed, "deepgram connection closed")
	}
	return dg.writeLocked(gws.BinaryMessage, frame.Payload)
}

func (dg *DeepgramClient) sendText(msg string) error {
	dg.connMu.Lock()
	defer dg.connMu.Unlock()
	if dg.conn == nil {
		return types.ErrChannelClosed
	}
	return dg.writeLocked(gws.TextMessage, []byte(msg))
}

// writeLocked writes one message under a deadline. A failed write leaves the
// gorilla connection unusable, so it also ends the client. Callers hold connMu.
func (dg *DeepgramClient) writeLocked(msgType int, data []byte) error {
	if err := dg.conn.SetWriteDeadline(time.Now().Add(dg.writeTimeout())); err != nil {
		dg.shutdown()
		return errors.Wrapf(types.ErrChannelClosed, "deepgram write deadline: %v", err)
	}
	if err := dg.conn.WriteMessage(msgType, data); err != nil {
		dg.shutdown()
		return errors.Wrapf(types.ErrChannelClosed, "deepgram write error: %v", err)
	}
	return nil
}

func (dg *DeepgramClient) writeTimeout() time.Duration {
	if dg.config.WriteTimeout > 0 {
		return dg.config.WriteTimeout
	}
	return defaultWriteTimeout
}

func (dg *DeepgramClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(dg.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dg.done:
			return
		case <-ticker.C:
			if err := dg.sendText(keepAliveMessage); err != nil {
				dg.logger.Warn("Failed to send KeepAlive", "error", err)
				continue
			}
			dg.metrics.RecordKeepAlive()
			dg.logger.Debug("Sent KeepAlive message")
		}
	}
}

func (dg *DeepgramClient) readMessages(ctx context.Context, conn *gws.Conn) {
	defer close(dg.events)
	defer dg.shutdown()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if gws.IsCloseError(err, gws.CloseNormalClosure) || dg.closed.Load() {
				dg.logger.Info("WebSocket connection closed with Deepgram")
			} else {
				dg.logger.Error("Error reading response from Deepgram", "error", err)
			}
			return
		}
		if msgType != gws.TextMessage {
			continue
		}

		ev, ok, err := Decode(msg)
		if err != nil {
			dg.logger.Warn("Error parsing Deepgram response", "error", err)
			continue
		}
		if !ok {
			continue
		}
		dg.metrics.RecordTranscriptEvent(ev.Kind.String())

		select {
		case dg.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (dg *DeepgramClient) shutdown() {
	dg.closeOnce.Do(func() {
		dg.ready.Store(false)
		dg.closed.Store(true)
		close(dg.done)
	})
}

// Close asks Deepgram to finish the stream and closes the connection.
func (dg *DeepgramClient) Close() error {
	dg.shutdown()

	dg.connMu.Lock()
	defer dg.connMu.Unlock()
	if dg.conn == nil {
		return nil
	}
	conn := dg.conn
	dg.conn = nil

	conn.SetWriteDeadline(time.Now().Add(dg.writeTimeout()))
	if err := conn.WriteMessage(gws.TextMessage, []byte(closeStreamMessage)); err != nil {
		conn.Close()
		return err
	}
	return conn.Close()
}
