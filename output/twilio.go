package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mrsingh-rishi/voice-bot/codec"
	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
)

// JSONWriter is the write side of the Twilio media stream websocket.
type JSONWriter interface {
	WriteJSON(v interface{}) error
}

type mediaMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markMessage struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Mark      markPayload `json:"mark"`
}

type markPayload struct {
	Name string `json:"name"`
}

// TwilioOutput writes synthesized replies back to the caller. Writes are
// serialized, and each reply is followed by a mark named after a counter that
// grows by one per reply.
type TwilioOutput struct {
	mu        sync.Mutex
	ws        JSONWriter
	streamSid string
	replies   uint64
	closed    bool

	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewTwilioOutput(ws JSONWriter, logger *slog.Logger, m *metrics.Metrics) (*TwilioOutput, error) {
	if ws == nil {
		return nil, fmt.Errorf("websocket connection is required")
	}
	return &TwilioOutput{ws: ws, logger: logger, metrics: m}, nil
}

func (o *TwilioOutput) SetStreamSid(streamSid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streamSid = streamSid
}

// SendReply writes audio as one media event followed by a mark and returns the
// mark name. After a failed write or Close every call returns ErrChannelClosed.
func (o *TwilioOutput) SendReply(audio []byte) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return "", errors.Wrap(types.ErrChannelClosed, "caller connection closed")
	}
	if o.streamSid == "" {
		return "", errors.New("streamSid is empty")
	}

	if err := o.ws.WriteJSON(mediaMessage{
		Event:     "media",
		StreamSid: o.streamSid,
		Media:     mediaPayload{Payload: codec.Encode(audio)},
	}); err != nil {
		o.closed = true
		return "", errors.Wrapf(types.ErrChannelClosed, "media write error: %v", err)
	}

	o.replies++
	name := fmt.Sprintf("reply-%d", o.replies)
	if err := o.ws.WriteJSON(markMessage{
		Event:     "mark",
		StreamSid: o.streamSid,
		Mark:      markPayload{Name: name},
	}); err != nil {
		o.closed = true
		return "", errors.Wrapf(types.ErrChannelClosed, "mark write error: %v", err)
	}

	o.metrics.RecordReplySent()
	o.logger.Debug("Reply sent to caller", "mark", name, "bytes", len(audio))
	return name, nil
}

// Close stops further writes. The websocket itself is owned by the session.
func (o *TwilioOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}
