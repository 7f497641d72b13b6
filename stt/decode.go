package stt

import (
	"encoding/json"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
)

const typeErrorResponse api.TypeResponse = "Error"

type errorResponse struct {
	Description string `json:"description"`
	Message     string `json:"message"`
	ErrMsg      string `json:"err_msg"`
}

func (e errorResponse) reason() string {
	for _, s := range []string{e.Description, e.Message, e.ErrMsg} {
		if s != "" {
			return s
		}
	}
	return "unknown transcriber error"
}

// Decode turns one Deepgram message into a TranscriptEvent. Messages the turn
// logic does not use (Metadata, SpeechStarted) come back with ok=false.
func Decode(msg []byte) (types.TranscriptEvent, bool, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return types.TranscriptEvent{}, false, errors.Wrap(err, "failed to unmarshal deepgram message")
	}

	switch api.TypeResponse(head.Type) {
	case api.TypeMessageResponse, "":
		var resp api.MessageResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return types.TranscriptEvent{}, false, errors.Wrap(err, "failed to unmarshal deepgram results")
		}
		if len(resp.Channel.Alternatives) == 0 {
			if head.Type == "" {
				return types.TranscriptEvent{}, false, nil
			}
			if resp.IsFinal {
				return types.Final("", resp.SpeechFinal), true, nil
			}
			return types.Partial(""), true, nil
		}
		alt := resp.Channel.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if !resp.IsFinal {
			ev := types.Partial(text)
			ev.Confidence = alt.Confidence
			return ev, true, nil
		}
		ev := types.Final(text, resp.SpeechFinal)
		ev.Confidence = alt.Confidence
		return ev, true, nil

	case api.TypeUtteranceEndResponse:
		return types.UtteranceEnd(), true, nil

	case typeErrorResponse:
		var resp errorResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return types.TranscriptEvent{}, false, errors.Wrap(err, "failed to unmarshal deepgram error")
		}
		return types.Error(resp.reason()), true, nil
	}

	return types.TranscriptEvent{}, false, nil
}
