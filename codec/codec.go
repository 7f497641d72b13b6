// Package codec converts audio payloads between the base64 text used on the
// Twilio media stream and the raw byte blocks sent to the transcriber.
package codec

import (
	"encoding/base64"

	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
)

// Decode turns a media payload into raw audio bytes.
func Decode(payload string) ([]byte, error) {
	chunk, err := base64.StdEncoding.Strict().DecodeString(payload)
	if err != nil {
		return nil, errors.Wrapf(types.ErrMalformedFrame, "decode media payload (%v)", err)
	}
	return chunk, nil
}

// Encode turns raw audio bytes into a media payload.
func Encode(chunk []byte) string {
	return base64.StdEncoding.EncodeToString(chunk)
}
