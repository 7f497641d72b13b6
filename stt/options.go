package stt

import (
	"net/url"
	"strconv"

	"github.com/mrsingh-rishi/voice-bot/config"
)

type Encoding string

const (
	EncodingMulaw    Encoding = "mulaw"
	EncodingAlaw     Encoding = "alaw"
	EncodingLinear16 Encoding = "linear16"
)

// Options tunes the Deepgram live transcription request. One value is built
// per call when the session starts.
type Options struct {
	Model          string
	Language       string
	Encoding       Encoding
	SampleRateHz   int
	Channels       int
	EndpointingMs  int
	UtteranceEndMs int
	InterimResults bool
	SmartFormat    bool
}

func OptionsFromConfig(cfg config.DeepgramConfig) Options {
	return Options{
		Model:          cfg.Model,
		Language:       cfg.Language,
		Encoding:       Encoding(cfg.Encoding),
		SampleRateHz:   cfg.SampleRate,
		Channels:       cfg.Channels,
		EndpointingMs:  cfg.EndpointingMs,
		UtteranceEndMs: cfg.UtteranceEndMs,
		InterimResults: cfg.InterimResults,
		SmartFormat:    cfg.SmartFormat,
	}
}

// ListenURL appends the options to the listen endpoint as query parameters.
func (o Options) ListenURL(endpoint string) (string, error) {
	listenURL, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	q := listenURL.Query()
	q.Set("model", o.Model)
	if o.Language != "" {
		q.Set("language", o.Language)
	}
	q.Set("encoding", string(o.Encoding))
	q.Set("sample_rate", strconv.Itoa(o.SampleRateHz))
	q.Set("channels", strconv.Itoa(o.Channels))
	q.Set("interim_results", strconv.FormatBool(o.InterimResults))
	q.Set("smart_format", strconv.FormatBool(o.SmartFormat))
	q.Set("punctuate", "true")
	if o.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(o.EndpointingMs))
	} else {
		q.Set("endpointing", "false")
	}
	if o.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(o.UtteranceEndMs))
		q.Set("vad_events", "true")
	}
	listenURL.RawQuery = q.Encode()

	return listenURL.String(), nil
}
