package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mrsingh-rishi/voice-bot/tts"

// maxErrorBody caps how much of a failed response is kept for the log.
const maxErrorBody = 512

type ElevenLabsClient struct {
	APIKey       string
	BaseURL      string
	VoiceId      string
	ModelId      string
	OutputFormat string
	httpClient   *http.Client
	tracer       trace.Tracer
}

func NewElevenLabsClient(cfg config.ElevenLabsConfig) (*ElevenLabsClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, errors.Wrap(err, "invalid elevenlabs url")
	}

	return &ElevenLabsClient{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.URL,
		VoiceId:      cfg.VoiceID,
		ModelId:      cfg.ModelID,
		OutputFormat: cfg.OutputFormat,
		httpClient: &http.Client{
			Timeout:   cfg.TimeoutDuration(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer(tracerName),
	}, nil
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to audio in the configured output format. Any
// failure, including a non-200 status, is reported as ErrSynthesisFailed.
func (client *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := client.tracer.Start(ctx, "elevenlabs.synthesize",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("text.length", len(text)), attribute.String("voice.id", client.VoiceId)),
	)
	defer span.End()

	audio, err := client.synthesize(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrapf(types.ErrSynthesisFailed, "%v (text %q)", err, text)
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(audio)))
	return audio, nil
}

func (client *ElevenLabsClient) synthesize(ctx context.Context, text string) ([]byte, error) {
	base, err := url.Parse(fmt.Sprintf("%s/v1/text-to-speech/%s", client.BaseURL, url.PathEscape(client.VoiceId)))
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	q := base.Query()
	q.Set("output_format", client.OutputFormat)
	base.RawQuery = q.Encode()

	bodyBytes, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: client.ModelId,
		VoiceSettings: voiceSettings{
			Stability:       0.75,
			SimilarityBoost: 0.7,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xi-api-key", client.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/basic")

	start := time.Now()
	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("bad status: %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio after %v: %w", time.Since(start), err)
	}
	return audio, nil
}
