// Package config loads service settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is read-only once Load returns and is shared by every call.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Reply      ReplyConfig      `yaml:"reply"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// BaseURL and BaseWSURL end with a slash, e.g. https://example.ngrok.app/
	BaseURL   string `yaml:"base_url"`
	BaseWSURL string `yaml:"base_ws_url"`
}

type TwilioConfig struct {
	AccountSid        string `yaml:"account_sid"`
	AuthToken         string `yaml:"auth_token"`
	FromNumber        string `yaml:"from_number"`
	Greeting          string `yaml:"greeting"`
	ValidateSignature bool   `yaml:"validate_signature"`
}

type DeepgramConfig struct {
	APIKey         string `yaml:"api_key"`
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	Encoding       string `yaml:"encoding"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	EndpointingMs  int    `yaml:"endpointing_ms"`
	UtteranceEndMs int    `yaml:"utterance_end_ms"`
	InterimResults bool   `yaml:"interim_results"`
	SmartFormat    bool   `yaml:"smart_format"`
	KeepAlive      int    `yaml:"keep_alive"`    // seconds
	WriteTimeout   int    `yaml:"write_timeout"` // seconds
	// EmptyFinalResetsLatch lets a blank final result clear the speech_final latch.
	EmptyFinalResetsLatch bool `yaml:"empty_final_resets_latch"`
}

type ElevenLabsConfig struct {
	APIKey       string `yaml:"api_key"`
	URL          string `yaml:"url"`
	VoiceID      string `yaml:"voice_id"`
	ModelID      string `yaml:"model_id"`
	OutputFormat string `yaml:"output_format"`
	Timeout      int    `yaml:"timeout"` // seconds
}

type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type ReplyConfig struct {
	// Mode is "echo" to speak the caller's turn back or "openai" to answer it.
	Mode string `yaml:"mode"`
}

// TelemetryConfig selects where OpenTelemetry spans and log records go.
type TelemetryConfig struct {
	// Exporter is "none" or "stdout".
	Exporter    string `yaml:"exporter"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when neither file nor environment
// override them.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 3000},
		Twilio: TwilioConfig{},
		Deepgram: DeepgramConfig{
			URL:            "wss://api.deepgram.com/v1/listen",
			Model:          "nova-2-phonecall",
			Language:       "en-US",
			Encoding:       "mulaw",
			SampleRate:     8000,
			Channels:       1,
			EndpointingMs:  300,
			UtteranceEndMs: 1000,
			InterimResults: true,
			SmartFormat:    true,
			KeepAlive:      3,
			WriteTimeout:   5,
		},
		ElevenLabs: ElevenLabsConfig{
			URL:          "https://api.elevenlabs.io",
			VoiceID:      "JBFqnCBsd6RMkjVDRZzb",
			ModelID:      "eleven_multilingual_v2",
			OutputFormat: "ulaw_8000",
			Timeout:      15,
		},
		OpenAI: OpenAIConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a helpful assistant on a phone call. Answer in one or two short spoken sentences.",
		},
		Reply:     ReplyConfig{Mode: "echo"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{Exporter: TelemetryExporterNone, ServiceName: "voice-bot"},
	}
}

// Load reads path (if non-empty), then .env, then the environment, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to environment variables")
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "PORT %q is not a number", v)
		}
		c.Server.Port = port
	}
	str("BASE_URL", &c.Server.BaseURL)
	str("BASE_WS_URL", &c.Server.BaseWSURL)
	str("TWILIO_ACCOUNT_SID", &c.Twilio.AccountSid)
	str("TWILIO_AUTH_TOKEN", &c.Twilio.AuthToken)
	str("TWILIO_FROM_NUMBER", &c.Twilio.FromNumber)
	str("DEEPGRAM_API_KEY", &c.Deepgram.APIKey)
	str("ELEVEN_LABS_API_KEY", &c.ElevenLabs.APIKey)
	str("ELEVEN_LABS_VOICE_ID", &c.ElevenLabs.VoiceID)
	str("OPEN_AI_API_KEY", &c.OpenAI.APIKey)
	str("REPLY_MODE", &c.Reply.Mode)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("TELEMETRY_EXPORTER", &c.Telemetry.Exporter)
	return nil
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return errors.Wrap(err, "server config")
	}
	if err := c.Twilio.Validate(); err != nil {
		return errors.Wrap(err, "twilio config")
	}
	if err := c.Deepgram.Validate(); err != nil {
		return errors.Wrap(err, "deepgram config")
	}
	if err := c.ElevenLabs.Validate(); err != nil {
		return errors.Wrap(err, "elevenlabs config")
	}
	if err := c.Reply.Validate(); err != nil {
		return errors.Wrap(err, "reply config")
	}
	if c.Reply.Mode == ReplyModeOpenAI {
		if err := c.OpenAI.Validate(); err != nil {
			return errors.Wrap(err, "openai config")
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(err, "logging config")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return errors.Wrap(err, "telemetry config")
	}
	if c.Logging.Format == "otel" && c.Telemetry.Exporter == TelemetryExporterNone {
		return errors.New("logging format otel requires a telemetry exporter")
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.BaseURL == "" {
		return errors.New("BASE_URL must be set")
	}
	if s.BaseWSURL == "" {
		return errors.New("BASE_WS_URL must be set")
	}
	if !strings.HasSuffix(s.BaseURL, "/") || !strings.HasSuffix(s.BaseWSURL, "/") {
		return errors.New("BASE_URL and BASE_WS_URL must end with a slash")
	}
	return nil
}

func (t *TwilioConfig) Validate() error {
	if t.AccountSid == "" || t.AuthToken == "" || t.FromNumber == "" {
		return errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set")
	}
	return nil
}

var validEncodings = map[string]bool{"mulaw": true, "alaw": true, "linear16": true}

func (d *DeepgramConfig) Validate() error {
	if d.APIKey == "" {
		return errors.New("DEEPGRAM_API_KEY must be set")
	}
	if d.URL == "" {
		return errors.New("url cannot be empty")
	}
	if d.Model == "" {
		return errors.New("model cannot be empty")
	}
	if !validEncodings[d.Encoding] {
		return fmt.Errorf("encoding must be one of [mulaw, alaw, linear16], got '%s'", d.Encoding)
	}
	if d.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", d.SampleRate)
	}
	if d.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", d.Channels)
	}
	if d.EndpointingMs < 0 {
		return fmt.Errorf("endpointing_ms cannot be negative, got %d", d.EndpointingMs)
	}
	if d.UtteranceEndMs != 0 && d.UtteranceEndMs < 1000 {
		return fmt.Errorf("utterance_end_ms must be 0 (off) or at least 1000, got %d", d.UtteranceEndMs)
	}
	if d.UtteranceEndMs > 0 && !d.InterimResults {
		return errors.New("utterance_end_ms requires interim_results")
	}
	if d.KeepAlive < 1 {
		return fmt.Errorf("keep_alive must be at least 1 second, got %d", d.KeepAlive)
	}
	if d.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", d.WriteTimeout)
	}
	return nil
}

func (e *ElevenLabsConfig) Validate() error {
	if e.APIKey == "" {
		return errors.New("ELEVEN_LABS_API_KEY must be set")
	}
	if e.URL == "" || e.VoiceID == "" || e.ModelID == "" {
		return errors.New("url, voice_id and model_id cannot be empty")
	}
	if e.OutputFormat == "" {
		return errors.New("output_format cannot be empty")
	}
	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}
	return nil
}

func (o *OpenAIConfig) Validate() error {
	if o.APIKey == "" {
		return errors.New("OPEN_AI_API_KEY must be set when reply mode is openai")
	}
	if o.Model == "" {
		return errors.New("model cannot be empty")
	}
	return nil
}

const (
	ReplyModeEcho   = "echo"
	ReplyModeOpenAI = "openai"
)

func (r *ReplyConfig) Validate() error {
	if r.Mode != ReplyModeEcho && r.Mode != ReplyModeOpenAI {
		return fmt.Errorf("mode must be 'echo' or 'openai', got '%s'", r.Mode)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true, "otel": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be one of [text, json, otel], got '%s'", l.Format)
	}
	return nil
}

const (
	TelemetryExporterNone   = "none"
	TelemetryExporterStdout = "stdout"
)

func (t *TelemetryConfig) Validate() error {
	if t.Exporter != TelemetryExporterNone && t.Exporter != TelemetryExporterStdout {
		return fmt.Errorf("exporter must be 'none' or 'stdout', got '%s'", t.Exporter)
	}
	if t.ServiceName == "" {
		return errors.New("service_name cannot be empty")
	}
	return nil
}

// KeepAliveInterval returns the keep-alive period as a time.Duration.
func (d *DeepgramConfig) KeepAliveInterval() time.Duration {
	return time.Duration(d.KeepAlive) * time.Second
}

// WriteTimeoutDuration returns the per-write deadline as a time.Duration.
func (d *DeepgramConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(d.WriteTimeout) * time.Second
}

// TimeoutDuration returns the synthesis timeout as a time.Duration.
func (e *ElevenLabsConfig) TimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}
