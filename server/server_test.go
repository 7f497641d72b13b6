package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/mrsingh-rishi/voice-bot/call"
	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/mrsingh-rishi/voice-bot/llm"
	"github.com/mrsingh-rishi/voice-bot/logging"
	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/mrsingh-rishi/voice-bot/model"
	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/mrsingh-rishi/voice-bot/workers"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeCaller struct {
	sid string
	err error
	to  []string
}

func (f *fakeCaller) PlaceCall(to string) (string, error) {
	f.to = append(f.to, to)
	return f.sid, f.err
}

type idleTranscriber struct {
	events    chan types.TranscriptEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newIdleTranscriber() *idleTranscriber {
	return &idleTranscriber{events: make(chan types.TranscriptEvent), done: make(chan struct{})}
}

func (t *idleTranscriber) Connect(ctx context.Context) error    { return nil }
func (t *idleTranscriber) SendAudio(model.AudioFrame) error     { return nil }
func (t *idleTranscriber) Events() <-chan types.TranscriptEvent { return t.events }
func (t *idleTranscriber) Done() <-chan struct{}                { return t.done }

func (t *idleTranscriber) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

type silentSynthesizer struct{}

func (silentSynthesizer) Synthesize(context.Context, string) ([]byte, error) {
	return []byte{}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.BaseURL = "https://example.test/"
	cfg.Server.BaseWSURL = "wss://example.test/"
	cfg.Twilio = config.TwilioConfig{AccountSid: "AC123", AuthToken: "secret", FromNumber: "+15550000000"}
	return &cfg
}

func newTestServer(t *testing.T, cfg *config.Config, caller CallPlacer) (*Server, *call.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	registry := call.NewRegistry(m)
	deps := call.Dependencies{
		NewTranscriber: func(*slog.Logger) call.Transcriber { return newIdleTranscriber() },
		NewComposer:    func() (workers.Composer, error) { return llm.Echo{}, nil },
		Synthesizer:    silentSynthesizer{},
	}
	return New(cfg, registry, deps, caller, reg, logging.Discard(), m), registry
}

func readBody(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("expected body, got %v", err)
	}
	return string(b)
}

func TestHandleCall(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		caller     *fakeCaller
		wantStatus int
		wantBody   string
	}{
		{"missing to", `{}`, &fakeCaller{}, 400, "`to` field is required"},
		{"invalid json", `{"to":`, &fakeCaller{}, 400, "invalid JSON"},
		{"twilio failure", `{"to":"+15551234567"}`, &fakeCaller{err: errors.New("401 unauthorized")}, 500, "failed to create call"},
		{"success", `{"to":"+15551234567"}`, &fakeCaller{sid: "CA42"}, 200, `"sid":"CA42"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, testConfig(), tt.caller)
			req := httptest.NewRequest("POST", "/call", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.App.Test(req)
			if err != nil {
				t.Fatalf("expected response, got %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if body := readBody(t, resp.Body); !strings.Contains(body, tt.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tt.wantBody, body)
			}
		})
	}
}

func TestHandleTwiML(t *testing.T) {
	cfg := testConfig()
	cfg.Twilio.Greeting = "Connecting you now"
	s, _ := newTestServer(t, cfg, &fakeCaller{})

	for _, method := range []string{"GET", "POST"} {
		resp, err := s.App.Test(httptest.NewRequest(method, "/twiml", nil))
		if err != nil {
			t.Fatalf("expected response, got %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("expected 200 for %s, got %d", method, resp.StatusCode)
		}
		body := readBody(t, resp.Body)
		for _, want := range []string{"<Say>Connecting you now</Say>", "<Connect>", `url="wss://example.test/stream"`} {
			if !strings.Contains(body, want) {
				t.Fatalf("expected TwiML to contain %q, got %s", want, body)
			}
		}
	}
}

// twilioSignature signs a request the way Twilio does: HMAC-SHA1 over the URL
// followed by the sorted POST parameters.
func twilioSignature(token, rawURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHandleTwiMLSignature(t *testing.T) {
	cfg := testConfig()
	cfg.Twilio.ValidateSignature = true
	s, _ := newTestServer(t, cfg, &fakeCaller{})

	form := url.Values{"CallSid": {"CA1"}, "From": {"+15551234567"}}
	tests := []struct {
		name       string
		signature  string
		wantStatus int
	}{
		{"missing signature", "", 403},
		{"wrong signature", twilioSignature("other-token", "https://example.test/twiml", form), 403},
		{"valid signature", twilioSignature("secret", "https://example.test/twiml", form), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/twiml", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.signature != "" {
				req.Header.Set("X-Twilio-Signature", tt.signature)
			}
			resp, err := s.App.Test(req)
			if err != nil {
				t.Fatalf("expected response, got %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

func TestStreamRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &fakeCaller{})
	resp, err := s.App.Test(httptest.NewRequest("GET", "/stream", nil))
	if err != nil {
		t.Fatalf("expected response, got %v", err)
	}
	if resp.StatusCode != 426 {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &fakeCaller{})

	resp, err := s.App.Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatalf("expected response, got %v", err)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("expected health JSON, got %v", err)
	}
	if health.Status != "ok" || health.Sessions != 0 {
		t.Fatalf("expected ok with 0 sessions, got %+v", health)
	}

	resp, err = s.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("expected response, got %v", err)
	}
	if body := readBody(t, resp.Body); !strings.Contains(body, "relay_active_sessions") {
		t.Fatalf("expected relay metrics, got %s", body)
	}
}

func TestStreamRegistersSession(t *testing.T) {
	s, registry := newTestServer(t, testConfig(), &fakeCaller{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("expected listener, got %v", err)
	}
	go s.App.Listener(ln)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	conn, _, err := gws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/stream?CallSid=CA1", nil)
	if err != nil {
		t.Fatalf("expected websocket, got %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return registry.Len() == 1 })

	start := `{"event":"start","streamSid":"MZ1","start":{"callSid":"CA1","streamSid":"MZ1"}}`
	if err := conn.WriteMessage(gws.TextMessage, []byte(start)); err != nil {
		t.Fatalf("expected write, got %v", err)
	}
	if err := conn.WriteMessage(gws.TextMessage, []byte(`{"event":"stop","streamSid":"MZ1"}`)); err != nil {
		t.Fatalf("expected write, got %v", err)
	}

	waitFor(t, func() bool { return registry.Len() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
