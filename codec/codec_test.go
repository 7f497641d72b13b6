package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/mrsingh-rishi/voice-bot/types"
	"github.com/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	large := make([]byte, 1<<20)
	rng.Read(large)

	cases := map[string][]byte{
		"empty":    {},
		"single":   {0xff},
		"silence":  bytes.Repeat([]byte{0x7f}, 160),
		"odd size": {1, 2, 3, 4, 5},
		"large":    large,
	}

	for name, chunk := range cases {
		t.Run(name, func(t *testing.T) {
			decoded, err := Decode(Encode(chunk))
			if err != nil {
				t.Fatalf("expected decode to succeed, got %v", err)
			}
			if !bytes.Equal(decoded, chunk) {
				t.Fatalf("expected %d bytes back unchanged, got %d bytes", len(chunk), len(decoded))
			}
		})
	}
}

func TestEncodeOfDecodeIsIdentity(t *testing.T) {
	for _, payload := range []string{"", "AA==", "AAE=", "f39/fw==", "aGVsbG8gd29ybGQ="} {
		chunk, err := Decode(payload)
		if err != nil {
			t.Fatalf("expected %q to decode, got %v", payload, err)
		}
		if got := Encode(chunk); got != payload {
			t.Fatalf("expected %q, got %q", payload, got)
		}
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	for _, payload := range []string{"not base64!", "AAE", "AA=A", "AB=="} {
		chunk, err := Decode(payload)
		if err == nil {
			t.Fatalf("expected %q to fail, got %v", payload, chunk)
		}
		if !errors.Is(err, types.ErrMalformedFrame) {
			t.Fatalf("expected ErrMalformedFrame for %q, got %v", payload, err)
		}
		if chunk != nil {
			t.Fatalf("expected no data for %q, got %v", payload, chunk)
		}
	}
}
