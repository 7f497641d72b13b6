package types

import "github.com/pkg/errors"

// Failure conditions scoped to a single call. None of them stop the process.
var (
	// ErrMalformedFrame: the frame is dropped and the session continues.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrChannelClosed: the session is torn down.
	ErrChannelClosed = errors.New("channel closed")
	// ErrNotReady: audio arrived before the transcriber handshake finished and was dropped.
	ErrNotReady = errors.New("transcriber not ready")
	// ErrSynthesisFailed: the reply for this turn is skipped.
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrUpstreamError: the transcriber reported an error; the session continues.
	ErrUpstreamError = errors.New("upstream error")
)
