package model

// AudioFrame is one block of caller audio, already decoded from the wire.
type AudioFrame struct {
	StreamSid string
	Payload   []byte
}

// Utterance is the text of one completed caller turn.
type Utterance struct {
	Seq  uint64
	Text string
}

// SynthesisReply is synthesized audio waiting to be played to the caller.
// MarkName is echoed back by Twilio once playback finishes.
type SynthesisReply struct {
	SessionID string
	MarkName  string
	Audio     []byte
}
