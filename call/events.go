package call

// twilioEvent is one JSON message from the Twilio media stream.
type twilioEvent struct {
	Event          string `json:"event"` // "connected", "start", "media", "mark", "stop"
	SequenceNumber string `json:"sequenceNumber"`
	StreamSid      string `json:"streamSid"`
	Protocol       string `json:"protocol"`
	Start          struct {
		AccountSid  string   `json:"accountSid"`
		CallSid     string   `json:"callSid"`
		StreamSid   string   `json:"streamSid"`
		Tracks      []string `json:"tracks"`
		MediaFormat struct {
			Encoding   string `json:"encoding"`
			SampleRate int    `json:"sampleRate"`
			Channels   int    `json:"channels"`
		} `json:"mediaFormat"`
	} `json:"start"`
	Media struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"` // base64 audio
	} `json:"media"`
	Mark struct {
		Name string `json:"name"`
	} `json:"mark"`
	Stop struct {
		CallSid string `json:"callSid"`
	} `json:"stop"`
}
