package server

import (
	"fmt"

	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/pkg/errors"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// CallPlacer starts an outbound phone call and returns its call sid.
type CallPlacer interface {
	PlaceCall(to string) (string, error)
}

// TwilioCaller places calls through the Twilio REST API. Twilio fetches the
// call-setup document from BaseURL + "twiml" once the callee answers.
type TwilioCaller struct {
	client     *twilio.RestClient
	fromNumber string
	twimlURL   string
}

func NewTwilioCaller(cfg *config.Config) *TwilioCaller {
	return &TwilioCaller{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.Twilio.AccountSid,
			Password: cfg.Twilio.AuthToken,
		}),
		fromNumber: cfg.Twilio.FromNumber,
		twimlURL:   fmt.Sprintf("%stwiml", cfg.Server.BaseURL),
	}
}

func (tc *TwilioCaller) PlaceCall(to string) (string, error) {
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(tc.fromNumber)
	params.SetUrl(tc.twimlURL)
	params.SetMethod("POST")

	resp, err := tc.client.Api.CreateCall(params)
	if err != nil {
		return "", errors.Wrap(err, "twilio create call")
	}
	if resp.Sid == nil {
		return "", errors.New("twilio returned no call sid")
	}
	return *resp.Sid, nil
}

// streamTwiML tells Twilio to open a bidirectional media stream to the
// /stream websocket, after an optional spoken greeting.
func streamTwiML(baseWSURL, greeting string) (string, error) {
	var verbs []twiml.Element
	if greeting != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: greeting})
	}
	verbs = append(verbs, &twiml.VoiceConnect{
		InnerElements: []twiml.Element{
			&twiml.VoiceStream{Url: fmt.Sprintf("%sstream", baseWSURL)},
		},
	})
	return twiml.Voice(verbs)
}
