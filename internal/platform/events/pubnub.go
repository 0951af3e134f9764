package events

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubConfig holds the keys for the patient push channel.
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// PubNubPublisher pushes events for a patient onto channel "patient-<id>" so
// the patient's own device can follow their place in the queue. Events
// without a patient id are skipped.
type PubNubPublisher struct {
	send func(channel string, message interface{}) error
}

// NewPubNubPublisher creates a publisher backed by the PubNub SDK.
func NewPubNubPublisher(cfg PubNubConfig) *PubNubPublisher {
	userID := cfg.UserID
	if userID == "" {
		userID = "medq-server"
	}
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey
	pn := pubnub.NewPubNub(pnConfig)

	return &PubNubPublisher{
		send: func(channel string, message interface{}) error {
			_, _, err := pn.Publish().Channel(channel).Message(message).Execute()
			return err
		},
	}
}

// PatientChannel returns the PubNub channel for a patient.
func PatientChannel(patientID string) string {
	return "patient-" + patientID
}

func (p *PubNubPublisher) Publish(_ context.Context, event Event) error {
	if event.PatientID == "" {
		return nil
	}
	channel := PatientChannel(event.PatientID)
	if err := p.send(channel, event); err != nil {
		return fmt.Errorf("pubnub publish %s: %w", channel, err)
	}
	return nil
}
