package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/messaging"
)

type Pusher interface {
	Push(ctx context.Context, token, title, body string, data map[string]string) error
}

// FCMPusher sends notifications through Firebase Cloud Messaging.
type FCMPusher struct {
	client *messaging.Client
}

func NewFCMPusher(client *messaging.Client) *FCMPusher {
	return &FCMPusher{client: client}
}

func (p *FCMPusher) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
	if _, err := p.client.Send(ctx, message); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
