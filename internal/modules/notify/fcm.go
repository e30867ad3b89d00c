// Package notify pushes pickup lifecycle updates to account devices through
// Firebase Cloud Messaging. Devices subscribe to the topic of their account.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"scrapyard/internal/types"
)

type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM delivers notifications to the topic "account-<id>".
type FCM struct {
	client sender
	logger *zap.Logger
}

func NewFCM(client *messaging.Client, logger *zap.Logger) *FCM {
	f := &FCM{logger: logger}
	if client != nil {
		f.client = client
	}
	return f
}

// Topic is the FCM topic an account's devices subscribe to.
func Topic(accountID types.ID) string {
	return "account-" + string(accountID)
}

func (f *FCM) Notify(ctx context.Context, to types.ID, title, body string, data map[string]string) error {
	if f.client == nil {
		return nil
	}
	msg := &messaging.Message{
		Topic: Topic(to),
		Data:  data,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	id, err := f.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM to %s: %w", Topic(to), err)
	}
	f.logger.Debug("fcm sent", zap.String("topic", Topic(to)), zap.String("message_id", id))
	return nil
}
