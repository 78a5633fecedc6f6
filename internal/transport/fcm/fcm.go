// Package fcm delivers through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"dreampulse/internal/transport"
	"dreampulse/pkg/logx"
)

type Config struct {
	// CredentialsFile is a service-account JSON path. Empty means the
	// default application credentials (ADC) environment lookup.
	CredentialsFile string

	// ProjectID overrides the project inferred from the credentials.
	ProjectID string
}

type Sender struct {
	client *messaging.Client
	log    logx.Logger
}

func New(ctx context.Context, cfg Config, log logx.Logger) (*Sender, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client: %w", err)
	}
	return &Sender{client: client, log: log}, nil
}

func (s *Sender) Send(ctx context.Context, token string, p transport.Payload) error {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: p.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		Webpush: &messaging.WebpushConfig{
			Headers: map[string]string{"Urgency": "high"},
		},
	}
	_, err := s.client.Send(ctx, msg)
	if err == nil {
		return nil
	}
	// Map FCM's permanent failures onto the transport error classes the
	// dispatcher prunes on. Everything else stays transient.
	if messaging.IsUnregistered(err) {
		return fmt.Errorf("%w: %v", transport.ErrUnregistered, err)
	}
	if errorutils.IsInvalidArgument(err) {
		return fmt.Errorf("%w: %v", transport.ErrInvalidToken, err)
	}
	return err
}
