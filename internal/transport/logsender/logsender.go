// Package logsender is the dry-run transport driver: every send is logged
// and reported successful. It is the default driver in the sample config so
// the daemon runs without FCM credentials.
package logsender

import (
	"context"

	"dreampulse/internal/transport"
	"dreampulse/pkg/logx"
)

type Sender struct {
	log logx.Logger
}

func New(log logx.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, token string, p transport.Payload) error {
	short := token
	if len(short) > 12 {
		short = short[:12] + "..."
	}
	s.log.Info("dry-run send",
		logx.String("token", short),
		logx.String("title", p.Title),
		logx.String("body", p.Body))
	return nil
}
