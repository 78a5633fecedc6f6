// Package transport defines the push-delivery contract the dispatcher fans
// out through. Drivers live in subpackages; the dispatcher only sees the
// Sender interface and the permanent-error classification below.
package transport

import (
	"context"
	"errors"
)

// Payload is one endpoint-addressed message.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a payload to a single endpoint token.
//
// Implementations must return an error wrapping ErrUnregistered or
// ErrInvalidToken when the provider reports the endpoint as permanently
// dead; any other error is treated as transient.
type Sender interface {
	Send(ctx context.Context, token string, p Payload) error
}

// Permanent endpoint failures. Exactly these two classes trigger token
// pruning; everything else is retried implicitly by the next firing.
var (
	ErrUnregistered = errors.New("endpoint unregistered")
	ErrInvalidToken = errors.New("invalid endpoint token")
)

// IsPermanent reports whether err means the endpoint is dead for good.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnregistered) || errors.Is(err, ErrInvalidToken)
}
