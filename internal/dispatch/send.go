package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"dreampulse/internal/domain"
	"dreampulse/internal/eventbus"
	"dreampulse/internal/transport"
	"dreampulse/pkg/logx"
)

// Send fans the message out to every endpoint the user has registered.
// It returns true iff at least one endpoint accepted the message.
//
// A user with no recipients yields false without error; delivery is
// background work and the caller only learns the aggregate outcome.
func (s *Service) Send(ctx context.Context, userID, typ, title, body string, data map[string]string) bool {
	recipients, err := s.reg.List(ctx, userID)
	if err != nil {
		s.log.Warn("recipient lookup failed", logx.String("user", userID), logx.Err(err))
		return false
	}
	if len(recipients) == 0 {
		s.log.Info("no recipients; skipping dispatch", logx.String("user", userID), logx.String("type", typ))
		return false
	}

	start := time.Now()
	payload := transport.Payload{Title: title, Body: body, Data: data}
	timeout := s.sendTimeout()

	var delivered, pruned, failed atomic.Int64

	var wg conc.WaitGroup
	for _, r := range recipients {
		token := r.Token
		wg.Go(func() {
			s.mu.Lock()
			lim := s.limiter
			s.mu.Unlock()
			if err := lim.Wait(ctx); err != nil {
				failed.Add(1)
				s.appendLog(userID, typ, title, body, err)
				return
			}

			sendCtx, cancel := context.WithTimeout(ctx, timeout)
			err := s.sender.Send(sendCtx, token, payload)
			cancel()

			switch {
			case err == nil:
				delivered.Add(1)
			case transport.IsPermanent(err):
				// Dead endpoint: drop exactly this token, leave siblings alone.
				if _, rmErr := s.reg.Remove(ctx, userID, token); rmErr != nil {
					s.log.Warn("token prune failed", logx.String("user", userID), logx.Err(rmErr))
				} else {
					pruned.Add(1)
					if s.bus != nil {
						s.bus.Publish(eventbus.Event{Type: eventbus.TypeRecipientPruned, Data: map[string]string{"user": userID}})
					}
				}
				failed.Add(1)
			default:
				failed.Add(1)
				s.log.Warn("endpoint send failed", logx.String("user", userID), logx.String("type", typ), logx.Err(err))
			}
			s.appendLog(userID, typ, title, body, err)
		})
	}
	wg.Wait()

	ok := delivered.Load() > 0
	fields := []logx.Field{
		logx.String("user", userID),
		logx.String("type", typ),
		logx.Int64("delivered", delivered.Load()),
		logx.Int64("failed", failed.Load()),
		logx.Int64("pruned", pruned.Load()),
		logx.Duration("dur", time.Since(start)),
	}
	if ok {
		s.log.Debug("dispatch finished", fields...)
	} else {
		s.log.Warn("dispatch finished with no successful endpoint", fields...)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchDone, Data: map[string]any{
			"user": userID, "type": typ, "delivered": delivered.Load(), "failed": failed.Load(),
		}})
	}
	return ok
}

// appendLog writes one delivery-log entry for a single endpoint attempt.
func (s *Service) appendLog(userID, typ, title, body string, sendErr error) {
	e := domain.DeliveryEntry{
		Type:    typ,
		Title:   title,
		Body:    body,
		At:      time.Now().UTC(),
		Success: sendErr == nil,
	}
	if sendErr != nil {
		e.Error = sendErr.Error()
	}
	// Log writes use a fresh context: a canceled fan-out must still record
	// its outcomes.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.AppendDelivery(ctx, userID, e); err != nil {
		s.log.Warn("delivery log append failed", logx.String("user", userID), logx.Err(err))
	}
}
