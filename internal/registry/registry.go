// Package registry owns the lifecycle of a user's delivery endpoints: token
// registration, removal, pruning after permanent transport failures, and
// the structural token check used before schedules are armed.
//
// Its mutex is also the serialization point for every read-modify-write of
// a user document: callers that mutate other parts of the document (the
// schedule handlers) go through Update so a schedule write can never race a
// token registration and clobber it.
package registry

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"dreampulse/internal/domain"
	"dreampulse/internal/storage"
	"dreampulse/pkg/logx"
)

// tokenPattern is a structural check only: it catches obviously malformed
// tokens before they are armed into a schedule. Passing it does not mean
// the transport will accept the token.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_:\-]+$`)

const tokenMinLen = 20

// ValidateFormat reports whether token looks like a plausible endpoint
// token (minimum length, restricted character class).
func ValidateFormat(token string) bool {
	return len(token) >= tokenMinLen && tokenPattern.MatchString(token)
}

// Service serializes recipient mutations so concurrent read-modify-write
// cycles against the document store can't lose updates.
type Service struct {
	mu    sync.Mutex
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{store: store, log: log}
}

// Add registers a token for the user, creating the user record on first
// registration. Adding a token the user already has is a no-op, but the
// user's LastTokenUpdate timestamp is bumped either way.
func (s *Service) Add(ctx context.Context, userID, token, deviceInfo string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		u = domain.NewUser(userID)
	} else if err != nil {
		return false, err
	}

	added := false
	if !u.HasRecipient(token) {
		u.Recipients = append(u.Recipients, domain.Recipient{
			Token:      token,
			DeviceInfo: deviceInfo,
			AddedAt:    time.Now().UTC(),
		})
		added = true
	}
	u.LastTokenUpdate = time.Now().UTC()

	if err := s.store.PutUser(ctx, u); err != nil {
		return false, err
	}
	if added {
		s.log.Debug("recipient registered", logx.String("user", userID), logx.Int("recipients", len(u.Recipients)))
	}
	return added, nil
}

// Update applies fn to the user's document and persists the result under
// the same lock that serializes recipient mutations. An unknown user starts
// from defaults, so schedules can be configured before the first token is
// registered. fn returning an error aborts without writing.
func (s *Service) Update(ctx context.Context, userID string, fn func(*domain.User) error) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		u = domain.NewUser(userID)
	} else if err != nil {
		return nil, err
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	if err := s.store.PutUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Remove deletes the one matching token; no-op if absent.
func (s *Service) Remove(ctx context.Context, userID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	kept := u.Recipients[:0]
	removed := false
	for _, r := range u.Recipients {
		if r.Token == token {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		return false, nil
	}
	u.Recipients = kept
	u.LastTokenUpdate = time.Now().UTC()

	if err := s.store.PutUser(ctx, u); err != nil {
		return false, err
	}
	s.log.Debug("recipient removed", logx.String("user", userID), logx.Int("recipients", len(u.Recipients)))
	return true, nil
}

// RemoveAll drops every recipient the user has (account deletion path).
func (s *Service) RemoveAll(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	u.Recipients = nil
	u.LastTokenUpdate = time.Now().UTC()
	return s.store.PutUser(ctx, u)
}

// List returns the user's recipients (empty for unknown users).
func (s *Service) List(ctx context.Context, userID string) ([]domain.Recipient, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u.Recipients, nil
}

// Count returns the number of registered recipients for the user.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	rs, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(rs), nil
}
