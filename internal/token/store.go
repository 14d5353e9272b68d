// Package token implements the single-use magic-link credential store: an
// in-memory fast path backed by a durable mirror so links survive restarts.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stayverify/stayverify/internal/model"
)

const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound means the token does not exist in either store.
	ErrNotFound = errors.New("token not found")
	// ErrExpired means the token exists but is past its expiry. Callers show
	// the same user-facing message as ErrNotFound; the distinction is for logs.
	ErrExpired = errors.New("token expired")
	// ErrEmailMismatch means the token is bound to a different email than the
	// caller supplied. This is a "wrong account" error, not an invalid link.
	ErrEmailMismatch = errors.New("token bound to a different email")
)

// DurableStore is the persistent mirror behind the fast store.
type DurableStore interface {
	Put(model.AuthToken) error
	Get(token string) (*model.AuthToken, error)
	Delete(token string) error
}

// Store is a two-tier single-use token store. Reads hit the in-memory map
// first and fall back to the durable mirror, re-hydrating the map on a hit.
type Store struct {
	mu      sync.RWMutex
	fast    map[string]model.AuthToken
	durable DurableStore
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a token store over the given durable mirror.
func New(durable DurableStore, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		fast:    make(map[string]model.AuthToken),
		durable: durable,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Issue generates a high-entropy token bound to the email. The fast store is
// written synchronously; the durable mirror is written from a goroutine and
// retried, since it is best-effort enrichment for restart survival.
func (s *Store) Issue(email string) (model.AuthToken, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return model.AuthToken{}, fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UTC()
	t := model.AuthToken{
		Token:     hex.EncodeToString(tokenBytes),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.fast[t.Token] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mirror(t)
	}()

	return t, nil
}

func (s *Store) mirror(t model.AuthToken) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(2, retry.NewConstant(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.durable.Put(t); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("mirror token to durable store", "error", err)
	}
}

// Resolve returns the token record when it exists, is unexpired, and is
// bound to the supplied email. A fast-store miss falls back to the durable
// mirror; a durable hit re-hydrates the fast store so later reads are cheap.
// An expired durable record is deleted in passing.
func (s *Store) Resolve(token, email string) (*model.AuthToken, error) {
	now := s.now().UTC()

	s.mu.RLock()
	t, ok := s.fast[token]
	s.mu.RUnlock()

	if !ok {
		durable, err := s.durable.Get(token)
		if err != nil {
			return nil, fmt.Errorf("durable lookup: %w", err)
		}
		if durable == nil {
			return nil, ErrNotFound
		}
		if durable.Expired(now) {
			if err := s.durable.Delete(token); err != nil {
				s.logger.Error("delete expired durable token", "error", err)
			}
			return nil, ErrExpired
		}
		t = *durable
		s.mu.Lock()
		s.fast[token] = t
		s.mu.Unlock()
	}

	if t.Expired(now) {
		s.mu.Lock()
		delete(s.fast, token)
		s.mu.Unlock()
		return nil, ErrExpired
	}
	if t.Email != email {
		return nil, ErrEmailMismatch
	}
	return &t, nil
}

// Consume deletes the token from both stores. Called exactly once per
// successful verification, after the email and expiry checks pass, so the
// link cannot be replayed.
func (s *Store) Consume(token string) error {
	s.mu.Lock()
	delete(s.fast, token)
	s.mu.Unlock()

	if err := s.durable.Delete(token); err != nil {
		return fmt.Errorf("consume durable token: %w", err)
	}
	return nil
}

// Sweep removes expired entries from the fast store and returns the count.
// Durable entries are left to expire lazily on Resolve.
func (s *Store) Sweep() int {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, t := range s.fast {
		if t.Expired(now) {
			delete(s.fast, token)
			removed++
		}
	}
	return removed
}

// Close waits for in-flight durable mirror writes to finish.
func (s *Store) Close() {
	s.wg.Wait()
}
