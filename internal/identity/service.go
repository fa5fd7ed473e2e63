// Package identity owns user records and credential verification.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/cache"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store"
)

const (
	UsersCacheKey     = "users:all"
	MinPasswordLength = 6
)

// ListCache holds the cached user listing. *cache.Cache satisfies it.
type ListCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Service struct {
	users    store.Users
	hasher   Hasher
	cache    ListCache
	cacheTTL time.Duration
}

// NewService builds the credential store. c may be nil, in which case List
// always reads through to storage.
func NewService(users store.Users, hasher Hasher, c ListCache, cacheTTL time.Duration) *Service {
	return &Service{users: users, hasher: hasher, cache: c, cacheTTL: cacheTTL}
}

type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return u, nil
}

func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}
	return u, nil
}

// Create stores a new user with a hashed password. The unique email index is
// authoritative; the lookup beforehand only short-circuits the hash.
func (s *Service) Create(ctx context.Context, name, email, rawPassword string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if err := validateUser(name, email, rawPassword); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperr.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicateEmail)
	}

	s.invalidate(ctx)
	return u, nil
}

func (s *Service) VerifyPassword(raw, storedHash string) bool {
	return s.hasher.Compare(storedHash, raw)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, upd UserUpdate) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, nil)
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
		}
		u.Name = name
	}
	if upd.Email != nil {
		email := NormalizeEmail(*upd.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: invalid email", apperr.ErrInvalidInput)
		}
		u.Email = email
	}
	if upd.Password != nil {
		if len(*upd.Password) < MinPasswordLength {
			return nil, fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalidInput, MinPasswordLength)
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, apperr.FromStore(err, apperr.ErrDuplicateEmail)
	}

	s.invalidate(ctx)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return apperr.FromStore(err, nil)
	}
	s.invalidate(ctx)
	return nil
}

// List serves the user listing from cache, filling it on a miss.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	if s.cache != nil {
		var cached []models.User
		err := s.cache.Get(ctx, UsersCacheKey, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("users cache read failed", "error", err)
		}
	}
	return s.load(ctx)
}

// WarmCache reloads the listing from storage and stores it in the cache.
func (s *Service) WarmCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if err := s.cache.Set(ctx, UsersCacheKey, users, s.cacheTTL); err != nil {
		return fmt.Errorf("store users cache: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, UsersCacheKey, users, s.cacheTTL); err != nil {
			slog.Warn("users cache write failed", "error", err)
		}
	}
	return users, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, UsersCacheKey); err != nil {
		slog.Warn("users cache invalidation failed", "error", err)
	}
}

func validateUser(name, email, password string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email", apperr.ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalidInput, MinPasswordLength)
	}
	return nil
}
