// Package session mints and verifies access and refresh tokens and tracks the
// currently valid refresh token per user.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	refresh    RefreshStore
	now        func() time.Time
}

func NewIssuer(cfg Config, refresh RefreshStore) *Issuer {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		refresh:    refresh,
		now:        time.Now,
	}
}

// Issue mints an access/refresh pair and records the refresh token as the
// user's only valid one, replacing any earlier value.
func (i *Issuer) Issue(ctx context.Context, sub Subject) (*TokenPair, error) {
	access, err := i.MintAccess(sub)
	if err != nil {
		return nil, err
	}
	refresh, err := i.sign(&Claims{Type: TypeRefresh, RegisteredClaims: i.registered(sub.UserID, i.refreshTTL)})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	if err := i.refresh.Save(ctx, sub.UserID, refresh, i.refreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.accessTTL.Seconds()),
	}, nil
}

// MintAccess signs a new access token without touching refresh state.
func (i *Issuer) MintAccess(sub Subject) (string, error) {
	token, err := i.sign(&Claims{
		Email:            sub.Email,
		Name:             sub.Name,
		Type:             TypeAccess,
		RegisteredClaims: i.registered(sub.UserID, i.accessTTL),
	})
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	claims, err := i.verify(token, TypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}
	return claims, nil
}

func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	claims, err := i.verify(token, TypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidRefreshToken, err)
	}
	return claims, nil
}

// Store exposes the refresh state backing the issuer.
func (i *Issuer) Store() RefreshStore { return i.refresh }

func (i *Issuer) registered(userID uuid.UUID, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (i *Issuer) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Issuer) verify(tokenStr, typ string) (*Claims, error) {
	if tokenStr == "" {
		return nil, errors.New("missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("expected %s token, got %q", typ, claims.Type)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
