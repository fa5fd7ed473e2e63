package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/cache"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/store/memory"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc   *Service
	store *memory.Store
	redis *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := memory.NewStore()
	svc := NewService(st.Users(), NewBcryptHasher(bcrypt.MinCost), cache.NewCache(client), time.Minute)
	return fixture{svc: svc, store: st, redis: mr}
}

func TestCreateNormalizesAndHashes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Create(ctx, " Ada ", "  Ada@Example.COM ", "secret1")
	require.NoError(t, err)
	require.Equal(t, "Ada", u.Name)
	require.Equal(t, "ada@example.com", u.Email)
	require.NotEqual(t, "secret1", u.PasswordHash)

	require.True(t, f.svc.VerifyPassword("secret1", u.PasswordHash))
	require.False(t, f.svc.VerifyPassword("secret2", u.PasswordHash))

	found, err := f.svc.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)
}

func TestCreateDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "Other", "ADA@example.com", "secret2")
	require.ErrorIs(t, err, apperr.ErrDuplicateEmail)
	require.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "Ada", "ada@example.com", "short")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.Create(ctx, "Ada", "not-an-email", "secret1")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.Create(ctx, "  ", "ada@example.com", "secret1")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestFindMissingUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListServedFromCacheUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)

	users, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.True(t, f.redis.Exists(UsersCacheKey))

	// written behind the service's back, so the cached listing is stale
	require.NoError(t, f.store.Users().Create(ctx, &models.User{Name: "Bob", Email: "bob@example.com"}))
	users, err = f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	_, err = f.svc.Create(ctx, "Cy", "cy@example.com", "secret1")
	require.NoError(t, err)
	require.False(t, f.redis.Exists(UsersCacheKey))

	users, err = f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
}

func TestWarmCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Users().Create(ctx, &models.User{Name: "Bob", Email: "bob@example.com"}))
	require.NoError(t, f.svc.WarmCache(ctx))
	require.True(t, f.redis.Exists(UsersCacheKey))

	ttl := f.redis.TTL(UsersCacheKey)
	require.Equal(t, time.Minute, ttl)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "Bob", "bob@example.com", "secret1")
	require.NoError(t, err)

	taken := "BOB@example.com"
	_, err = f.svc.Update(ctx, a.ID, UserUpdate{Email: &taken})
	require.ErrorIs(t, err, apperr.ErrDuplicateEmail)

	pw := "newsecret"
	updated, err := f.svc.Update(ctx, a.ID, UserUpdate{Password: &pw})
	require.NoError(t, err)
	require.True(t, f.svc.VerifyPassword("newsecret", updated.PasswordHash))
}

func TestServiceWithoutCache(t *testing.T) {
	st := memory.NewStore()
	svc := NewService(st.Users(), NewBcryptHasher(bcrypt.MinCost), nil, time.Minute)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NoError(t, svc.WarmCache(ctx))
}
