package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	tok, err := GenerateToken(Claims{UserID: 42, Email: "a@b.c", Role: "ADMIN", Name: "Ann", Type: TokenAccess}, testSecret, time.Hour)
	require.NoError(t, err)

	c, err := ParseToken(tok, testSecret, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.UserID)
	assert.Equal(t, "a@b.c", c.Email)
	assert.Equal(t, "ADMIN", c.Role)
	assert.Equal(t, "Ann", c.Name)
	assert.NotEmpty(t, c.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.ExpiresAt, 5*time.Second)
}

func TestParseTokenRejectsWrongTypeSecretAndExpiry(t *testing.T) {
	refresh, err := GenerateToken(Claims{UserID: 1, Type: TokenRefresh}, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(refresh, testSecret, TokenAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = ParseToken(refresh, "other", TokenRefresh)
	assert.Error(t, err)

	expired, err := GenerateToken(Claims{UserID: 1, Type: TokenAccess}, testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, testSecret, TokenAccess)
	assert.Error(t, err)
}

func TestTokensAreUnique(t *testing.T) {
	a, _ := GenerateToken(Claims{UserID: 1, Type: TokenRefresh}, testSecret, time.Hour)
	b, _ := GenerateToken(Claims{UserID: 1, Type: TokenRefresh}, testSecret, time.Hour)
	assert.NotEqual(t, a, b)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", ExtractToken(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(r))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.True(t, CheckPassword("secret1", hash))
	assert.False(t, CheckPassword("wrong", hash))
	assert.False(t, CheckPassword("secret1", ""))
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(32)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	b, _ := RandomHex(32)
	assert.NotEqual(t, a, b)
}

func TestDeduperAcquireAndRelease(t *testing.T) {
	store := newMemRedis()
	d := NewDeduper(store, time.Hour, nil)
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "mail", "evt-1"))
	assert.False(t, d.AcquireOnce(ctx, "mail", "evt-1"))
	assert.True(t, d.AcquireOnce(ctx, "other", "evt-1"))

	d.Release(ctx, "mail", "evt-1")
	assert.True(t, d.AcquireOnce(ctx, "mail", "evt-1"))
}

func TestDeduperAllowsWhenRedisDown(t *testing.T) {
	store := newMemRedis()
	store.failErr = errors.New("connection refused")
	d := NewDeduper(store, time.Hour, nil)

	assert.True(t, d.AcquireOnce(context.Background(), "mail", "evt-1"))
	assert.True(t, d.AcquireOnce(context.Background(), "mail", "evt-1"))
}

func TestRetryCounter(t *testing.T) {
	store := newMemRedis()
	rc := NewRetryCounter(store, 15*time.Minute)
	ctx := context.Background()
	key := FormatRetryKey("mail", "evt-1")

	n, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = rc.IncrementAndGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 15*time.Minute, store.ttls[key])

	n, _ = rc.IncrementAndGet(ctx, key)
	assert.Equal(t, int64(2), n)

	n, _ = rc.Get(ctx, key)
	assert.Equal(t, int64(2), n)

	require.NoError(t, rc.Reset(ctx, key))
	n, _ = rc.Get(ctx, key)
	assert.Equal(t, int64(0), n)
}

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}
	cases := []struct {
		err       error
		retryable bool
		kind      string
	}{
		{nil, false, ""},
		{fmt.Errorf("send: %w", ErrPermanent), false, "permanent"},
		{syntaxErr, false, "json_decode_error"},
		{fmt.Errorf("load user: %w", pgx.ErrNoRows), false, "record_not_found"},
		{&textproto.Error{Code: 451, Msg: "try later"}, true, "smtp_transient"},
		{&textproto.Error{Code: 550, Msg: "no such user"}, false, "smtp_rejected"},
		{context.DeadlineExceeded, true, "timeout"},
		{context.Canceled, false, "context_canceled"},
		{errors.New("dial tcp: connection refused"), true, "connection_error"},
		{errors.New("something odd"), false, "unknown_error"},
	}
	for _, tc := range cases {
		retryable, kind := IsRetryableError(tc.err)
		assert.Equal(t, tc.retryable, retryable, "%v", tc.err)
		assert.Equal(t, tc.kind, kind, "%v", tc.err)
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
