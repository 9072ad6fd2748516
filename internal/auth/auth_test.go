package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "gate-devices"

func TestHMACRoundTrip(t *testing.T) {
	token, err := IssueToken(secret, Staff{ID: "staff-a", Name: "Gate A"}, time.Hour)
	require.NoError(t, err)

	staff, err := NewHMACVerifier(secret).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "staff-a", staff.ID)
	assert.Equal(t, "Gate A", staff.Name)
	assert.WithinDuration(t, time.Now().Add(time.Hour), staff.Expiry, 5*time.Second)
}

func TestHMACRejects(t *testing.T) {
	v := NewHMACVerifier(secret)
	ctx := context.Background()

	wrongKey, err := IssueToken("other", Staff{ID: "staff-a"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(ctx, wrongKey)
	assert.Error(t, err)

	expired, err := IssueToken(secret, Staff{ID: "staff-a"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, expired)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "staff-a"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(ctx, none)
	assert.Error(t, err, "unsigned tokens are refused")

	_, err = v.Verify(ctx, "")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/scanner/orders", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	token, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r = httptest.NewRequest(http.MethodGet, "/stream?access_token=xyz", nil)
	token, err = ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Middleware(NewHMACVerifier(secret), logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = StaffID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHORIZED", body.Code)

	token, err := IssueToken(secret, Staff{ID: "staff-a"}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "staff-a", seen)
}

type countingVerifier struct {
	calls int
	err   error
}

func (c *countingVerifier) Verify(context.Context, string) (Staff, error) {
	c.calls++
	if c.err != nil {
		return Staff{}, c.err
	}
	return Staff{ID: "staff-a", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestCachedVerifier(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingVerifier{}
	cached := NewCachedVerifier(next, client, 10*time.Minute, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		staff, err := cached.Verify(ctx, "token-1")
		require.NoError(t, err)
		assert.Equal(t, "staff-a", staff.ID)
	}
	assert.Equal(t, 1, next.calls)

	key := tokenKey("token-1")
	assert.True(t, mr.Exists(key))
	assert.NotContains(t, key, "token-1", "raw tokens are never stored")
	assert.LessOrEqual(t, mr.TTL(key), 10*time.Minute)

	mr.FastForward(11 * time.Minute)
	_, err = cached.Verify(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedVerifierDoesNotCacheFailures(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingVerifier{err: errors.New("bad signature")}
	cached := NewCachedVerifier(next, client, time.Minute, logger.Discard())

	_, err = cached.Verify(context.Background(), "token-1")
	assert.Error(t, err)
	_, err = cached.Verify(context.Background(), "token-1")
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestChain(t *testing.T) {
	token, err := IssueToken(secret, Staff{ID: "staff-a"}, time.Hour)
	require.NoError(t, err)

	chain := Chain{NewHMACVerifier("wrong"), NewHMACVerifier(secret)}
	staff, err := chain.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "staff-a", staff.ID)

	_, err = Chain{}.Verify(context.Background(), token)
	assert.Error(t, err)
}
