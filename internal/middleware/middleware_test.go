package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-pms-core/internal/config"
)

const secret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/r", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	var actor, hotel uint64
	e.GET("/r", func(c echo.Context) error {
		actor = ActorID(c)
		hotel, _ = c.Get("hotel_id").(uint64)
		return c.NoContent(http.StatusNoContent)
	}, JWTAuth(secret), RequireRole("FRONT_DESK", "MANAGER"))

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"garbage", "abc.def.ghi", http.StatusUnauthorized},
		{"non numeric subject", signed(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "bob", "role": "MANAGER", "exp": exp}), http.StatusUnauthorized},
		{"expired", signed(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "role": "MANAGER", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"wrong role", signed(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "role": "HOUSEKEEPING", "exp": exp}), http.StatusForbidden},
		{"front desk lower case", signed(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "role": "front_desk", "hotel_id": 3, "exp": exp}), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, tt.token)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, uint64(7), actor)
	assert.Equal(t, uint64(3), hotel)
}

func TestDisabledLayersPassThrough(t *testing.T) {
	e := echo.New()
	e.GET("/r", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil),
		NewRedisCache(config.CacheConfig{Enabled: false}, nil))

	rec := serve(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestCacheKeyDependsOnPathAndHotel(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	e := echo.New()
	key := func(target string, hotel uint64) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/reservations/:id")
		if hotel > 0 {
			c.Set("hotel_id", hotel)
		}
		return cacheKeyFrom(cfg, c)
	}
	assert.NotEqual(t, key("/v1/reservations/1", 0), key("/v1/reservations/2", 0))
	assert.NotEqual(t, key("/v1/reservations/1", 1), key("/v1/reservations/1", 2))
	assert.Equal(t, key("/v1/reservations/1?open=1", 1), key("/v1/reservations/1?open=1", 1))
	assert.Contains(t, key("/v1/reservations/1", 0), "cache:")
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"balance":"10.00"}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.JSONEq(t, `{"balance":"10.00"}`, string(body))

	_, _, _, ok = decodePayload(bs[:6])
	assert.False(t, ok)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations/4/check-in", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/reservations/:id/check-in")
	c.Set("user_id", "7")

	assert.Equal(t, "rl:ip:10.0.0.1:user:7:route:POST /v1/reservations/:id/check-in",
		buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c))
	assert.Equal(t, "rl:user:7", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
}
