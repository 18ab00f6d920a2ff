package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/internal/http/handlers"
	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

const testAdminSecret = "test-admin-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := logging.Default()
	cache := conversation.NewCache(rdb, time.Hour, logger)
	flags := conversation.NewFlagStore(rdb, logger)
	publisher := conversation.NewPublisher(conversation.NewMemoryQueue(16), logger)

	reg := prometheus.NewRegistry()

	return New(&Config{
		Logger:             logger,
		Health:             handlers.NewHealthHandler(rdb),
		WhatsAppWebhook:    handlers.NewWhatsAppWebhookHandler(publisher, logger),
		VoiceWebhook:       handlers.NewVoiceWebhookHandler(cache, publisher, logger),
		AdminFlags:         handlers.NewAdminFlagsHandler(flags, logger),
		AdminConversations: handlers.NewAdminConversationsHandler(cache, logger),
		AdminLeads:         handlers.NewAdminLeadsHandler(leads.NewInMemoryRepository(), logger),
		AdminAuthSecret:    testAdminSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops@hampstead-renovations.co.uk",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRouterPublicRoutes(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/nope", want: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/flags", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAdminWithToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/flags", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, testAdminSecret))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterAdminRejectsWrongSecret(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "someone-elses-secret"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAdminRoutesAbsentWithoutSecret(t *testing.T) {
	logger := logging.Default()

	r := New(&Config{
		Logger: logger,
		Health: handlers.NewHealthHandler(nil),
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/flags", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
