package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
)

const secret = "test-secret"

type seen struct {
	tenantID   string
	operatorID string
	scopes     []string
}

func capture(s *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tenantID = GetTenantID(r.Context())
		s.operatorID = GetOperatorID(r.Context())
		s.scopes = GetScopes(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuth(t *testing.T) {
	valid, err := SignToken(secret, "tenant-1", "operator-1", []string{ScopeChannel}, time.Hour)
	require.NoError(t, err)

	expired, err := SignToken(secret, "tenant-1", "operator-1", nil, -time.Minute)
	require.NoError(t, err)

	otherKey, err := SignToken("other", "tenant-1", "operator-1", nil, time.Hour)
	require.NoError(t, err)

	noTenant, err := SignToken(secret, "", "operator-1", nil, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TenantID: "tenant-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent},
		{"lowercase scheme", "bearer " + valid, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + otherKey, http.StatusUnauthorized},
		{"no tenant", "Bearer " + noTenant, http.StatusUnauthorized},
		{"alg none", "Bearer " + unsigned, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s seen
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Auth(secret)(capture(&s)).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "tenant-1", s.tenantID)
				assert.Equal(t, "operator-1", s.operatorID)
				assert.Equal(t, []string{ScopeChannel}, s.scopes)
			} else {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestSignTokenRequiresSecret(t *testing.T) {
	_, err := SignToken("", "t", "o", nil, time.Hour)
	assert.Error(t, err)
}

func TestRequireScope(t *testing.T) {
	withScope, err := SignToken(secret, "tenant-1", "operator-1", []string{ScopeChannel}, time.Hour)
	require.NoError(t, err)
	without, err := SignToken(secret, "tenant-1", "operator-1", nil, time.Hour)
	require.NoError(t, err)

	h := Auth(secret)(RequireScope(ScopeChannel)(capture(&seen{})))

	for token, want := range map[string]int{withScope: http.StatusNoContent, without: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}
}

func TestLoggingSetsCorrelationID(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(Logging(logger.NewNop()))
	r.Get("/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/abc", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.NotEmpty(t, got)
		assert.Equal(t, got, rec.Header().Get("X-Correlation-ID"))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/conversations/abc", nil)
		req.Header.Set("X-Correlation-ID", "corr-123")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, "corr-123", got)
		assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))
	})
}

func TestIdentifyFillsLoggingHolder(t *testing.T) {
	token, err := SignToken(secret, "tenant-1", "operator-1", nil, time.Hour)
	require.NoError(t, err)

	var holder *requestIdentity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		holder, _ = r.Context().Value(identityKey).(*requestIdentity)
	})
	h := Logging(logger.NewNop())(Auth(secret)(Identify(inner)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, holder)
	assert.Equal(t, "tenant-1", holder.tenantID)
	assert.Equal(t, "operator-1", holder.operatorID)
}

func TestOperatorRateLimit(t *testing.T) {
	h := OperatorRateLimit(2, time.Minute)(capture(&seen{}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(capture(&seen{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateConversationID("0192a3f0-0000-7000-8000-000000000001"))
	assert.Error(t, ValidateConversationID("not-a-uuid"))
	assert.Error(t, ValidateMessageID(""))

	assert.NoError(t, ValidateMessageContent(""))
	assert.NoError(t, ValidateMessageContent("olá"))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", maxMessageLength+1)))
	assert.Error(t, ValidateMessageContent("\xff"))

	assert.NoError(t, ValidateLabel("VIP"))
	assert.Error(t, ValidateLabel(strings.Repeat("x", 65)))

	assert.Error(t, ValidateTenantID(""))
	assert.NoError(t, ValidateTenantID("tenant-1"))
}
