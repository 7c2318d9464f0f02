package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerniPi/BGBB-IKT/internal/application"
)

func TestRequireToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "missing credentials", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic Zm9vOmJhcg==", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "bearer good", wantStatus: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var seen application.Principal
			handler := RequireToken(verifierStub{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/activity/log", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusNoContent {
				assert.Equal(t, "alice", seen.Username)
			} else {
				assert.Empty(t, seen.Username)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	t.Run("echoes a caller supplied request id", func(t *testing.T) {
		t.Parallel()
		var hasLogger bool
		handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasLogger = LoggerFromContext(r.Context()) != nil
		}))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
		assert.True(t, hasLogger)
	})

	t.Run("generates a request id when absent", func(t *testing.T) {
		t.Parallel()
		handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Len(t, rec.Header().Get(requestIDHeader), 36)
	})
}

type pingStub struct{ err error }

func (p pingStub) Ping(ctx context.Context) error { return p.err }

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	ok := httptest.NewRecorder()
	NewRouter(RouterConfig{Health: pingStub{}}).ServeHTTP(ok, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, ok.Code)

	down := httptest.NewRecorder()
	NewRouter(RouterConfig{Health: pingStub{err: errors.New("closed")}}).ServeHTTP(down, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, down.Code)
}

func TestRouter_APIRequiresToken(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		History:  NewHistoryHandler(&historyServiceStub{}, nil),
		Verifier: verifierStub{},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/devices/D/rooms-history", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
