package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyd/internal/quota"
)

func newTestRouter(t *testing.T) (chi.Router, *quota.Ledger) {
	t.Helper()
	ledger, err := quota.NewLedger(quota.NewInMemoryStore(), 10)
	require.NoError(t, err)

	h := New(ledger, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	r.Route("/api/v1", h.RegisterAdmin)
	return r, ledger
}

func TestHandleSubscribe(t *testing.T) {
	router, ledger := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities/subscribe",
		strings.NewReader(`{"identity": "VIP@Example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "vip@example.com", resp["identity"])
	assert.Equal(t, "subscribed", resp["status"])

	usage, err := ledger.Usage(req.Context(), "vip@example.com")
	require.NoError(t, err)
	assert.True(t, usage.Subscribed)
}

func TestHandleSubscribe_MissingIdentity(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities/subscribe",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bad_request", resp["error"])
}

func TestHandleSubscribe_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities/subscribe",
		strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUsage(t *testing.T) {
	router, ledger := newTestRouter(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		_, err := ledger.Commit(ctx, "alice@example.com")
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities/alice@example.com/usage", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice@example.com", resp["identity"])
	assert.Equal(t, float64(3), resp["uploads_used"])
	assert.Equal(t, float64(7), resp["free_remaining"])
	assert.Equal(t, false, resp["subscribed"])
}
