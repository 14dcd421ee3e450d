package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Score(t *testing.T) {
	t.Run("returns score from service", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "/tmp/clip.mp4", req["path"])
			_ = json.NewEncoder(w).Encode(map[string]int{"score": 95})
		}))
		defer srv.Close()

		score, err := NewClient(srv.URL).Score(context.Background(), "/tmp/clip.mp4")
		require.NoError(t, err)
		assert.Equal(t, 95, score)
	})

	t.Run("rejects out-of-range score", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]int{"score": 140})
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Score(context.Background(), "clip.mp4")
		assert.Error(t, err)
	})

	t.Run("surfaces non-200 responses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Score(context.Background(), "clip.mp4")
		assert.Error(t, err)
	})
}

func TestFixed(t *testing.T) {
	score, err := Fixed(100).Score(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 100, score)

	_, err = Fixed(101).Score(context.Background(), "anything")
	assert.Error(t, err)
}
