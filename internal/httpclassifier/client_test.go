package httpclassifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassifySendsImageAndDecodes(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		f, _, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			http.Error(w, "missing image", http.StatusBadRequest)
			return
		}
		defer f.Close()
		received, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category":"glass","confidence":0.47}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Timeout: time.Second}, zap.NewNop())
	result, err := c.Classify(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "glass", result.Category)
	assert.InDelta(t, 0.47, result.Confidence, 1e-9)
	assert.Equal(t, "jpeg-bytes", string(received))
}

func TestClassifyReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.Classify(context.Background(), []byte("x"))
	assert.Error(t, err)
}

func TestClassifyRejectsOutOfRangeConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category":"paper","confidence":3.5}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.Classify(context.Background(), []byte("x"))
	assert.Error(t, err)
}
