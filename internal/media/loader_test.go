package media_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/provider/resilience"
)

func TestHTTPLoader_Image(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/video_feed/int-001", r.URL.Path)
		assert.Equal(t, "123", r.URL.Query().Get(media.TokenParam))
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	l := media.NewHTTPLoader(media.HTTPLoaderConfig{})
	frame, err := l.Load(context.Background(), server.URL+"/api/video_feed/int-001?fps=1&t=123")

	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", frame.ContentType)
	assert.Equal(t, []byte("jpeg-bytes"), frame.Data)
}

func TestHTTPLoader_MultipartReadsFirstPart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for _, body := range []string{"first", "second"} {
			_, _ = fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n%s\r\n", body)
		}
	}))
	defer server.Close()

	l := media.NewHTTPLoader(media.HTTPLoaderConfig{})
	frame, err := l.Load(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", frame.ContentType)
	assert.Equal(t, []byte("first"), frame.Data)
}

func TestHTTPLoader_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantErr     error
	}{
		{"server error", http.StatusInternalServerError, "text/plain", "boom", nil},
		{"not found", http.StatusNotFound, "text/plain", "missing", nil},
		{"html page", http.StatusOK, "text/html", "<html>", media.ErrUnexpectedContent},
		{"too large", http.StatusOK, "image/png", "0123456789abcdef", media.ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			l := media.NewHTTPLoader(media.HTTPLoaderConfig{MaxFrameSize: 8})
			_, err := l.Load(context.Background(), server.URL)

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestHTTPLoader_SendsOnceAndReportsHealth(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	l := media.NewHTTPLoader(media.HTTPLoaderConfig{Registry: registry})

	_, err := l.Load(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "the controller owns retries")

	health := registry.GetHealth(media.ProviderName)
	require.NotNil(t, health)
	assert.NotNil(t, health.LastFailureAt)
}

type frameSource struct{ err error }

func (s frameSource) Frame(_ context.Context, locator string) ([]byte, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte(locator), "image/png", nil
}

func TestSourceLoader(t *testing.T) {
	frame, err := media.SourceLoader(frameSource{}).Load(context.Background(), "fixture://video_feed/int-001")
	require.NoError(t, err)
	assert.Equal(t, "image/png", frame.ContentType)
	assert.Equal(t, []byte("fixture://video_feed/int-001"), frame.Data)

	boom := errors.New("boom")
	_, err = media.SourceLoader(frameSource{err: boom}).Load(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}
