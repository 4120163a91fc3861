package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/oneshot/internal/database"
	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/server"
)

func TestAddresses(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", httpURL(":8000"))
	assert.Equal(t, "http://10.0.0.2:8000", httpURL("10.0.0.2:8000"))
	assert.Equal(t, "https://snap.local", httpURL("https://snap.local/"))
	assert.Equal(t, "localhost:50061", dialAddr(":50061"))
}

// fakeServer serves the REST surface: the first capture request publishes an
// outcome after a couple of polls.
func fakeServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	var polls atomic.Int32
	var requested atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/capture", func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusAccepted {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(server.ErrorMessage{Type: "error", Code: "CAPTURE_BUSY", Message: "a capture is already in progress"})
			return
		}
		requested.Store(true)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /api/outcome", func(w http.ResponseWriter, _ *http.Request) {
		if !requested.Load() || polls.Add(1) < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(server.OutcomeMessage{Type: "outcome", Success: true, FileName: "shot.jpg", Timestamp: 1700000000000})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestRequestAndAwaitOutcome(t *testing.T) {
	ts := fakeServer(t, http.StatusAccepted)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := fetchOutcome(ctx, ts.URL)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	require.NoError(t, requestCapture(ctx, ts.URL))
	out, err := awaitOutcome(ctx, ts.URL, 0, 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "shot.jpg", out.FileName)

	var buf bytes.Buffer
	printOutcome(&buf, out)
	assert.True(t, strings.HasPrefix(buf.String(), "Saved shot.jpg ("))
}

func TestRequestCaptureError(t *testing.T) {
	ts := fakeServer(t, http.StatusConflict)
	err := requestCapture(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAPTURE_BUSY")
}

func TestAwaitOutcomeTimeout(t *testing.T) {
	ts := fakeServer(t, http.StatusAccepted)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := awaitOutcome(ctx, ts.URL, 0, 5*time.Millisecond)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTimeout), "err = %v", err)
}

func TestLocalOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oneshot.db")
	ctx := context.Background()

	_, err := localOutcome(ctx, path)
	require.Error(t, err)

	db, err := database.Open(path)
	require.NoError(t, err)
	rel := relay.New(database.NewMailboxStore(db), relay.Options{})
	written, err := rel.Write(ctx, relay.Record{Error: relay.ErrSecureContent})
	require.NoError(t, err)
	require.NoError(t, database.Close(db))

	out, err := localOutcome(ctx, path)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, relay.ErrSecureContent, out.Error)
	assert.Equal(t, written.Timestamp, out.Timestamp)
}

func TestRenderGallery(t *testing.T) {
	shots := []*database.Screenshot{
		{FileName: "Screenshot_a.jpg", Label: "firefox", Width: 1280, Height: 800, Bytes: 4096, CapturedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{FileName: "Screenshot_b.jpg", Label: "unknown", Width: 64, Height: 48, Bytes: 2048, SimilarTo: "abc"},
	}
	var buf bytes.Buffer
	renderGallery(&buf, shots)

	out := buf.String()
	assert.Contains(t, out, "Screenshot_a.jpg")
	assert.Contains(t, out, "1280x800")
	assert.Contains(t, out, "2024-05-01 12:00:00")
	assert.Contains(t, out, "abc")
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStatus(&buf, &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}))
	assert.Contains(t, buf.String(), "NOT_SERVING")
}
