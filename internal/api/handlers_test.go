package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Tracker, *httptest.Server) {
	t.Helper()
	tracker := NewTracker()
	srv := httptest.NewServer(NewHandlers(tracker, testLogger()).Router())
	t.Cleanup(srv.Close)
	return tracker, srv
}

func getJSON(t *testing.T, u string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	tracker, srv := newTestServer(t)

	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "run_id")

	require.NoError(t, tracker.RunStarted(context.Background(), models.RunInfo{ID: "run-1", Status: models.RunRunning}))
	body = nil
	getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "running", body["run_status"])
}

func TestGetRunBeforeStart(t *testing.T) {
	_, srv := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/run", &body))
	assert.Equal(t, "no run started", body["error"])
}

func TestRunProgress(t *testing.T) {
	tracker, srv := newTestServer(t)
	ctx := context.Background()

	clock := time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	require.NoError(t, tracker.RunStarted(ctx, models.RunInfo{ID: "run-1", Window: "2024-05-09", Status: models.RunRunning}))
	tracker.CategoryStarted("cameras")
	tracker.CategoryStarted("tablets")
	tracker.CategoryFinished(scheduler.Outcome{
		Category: models.Category{Name: "cameras"},
		Result:   models.CategoryResult{ListingsKept: 4},
	})
	tracker.CategoryStarted("smart-tv")
	tracker.CategoryFinished(scheduler.Outcome{Category: models.Category{Name: "smart-tv"}, Err: errors.New("discovery failed")})
	require.NoError(t, tracker.CategoryDone(ctx, models.CategoryReport{Category: "cameras", Status: models.StatusUploaded, ListingsKept: 4}))

	var snap Snapshot
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/run", &snap))
	require.NotNil(t, snap.Run)
	assert.Equal(t, "run-1", snap.Run.ID)
	assert.Equal(t, 1, snap.InFlight)

	require.Len(t, snap.Categories, 3)
	assert.Equal(t, "cameras", snap.Categories[0].Name)
	assert.Equal(t, StateDone, snap.Categories[0].State)
	assert.Equal(t, models.StatusUploaded, snap.Categories[0].Status)
	assert.Equal(t, StateRunning, snap.Categories[1].State)
	assert.Equal(t, StateHarvested, snap.Categories[2].State)
	assert.Equal(t, "discovery failed", snap.Categories[2].Error)

	var p CategoryProgress
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/run/categories/cameras", &p))
	assert.Equal(t, 4, p.Kept)

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/run/categories/"+url.PathEscape("nope"), &missing))

	finished := clock
	require.NoError(t, tracker.RunFinished(ctx, models.RunInfo{ID: "run-1", Status: models.RunCompleted, FinishedAt: &finished}))
	snap = Snapshot{}
	getJSON(t, srv.URL+"/api/v1/run", &snap)
	assert.Equal(t, models.RunCompleted, snap.Run.Status)
	assert.Len(t, snap.Categories, 3)
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/run", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
