package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vigild/internal/decision"
	"github.com/fyrsmithlabs/vigild/internal/event"
	"github.com/fyrsmithlabs/vigild/internal/pipeline"
	"github.com/fyrsmithlabs/vigild/internal/store"
)

func testServer(t *testing.T) (*Server, *store.MemoryStore, *pipeline.Pipeline) {
	t.Helper()

	st := store.NewMemoryStore()
	decider, err := decision.NewDefaultEngine(decision.Thresholds{
		EscalationSustain:     30 * time.Second,
		HighConfidence:        0.75,
		BorderlineConfidence:  0.4,
		RecoveryMinConfidence: 0.6,
	})
	require.NoError(t, err)

	pipe, err := pipeline.New(pipeline.Config{
		SnapshotWindow: time.Minute,
	}, pipeline.Deps{
		Store:   st,
		Decider: decider,
	})
	require.NoError(t, err)

	srv, err := NewServer(st, pipe, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv, st, pipe
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("nil store rejected", func(t *testing.T) {
		_, err := NewServer(nil, &pipeline.Pipeline{}, zap.NewNop(), nil)
		assert.Error(t, err)
	})

	t.Run("nil logger rejected", func(t *testing.T) {
		_, err := NewServer(store.NewMemoryStore(), &pipeline.Pipeline{}, nil, nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleState(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/state")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, decision.StateIdle, resp.State)
	assert.Nil(t, resp.LastDecision)
}

func TestHandleEvents(t *testing.T) {
	srv, st, _ := testServer(t)
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	ev, err := event.NewAtomic(event.TypeRecovery, base.Add(10*time.Second), 0.9, "stream-0", nil)
	require.NoError(t, err)
	_, err = st.Append(context.Background(), ev)
	require.NoError(t, err)

	t.Run("returns stored events in window", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet,
			"/api/v1/events?start=2026-08-29T10:00:00Z&end=2026-08-29T10:01:00Z")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp EventsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, ev.ID, resp.Events[0].ID)
		assert.Equal(t, event.TypeRecovery, resp.Events[0].Type)
	})

	t.Run("missing bounds rejected", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/v1/events?start=2026-08-29T10:00:00Z")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed timestamp rejected", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/v1/events?start=yesterday&end=today")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("instant window matches the event at its bound", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet,
			"/api/v1/events?start=2026-08-29T10:00:10Z&end=2026-08-29T10:00:10Z")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp EventsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, ev.ID, resp.Events[0].ID)
	})

	t.Run("inverted bounds rejected", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet,
			"/api/v1/events?start=2026-08-29T10:01:00Z&end=2026-08-29T10:00:00Z")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleDecisions(t *testing.T) {
	srv, _, pipe := testServer(t)

	require.NoError(t, pipe.Audit().RecordDecision(decision.Decision{
		SnapshotID:  "snap-1",
		Action:      decision.ActionMonitor,
		Rationale:   []string{"monitor_activity"},
		Timestamp:   time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		StateBefore: decision.StateIdle,
		StateAfter:  decision.StateMonitoring,
	}, "one event observed"))

	t.Run("returns audit entries", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/v1/decisions")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp DecisionsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "snap-1", resp.Entries[0].SnapshotID)
		assert.Equal(t, decision.ActionMonitor, resp.Entries[0].Decision.Action)
	})

	t.Run("invalid limit rejected", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/v1/decisions?limit=banana")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
