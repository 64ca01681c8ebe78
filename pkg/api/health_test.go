package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
)

func portalStub(t *testing.T, status int) *portal.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)
	return portal.NewClient(portal.Config{
		BaseURL:       srv.URL,
		RetryInterval: time.Millisecond,
		MaxRetries:    1,
	})
}

func TestHealthHandler(t *testing.T) {
	hs := NewHealthServer(Options{Version: "2.0.0"})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{
			name:           "GET request succeeds",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST request fails",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "DELETE request fails",
			method:         http.MethodDelete,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			hs.GetHandler().ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response HealthResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, "2.0.0", response.Version)
				assert.NotZero(t, response.Timestamp)
			}
		})
	}
}

func TestReadyHandlerPortalUp(t *testing.T) {
	hs := NewHealthServer(Options{Portal: portalStub(t, http.StatusOK)})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ready", response.Status)
	assert.Equal(t, "ok", response.Checks["portal"])
}

func TestReadyHandlerPortalDown(t *testing.T) {
	hs := NewHealthServer(Options{Portal: portalStub(t, http.StatusBadGateway)})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not ready", response.Status)
	assert.Contains(t, response.Checks["portal"], "error")
	assert.Equal(t, "Data portal not reachable", response.Message)
}

func TestReadyHandlerNoPortal(t *testing.T) {
	hs := NewHealthServer(Options{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEventsHandler(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	broker.Publish(events.New(events.EventTaskReceived, "task 1", map[string]string{"site": "bucharest"}))

	hs := NewHealthServer(Options{Broker: broker})

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		w := httptest.NewRecorder()
		hs.GetHandler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			return false
		}
		var recent []*events.Event
		if err := json.NewDecoder(w.Body).Decode(&recent); err != nil {
			return false
		}
		return len(recent) == 1 && recent[0].Type == events.EventTaskReceived
	}, time.Second, 5*time.Millisecond)
}

func TestEventsHandlerNoBroker(t *testing.T) {
	hs := NewHealthServer(Options{})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	hs := NewHealthServer(Options{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	// Plain counters are exported even before the first increment
	assert.Contains(t, w.Body.String(), "cloudnet_queue_empty_polls_total")
}
