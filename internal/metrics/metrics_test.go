package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := httpRequests.WithLabelValues(http.MethodGet, "/sessions/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"aaa", "bbb"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestEventObserved(t *testing.T) {
	counter := realtimeEvents.WithLabelValues("code-change", OutcomeAccepted)
	before := testutil.ToFloat64(counter)

	EventObserved("code-change", OutcomeAccepted)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	unknown := realtimeEvents.WithLabelValues("unknown", OutcomeMalformed)
	before = testutil.ToFloat64(unknown)
	EventObserved("", OutcomeMalformed)
	assert.Equal(t, before+1, testutil.ToFloat64(unknown))
}

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(wsConnections)
	ConnectionOpened()
	ConnectionOpened()
	ConnectionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(wsConnections))
	ConnectionClosed()
}

func TestHandler_ExposesMetrics(t *testing.T) {
	SessionCreated()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "codepair_sessions_created_total"))
}
