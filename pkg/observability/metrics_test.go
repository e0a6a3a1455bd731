package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods("GET")

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/users/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	// All three requests collapse into one template label.
	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "404"))
	assert.Equal(t, float64(3), count)
}

func TestBusinessCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.SignupsTotal.Inc()
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.LoginsTotal.WithLabelValues("failure").Inc()
	metrics.LoginsTotal.WithLabelValues("failure").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SignupsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.LoginsTotal.WithLabelValues("failure")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.SignupsTotal.Inc()

	serveMux := http.NewServeMux()
	RegisterMetricsEndpoint(serveMux, registry)

	rec := httptest.NewRecorder()
	serveMux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gatehouse_signups_total 1")
}
