package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentRecordsRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/services/{service}/tools", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Instrument(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /v1/services/{service}/tools", "418"))

	for _, svc := range []string{"github", "jira"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/services/"+svc+"/tools", nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /v1/services/{service}/tools", "418"))
	if after-before != 2 {
		t.Errorf("expected 2 requests recorded under the route pattern, got %v", after-before)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Errorf("in-flight gauge should return to 0, got %v", got)
	}
}

func TestInstrumentUnmatched(t *testing.T) {
	h := Instrument(http.NotFoundHandler())
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got-before != 1 {
		t.Errorf("unmatched counter delta = %v", got-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	Init()
	Init()

	AuthAttempts.WithLabelValues(ResultSuccess).Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "authgate_auth_attempts_total") {
		t.Error("expected authgate_auth_attempts_total in exposition")
	}
}
