package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/booking/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/booking/{name}", "GET", "418"))
	for _, name := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/booking/"+name, nil))
		require.Equal(t, http.StatusTeapot, rr.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/booking/{name}", "GET", "418"))
	require.Equal(t, 2.0, after-before)
}

func TestWebhookVerified(t *testing.T) {
	before := testutil.ToFloat64(webhookVerifications.WithLabelValues("billing", "invalid"))
	WebhookVerified("billing", false)
	require.Equal(t, 1.0, testutil.ToFloat64(webhookVerifications.WithLabelValues("billing", "invalid"))-before)
}
