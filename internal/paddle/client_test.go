package paddle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer pdl_key", r.Header.Get("Authorization"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "pdl_key", srv.Client())
}

func TestCreateCustomer_ConflictFallsBackToLookup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /customers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"customer_already_exists"}}`))
	})
	mux.HandleFunc("GET /customers", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "taken@example.com", r.URL.Query().Get("email"))
		json.NewEncoder(w).Encode(map[string]any{"data": []Customer{{ID: "ctm_1", Email: "taken@example.com"}}})
	})
	c := newTestServer(t, mux)

	cust, err := c.CreateCustomer(context.Background(), "taken@example.com", "Taken")
	require.NoError(t, err)
	require.Equal(t, "ctm_1", cust.ID)
}

func TestGetCustomer_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c := newTestServer(t, mux)

	_, err := c.GetCustomer(context.Background(), "ctm_missing")
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestCreatePortalSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /customers/{id}/portal-sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ctm_1", r.PathValue("id"))
		var in map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, []string{"sub_1"}, in["subscription_ids"])
		w.Write([]byte(`{"data":{"urls":{"general":{"overview":"https://portal.example.com/x"}}}}`))
	})
	c := newTestServer(t, mux)

	link, err := c.CreatePortalSession(context.Background(), "ctm_1", []string{"sub_1"})
	require.NoError(t, err)
	require.Equal(t, "https://portal.example.com/x", link)
}

func TestCancelSubscription(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /subscriptions/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		called = true
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, "immediately", in["effective_from"])
		w.Write([]byte(`{"data":{"id":"sub_1","status":"canceled"}}`))
	})
	c := newTestServer(t, mux)

	require.NoError(t, c.CancelSubscription(context.Background(), "sub_1"))
	require.True(t, called)
}
