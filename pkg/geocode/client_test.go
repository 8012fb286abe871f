package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseParsesAddressAndPostcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "51.507400", r.URL.Query().Get("lat"))
		assert.Equal(t, "dispatch-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"10 Downing Street, London","address":{"postcode":"SW1A 2AA"}}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, UserAgent: "dispatch-test"})
	res, err := client.Reverse(context.Background(), 51.5074, -0.1278)
	require.NoError(t, err)
	assert.Equal(t, "10 Downing Street, London", res.Address)
	assert.Equal(t, "SW1A 2AA", res.Postcode)
}

func TestReverseSurfacesUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	_, err := client.Reverse(context.Background(), 0, 0)
	require.Error(t, err)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	_, err = NewClient(Options{BaseURL: failing.URL}).Reverse(context.Background(), 0, 0)
	require.Error(t, err)
}
