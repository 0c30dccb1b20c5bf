package rvdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(Config{BaseURL: srv.URL + "/api/fileset/", Timeout: 5 * time.Second})
	return c, srv
}

func TestGetFileset(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100123", r.URL.Query().Get("fileset_id"))
		_, _ = w.Write([]byte(`{"data":[{"cruise_id":"RR2214","vessel_name":"Roger Revelle",
			"device_name":"Multibeam Sonar","make_model_name":"Kongsberg EM122",
			"files":42,"total_bytes":1024}]}`))
	})
	defer srv.Close()

	fs, err := c.GetFileset(context.Background(), "100123")
	require.NoError(t, err)
	assert.Equal(t, "RR2214", fs.CruiseID)
	assert.Equal(t, "Roger Revelle", fs.VesselName)
	assert.Equal(t, "Multibeam Sonar", fs.DeviceName)
	assert.Equal(t, "Kongsberg EM122", fs.MakeModelName)
	assert.Equal(t, 42, fs.Files)
	assert.Equal(t, int64(1024), fs.TotalBytes)
}

func TestGetFilesetNonSuccess(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	_, err := c.GetFileset(context.Background(), "100123")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "100123", apiErr.FilesetID)
}

func TestGetFilesetEmptyData(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	defer srv.Close()

	_, err := c.GetFileset(context.Background(), "100123")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "empty data", apiErr.Reason)
}
