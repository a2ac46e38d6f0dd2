package mcstatus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOnlineServer(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Write([]byte(`{
			"online": true,
			"version": "1.21",
			"players": {"online": 3, "max": 20},
			"motd": {"clean": ["Welcome", "to the server"]}
		}`))
	}))
	defer srv.Close()

	checker := NewChecker(srv.URL)
	status, err := checker.Check(context.Background(), "mc.example.com", 0)
	require.NoError(t, err)

	assert.Equal(t, "/mc.example.com", requestedPath)
	assert.Equal(t, "mc.example.com", status.Address)
	assert.True(t, status.Online)
	assert.Equal(t, "1.21", status.Version)
	assert.Equal(t, 3, status.PlayersOnline)
	assert.Equal(t, 20, status.PlayersMax)
	assert.Equal(t, "Welcome\nto the server", status.MOTD)
}

func TestCheckWithPort(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Write([]byte(`{"online": false}`))
	}))
	defer srv.Close()

	checker := NewChecker(srv.URL)
	status, err := checker.Check(context.Background(), "mc.example.com", 25566)
	require.NoError(t, err)

	assert.Equal(t, "/mc.example.com:25566", requestedPath)
	assert.Equal(t, "mc.example.com:25566", status.Address)
	assert.False(t, status.Online)
}

func TestCheckAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	checker := NewChecker(srv.URL)
	_, err := checker.Check(context.Background(), "mc.example.com", 0)
	assert.Error(t, err)
}

func TestCheckMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	checker := NewChecker(srv.URL)
	_, err := checker.Check(context.Background(), "mc.example.com", 0)
	assert.Error(t, err)
}
