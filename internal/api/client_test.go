package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authHandler(t *testing.T, token string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["apiKey"] == "" || body["apiSecret"] == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "missing credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"Authorization": token})
	}
}

func TestAuthenticate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathAuthentication, authHandler(t, "tok-123"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	require.NoError(t, c.Authenticate(context.Background(), "key", "secret"))
	assert.Equal(t, "tok-123", c.Token())
	assert.Equal(t, "Bearer tok-123", c.BearerToken())
}

func TestAuthenticateRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathAuthentication, authHandler(t, "tok-123"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	err := c.Authenticate(context.Background(), "", "")
	require.Error(t, err)
}

func TestBearerTokenNotDoubled(t *testing.T) {
	c := New("https://portal.example.com")
	defer c.Close()
	c.token = "Bearer abc"
	assert.Equal(t, "Bearer abc", c.BearerToken())
}

func TestCreateSendsIDTokenHeader(t *testing.T) {
	var gotHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathUsers, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("idToken")
		json.NewEncoder(w).Encode(map[string]any{"id": "u1", "email": "jane@example.com"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()
	c.token = "tok"

	user, err := c.Create(context.Background(), PathUsers, map[string]any{"email": "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u1", String(user, "id"))
	assert.Equal(t, "tok", gotHeader)
}

func TestCreateErrorEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathTeams, func(w http.ResponseWriter, r *http.Request) {
		// 200 with an error field still counts as a failure.
		json.NewEncoder(w).Encode(map[string]any{"error": "duplicate name"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	_, err := c.Create(context.Background(), PathTeams, map[string]any{"name": "dup"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestGetEscapesID(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathUsers+"/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(map[string]any{"id": "jane@example.com"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	_, err := c.Get(context.Background(), PathUsers, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, PathUsers+"/jane@example.com", gotPath)
}

func TestListDecodesArray(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathNetworks, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "n1", "name": "hq"},
			{"id": "n2", "name": "branch"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	networks, err := c.List(context.Background(), PathNetworks)
	require.NoError(t, err)
	require.Len(t, networks, 2)
	assert.Equal(t, "hq", String(networks[0], "name"))
}

func TestUpdateStripsID(t *testing.T) {
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PUT "+PathPolicies+"/p1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	err := c.Update(context.Background(), PathPolicies, "p1", Resource{"id": "p1", "name": "pol"})
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "id")
	assert.Equal(t, "pol", gotBody["name"])
}

func TestDryRunSuppressesMutations(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	c := New(srv.URL, WithDryRun(true))
	defer c.Close()

	require.NoError(t, c.Update(context.Background(), PathPolicies, "p1", Resource{"id": "p1"}))
	require.NoError(t, c.Delete(context.Background(), PathUsers, "u1", nil))
	require.NoError(t, c.UpdateRegisteredDevice(context.Background(), "d1", "tag"))
	assert.Zero(t, hits, "dry run must not reach the server")
}

func TestDeleteWithBody(t *testing.T) {
	var gotBody []string
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE "+PathTeams+"/t1/users/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	// Relationship unlink: DELETE with the member ids as the body.
	err := c.Delete(context.Background(), PathTeams+"/t1/users", "", []string{"jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jane@example.com"}, gotBody)
}

func TestUpdateRegisteredDevice(t *testing.T) {
	var gotAuth, gotIdtoken string
	var gotBody map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT "+PathRegisteredDevice+"/d42", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdtoken = r.Header.Get("Idtoken")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()
	c.token = "tok"

	require.NoError(t, c.UpdateRegisteredDevice(context.Background(), "d42", "finance"))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "tok", gotIdtoken)
	assert.Equal(t, "finance", gotBody["deviceTag"])
}
