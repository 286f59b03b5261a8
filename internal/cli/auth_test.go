package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-webui/openwebui-cli/internal/api"
	"github.com/open-webui/openwebui-cli/internal/secrets"
)

func TestAuthLogin_StoresTokenInKeyring(t *testing.T) {
	isolate(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auths/signin", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var creds map[string]string
		require.NoError(t, json.Unmarshal(body, &creds))
		assert.Equal(t, "alice@example.com", creds["email"])
		assert.Equal(t, "hunter2", creds["password"])

		w.Write([]byte(`{"token":"tok-fresh","name":"Alice","role":"admin"}`))
	}))
	defer server.Close()

	out, err := runCommand(t, "auth", "login", "-u", "alice@example.com", "-p", "hunter2", "-U", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as Alice")

	stored, err := secrets.GetToken("default", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", stored)
}

func TestAuthLogin_BadCredentials(t *testing.T) {
	isolate(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid credentials"}`))
	}))
	defer server.Close()

	_, err := runCommand(t, "auth", "login", "-u", "alice@example.com", "-p", "wrong", "-U", server.URL)
	require.Error(t, err)
	assert.Equal(t, api.ExitAuth, api.ExitCode(err))
}

func TestAuthLogin_NoTokenInResponse(t *testing.T) {
	isolate(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Alice"}`))
	}))
	defer server.Close()

	_, err := runCommand(t, "auth", "login", "-u", "alice@example.com", "-p", "pw", "-U", server.URL)
	require.Error(t, err)
	assert.Equal(t, api.ExitAuth, api.ExitCode(err))
	assert.Contains(t, err.Error(), "no token received")
}

func TestAuthLogout_DeletesToken(t *testing.T) {
	isolate(t)

	uri := "http://localhost:8080"
	require.NoError(t, secrets.SetToken("default", uri, "tok"))

	out, err := runCommand(t, "auth", "logout", "-U", uri)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out from profile: default")

	_, err = secrets.GetToken("default", uri)
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestAuthWhoami(t *testing.T) {
	isolate(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auths/", r.URL.Path)
		w.Write([]byte(`{"name":"Alice","email":"alice@example.com","role":"admin"}`))
	}))
	defer server.Close()

	out, err := runCommand(t, "auth", "whoami", "--token", "x", "-U", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "admin")
}

func TestAuthToken_MaskedByDefault(t *testing.T) {
	isolate(t)

	uri := "http://localhost:8080"
	token := "sk-abcdefghijklmnopqrstuvwxyz"
	require.NoError(t, secrets.SetToken("default", uri, token))

	out, err := runCommand(t, "auth", "token", "-U", uri)
	require.NoError(t, err)
	assert.Contains(t, out, "sk-abcde...wxyz")
	assert.NotContains(t, out, token)

	out, err = runCommand(t, "auth", "token", "--show", "-U", uri)
	require.NoError(t, err)
	assert.Contains(t, out, token)
}

func TestAuthToken_NoneStored(t *testing.T) {
	isolate(t)

	out, err := runCommand(t, "auth", "token", "-U", "http://localhost:8080")
	require.NoError(t, err)
	assert.Contains(t, out, "No token found")
}

func TestAuthRefresh_ReplacesStoredToken(t *testing.T) {
	isolate(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auths/refresh", r.URL.Path)
		assert.Equal(t, "Bearer tok-old", r.Header.Get("Authorization"))
		w.Write([]byte(`{"token":"tok-new"}`))
	}))
	defer server.Close()

	require.NoError(t, secrets.SetToken("default", server.URL, "tok-old"))

	out, err := runCommand(t, "auth", "refresh", "-U", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "refreshed")

	stored, err := secrets.GetToken("default", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", stored)
}
