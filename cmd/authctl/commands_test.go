package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		if body["password"] != "Secret12!" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid email or password","code":"invalid_credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"token":"access","refreshToken":"refresh","identity":{"id":"1","email":"` + body["email"] + `","role":"MANAGER"}}}`))
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"code":"invalid_token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"1","email":"ada@example.com","role":"MANAGER"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoginMeLogout(t *testing.T) {
	srv := fakeServer(t)
	session := filepath.Join(t.TempDir(), "session.json")
	common := []string{"--server", srv.URL, "--session", session}

	out, err := execute(t, append(common, "login", "--email", "ada@example.com", "--password", "Secret12!")...)
	require.NoError(t, err)
	require.Contains(t, out, "ada@example.com")

	b, err := os.ReadFile(session)
	require.NoError(t, err)
	require.Contains(t, string(b), `"access_token": "access"`)
	require.Contains(t, string(b), `"refresh_token": "refresh"`)

	out, err = execute(t, append(common, "me")...)
	require.NoError(t, err)
	require.Contains(t, out, "MANAGER")

	_, err = execute(t, append(common, "logout")...)
	require.NoError(t, err)
	_, err = os.Stat(session)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoginRejected(t *testing.T) {
	srv := fakeServer(t)
	session := filepath.Join(t.TempDir(), "session.json")

	_, err := execute(t, "--server", srv.URL, "--session", session, "login", "--email", "ada@example.com", "--password", "nope")
	require.Error(t, err)
	_, statErr := os.Stat(session)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}
