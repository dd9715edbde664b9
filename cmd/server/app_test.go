package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-account/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg, err := config.LoadFrom(map[string]string{
		"JWT_SECRET":    "test-secret",
		"DB_DRIVER":     "sqlite",
		"DB_DSN":        "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		"PASSWORD_COST": "4",
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})

	return app
}

func TestServer_SignupThenProfile(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(
		`{"name":"Ana","email":"ana@example.com","password":"secret123"}`,
	))
	req.Header.Set("Content-Type", "application/json")

	res, err := app.HTTP.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.NotEmpty(t, body.Token)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	res, err = app.HTTP.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_RendersViews(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/", "/login", "/signup"} {
		res, err := app.HTTP.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "text/html")
	res, err := app.HTTP.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))
}

func TestServer_UnknownRoute(t *testing.T) {
	app := newTestApp(t)

	res, err := app.HTTP.Test(httptest.NewRequest(http.MethodGet, "/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
