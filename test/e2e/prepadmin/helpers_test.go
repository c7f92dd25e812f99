package prepadmin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/prepadmin/internal/app"
	"github.com/aussiebroadwan/prepadmin/pkg/httpx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end tests run the prepadmin application against a WireMock
 * container standing in for the admin API. Stubs accept the access token
 * "new" only, so a login (which hands out "old") always ends in a refresh.
 */

const (
	wiremockImage = "wiremock/wiremock:3.9.1"

	adminEmail    = "ada@example.com"
	adminPassword = "Admin123!"
	refreshToken  = "refresh-ok"
)

// setupBackend starts WireMock and returns its base URL.
func setupBackend(t *testing.T) (string, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e tests need docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        wiremockImage,
		ExposedPorts: []string{"8080/tcp"},
		WaitingFor: wait.ForHTTP("/__admin/mappings").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return baseURL, cleanup
}

// stub registers one WireMock mapping.
func stub(t *testing.T, baseURL string, mapping map[string]any) {
	t.Helper()

	body, err := json.Marshal(mapping)
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/__admin/mappings", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func jsonResponse(status int, body any) map[string]any {
	return map[string]any{
		"status":   status,
		"jsonBody": body,
		"headers":  map[string]string{"Content-Type": "application/json"},
	}
}

// stubAdminAPI installs the login, refresh and resource routes. Login hands
// out the given refresh token; only refreshToken is accepted by the refresh
// route.
func stubAdminAPI(t *testing.T, baseURL, issuedRefreshToken string) {
	t.Helper()

	stub(t, baseURL, map[string]any{
		"priority": 1,
		"request":  map[string]any{"method": "POST", "urlPath": "/api/auth/login"},
		"response": jsonResponse(http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"accessToken":  "old",
				"refreshToken": issuedRefreshToken,
				"user":         map[string]string{"id": "a1", "name": "Ada", "email": adminEmail, "role": "admin"},
			},
		}),
	})

	stub(t, baseURL, map[string]any{
		"priority": 1,
		"request": map[string]any{
			"method":       "POST",
			"urlPath":      "/api/auth/refresh-token",
			"bodyPatterns": []map[string]any{{"equalToJson": map[string]string{"refreshToken": refreshToken}}},
		},
		"response": jsonResponse(http.StatusOK, map[string]string{"accessToken": "new"}),
	})

	stub(t, baseURL, map[string]any{
		"priority": 2,
		"request": map[string]any{
			"method":         "GET",
			"urlPathPattern": "/api/[a-z-]+",
			"headers":        map[string]any{"Authorization": map[string]string{"equalTo": "Bearer new"}},
		},
		"response": jsonResponse(http.StatusOK, map[string]any{
			"success":    true,
			"data":       []map[string]string{{"id": "1"}},
			"pagination": map[string]int{"total": 42, "page": 1, "limit": 1, "totalPages": 42},
		}),
	})

	stub(t, baseURL, map[string]any{
		"priority": 2,
		"request": map[string]any{
			"method":         "GET",
			"urlPathPattern": "/api/[a-z-]+/[^/]+",
			"headers":        map[string]any{"Authorization": map[string]string{"equalTo": "Bearer new"}},
		},
		"response": jsonResponse(http.StatusOK, map[string]any{"success": true, "data": map[string]string{"id": "1"}}),
	})

	// Anything else under /api is an expired token.
	stub(t, baseURL, map[string]any{
		"priority": 10,
		"request":  map[string]any{"method": "ANY", "urlPathPattern": "/api/.*"},
		"response": jsonResponse(http.StatusUnauthorized, map[string]string{"message": "jwt expired"}),
	})
}

// requestCount asks WireMock how many received requests match pattern.
func requestCount(t *testing.T, baseURL string, pattern map[string]any) int {
	t.Helper()

	body, err := json.Marshal(pattern)
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/__admin/requests/count", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Count
}

func refreshCalls(t *testing.T, baseURL string) int {
	t.Helper()
	return requestCount(t, baseURL, map[string]any{"method": "POST", "urlPath": "/api/auth/refresh-token"})
}

type cli struct {
	*app.Application
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// newCLI builds the application the way main does, with an in-memory session.
func newCLI(t *testing.T, baseURL string) *cli {
	t.Helper()

	application, err := app.New(app.Config{
		APIURL:         baseURL + "/api",
		SessionFile:    app.MemorySession,
		TunnelHeader:   true,
		HTTPTimeout:    10 * time.Second,
		RefreshTimeout: 10 * time.Second,
		Env:            "test",
		LogLevel:       "error",
		LogFormat:      "text",
		RateLimit:      httpx.OutboundLimit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	c := &cli{Application: application, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	application.Stdout = c.stdout
	application.Stderr = c.stderr
	return c
}

// performLogin signs in through the login command.
func performLogin(t *testing.T, c *cli) {
	t.Helper()

	c.Stdin = strings.NewReader(adminPassword + "\n")
	require.NoError(t, c.Run(t.Context(), []string{"login", "-email", adminEmail}), "Login should succeed")
	require.Contains(t, c.stderr.String(), "logged in as Ada")
}
