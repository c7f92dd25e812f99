package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/prepadmin/internal/store/drivers/memory"
	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
	"github.com/stretchr/testify/require"
)

// backend is a fake admin API. Resource routes accept only the "new" access
// token; the refresh route is programmable.
type backend struct {
	srv *httptest.Server

	refreshCalls atomic.Int32
	hits         sync.Map // path -> *atomic.Int32

	// refresh handles POST /auth/refresh-token; nil means "return new".
	refresh http.HandlerFunc
	// beforeReject runs before a resource request is answered with 401.
	beforeReject func(r *http.Request)

	mu      sync.Mutex
	headers []http.Header
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		b.record(r)
		if b.refresh != nil {
			b.refresh(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "new"})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		b.counter(r.URL.Path).Add(1)
		b.record(r)

		if r.Header.Get("Authorization") != "Bearer new" {
			if b.beforeReject != nil {
				b.beforeReject(r)
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path})
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) counter(path string) *atomic.Int32 {
	v, _ := b.hits.LoadOrStore(path, &atomic.Int32{})
	return v.(*atomic.Int32)
}

func (b *backend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.headers = append(b.headers, r.Header.Clone())
}

func (b *backend) header(i int) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 {
		i += len(b.headers)
	}
	return b.headers[i]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// navigations counts login redirects.
type navigations struct {
	mu    sync.Mutex
	paths []string
}

func (n *navigations) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *navigations) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func newClient(b *backend, sess apiclient.Session) (*apiclient.Client, *memory.Store, *navigations) {
	store := memory.New(sess)
	nav := &navigations{}

	c := apiclient.New(b.srv.URL, store)
	c.Navigator = nav
	return c, store, nav
}

func get(path string) *apiclient.Request {
	return apiclient.NewRequest(http.MethodGet, path)
}

func TestPassThroughWithValidToken(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c, _, nav := newClient(b, apiclient.Session{AccessToken: "new", RefreshToken: "r"})

	resp, err := c.Do(t.Context(), get("/subjects"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"path":"/subjects"}`, string(resp.Body))

	require.Zero(t, b.refreshCalls.Load())
	require.Empty(t, nav.Paths())
}

func TestNoTokenSendsNoAuthorization(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c, _, _ := newClient(b, apiclient.Session{})

	_, err := c.Do(t.Context(), get("/subjects"))
	require.True(t, apiclient.IsUnauthorized(err))
	require.Empty(t, b.header(0).Get("Authorization"))
}

func TestExpiredTokenIsRefreshedAndReplayed(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	refreshBodies := make(chan map[string]string, 1)
	b.refresh = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		refreshBodies <- body
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "new"})
	}
	c, store, nav := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "refresh-1"})

	resp, err := c.Do(t.Context(), get("/subjects"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, int32(1), b.refreshCalls.Load())
	require.Equal(t, map[string]string{"refreshToken": "refresh-1"}, <-refreshBodies)
	require.Empty(t, b.header(1).Get("Authorization"), "refresh call must bypass the interceptor")
	require.Equal(t, int32(2), b.counter("/subjects").Load())
	require.Equal(t, "Bearer new", b.header(-1).Get("Authorization"))

	sess, err := store.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, "new", sess.AccessToken)
	require.Equal(t, "refresh-1", sess.RefreshToken)
	require.Empty(t, nav.Paths())
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	t.Parallel()

	const n = 8

	b := newBackend(t)

	// Hold every stale request until all of them reached the server so the
	// 401s come back together.
	var arrived sync.WaitGroup
	arrived.Add(n)
	b.beforeReject = func(*http.Request) {
		arrived.Done()
		arrived.Wait()
	}
	b.refresh = func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "new"})
	}

	c, _, _ := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

	paths := []string{"/subjects", "/chapters"}
	errs := make(chan error, n)
	for i := range n {
		go func() {
			_, err := c.Do(context.Background(), get(paths[i%len(paths)]))
			errs <- err
		}()
	}

	for range n {
		require.NoError(t, <-errs)
	}

	require.Equal(t, int32(1), b.refreshCalls.Load())
	// Every request: one rejected attempt plus one replay
	require.Equal(t, int32(2*n), b.counter("/subjects").Load()+b.counter("/chapters").Load())
	require.False(t, c.Refresh.InFlight())
}

func TestSecondUnauthorizedIsNotRetried(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.refresh = func(w http.ResponseWriter, r *http.Request) {
		// A token the resource routes still reject
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "still-bad"})
	}
	c, store, nav := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

	_, err := c.Do(t.Context(), get("/subjects"))
	require.True(t, apiclient.IsUnauthorized(err))

	var httpErr *apiclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, "jwt expired", httpErr.Message)

	require.Equal(t, int32(1), b.refreshCalls.Load())
	require.Equal(t, int32(2), b.counter("/subjects").Load())

	// Already-retried 401s surface as-is; the session stays
	sess, err := store.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, "still-bad", sess.AccessToken)
	require.Empty(t, nav.Paths())
}

func TestMissingRefreshTokenShortCircuits(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c, store, nav := newClient(b, apiclient.Session{AccessToken: "old"})

	_, err := c.Do(t.Context(), get("/subjects"))
	require.True(t, apiclient.IsUnauthorized(err))
	require.ErrorIs(t, err, apiclient.ErrNoRefreshToken)

	require.Zero(t, b.refreshCalls.Load())
	require.Equal(t, int32(1), b.counter("/subjects").Load())
	require.Equal(t, []string{apiclient.LoginPath}, nav.Paths())

	sess, err := store.Load(t.Context())
	require.NoError(t, err)
	require.True(t, sess.Empty())
}

func TestRefreshFailureRejectsWaitersAndLogsOut(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	release := make(chan struct{})
	b.refresh = func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh token revoked"})
	}
	c, store, nav := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

	triggerErr := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), get("/subjects"))
		triggerErr <- err
	}()
	require.Eventually(t, c.Refresh.InFlight, time.Second, time.Millisecond)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), get("/tests"))
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return c.Refresh.Pending() == 1 }, time.Second, time.Millisecond)

	close(release)

	err := <-waiterErr
	require.ErrorIs(t, err, apiclient.ErrRefreshFailed)
	var refreshErr *apiclient.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.Equal(t, http.StatusUnauthorized, refreshErr.StatusCode)

	err = <-triggerErr
	require.True(t, apiclient.IsUnauthorized(err))
	require.ErrorIs(t, err, apiclient.ErrRefreshFailed)

	require.Equal(t, int32(1), b.refreshCalls.Load())
	require.Equal(t, int32(1), b.counter("/tests").Load(), "rejected waiter must not be replayed")

	sess, err := store.Load(t.Context())
	require.NoError(t, err)
	require.True(t, sess.Empty())
	require.Equal(t, []string{apiclient.LoginPath}, nav.Paths())
	require.False(t, c.Refresh.InFlight())
}

func TestRefreshServerError(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.refresh = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
	}
	c, store, nav := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

	_, err := c.Do(t.Context(), get("/subjects"))
	require.ErrorIs(t, err, apiclient.ErrRefreshFailed)
	require.Contains(t, err.Error(), "db down")

	sess, err := store.Load(t.Context())
	require.NoError(t, err)
	require.True(t, sess.Empty())
	require.Len(t, nav.Paths(), 1)
}

func TestRefreshResponseShapes(t *testing.T) {
	t.Parallel()

	t.Run("data envelope", func(t *testing.T) {
		b := newBackend(t)
		b.refresh = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"accessToken": "new"}})
		}
		c, _, _ := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

		_, err := c.Do(t.Context(), get("/subjects"))
		require.NoError(t, err)
	})

	t.Run("missing token", func(t *testing.T) {
		b := newBackend(t)
		b.refresh = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{})
		}
		c, _, nav := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

		_, err := c.Do(t.Context(), get("/subjects"))
		require.ErrorIs(t, err, apiclient.ErrRefreshFailed)
		require.Len(t, nav.Paths(), 1)
	})
}

func TestTokenChangedInFlightReplaysWithoutRefresh(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c, store, _ := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

	// Another caller finished a refresh while this request was on the wire
	b.beforeReject = func(*http.Request) {
		_ = store.SetAccessToken(context.Background(), "new")
	}

	_, err := c.Do(t.Context(), get("/subjects"))
	require.NoError(t, err)
	require.Zero(t, b.refreshCalls.Load())
	require.Equal(t, int32(2), b.counter("/subjects").Load())
}

func TestOtherStatusesSurfaceUnchanged(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": []string{"name is required", "order must be positive"},
		})
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, memory.New(apiclient.Session{AccessToken: "a", RefreshToken: "r"}))

	_, err := c.Do(t.Context(), get("/subjects"))
	var httpErr *apiclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	require.Equal(t, "name is required; order must be positive", httpErr.Message)
	require.False(t, c.Refresh.InFlight())
}

func TestTransportErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := apiclient.New(srv.URL, memory.New(apiclient.Session{AccessToken: "a", RefreshToken: "r"}))

	_, err := c.Do(t.Context(), get("/subjects"))
	require.Error(t, err)
	var httpErr *apiclient.HTTPError
	require.False(t, errors.As(err, &httpErr))
}

func TestAnonymousRequestSkipsAuth(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c, store, nav := newClient(b, apiclient.Session{AccessToken: "old", RefreshToken: "r"})

	req := get("/auth/login")
	req.Anonymous = true

	_, err := c.Do(t.Context(), req)
	require.True(t, apiclient.IsUnauthorized(err))
	require.Empty(t, b.header(0).Get("Authorization"))
	require.Zero(t, b.refreshCalls.Load())
	require.Empty(t, nav.Paths())

	sess, err := store.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, "old", sess.AccessToken)
}

func TestMultipartBodyReplaysAfterRefresh(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh-token" {
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "new"})
			return
		}

		var data []byte
		if file, _, err := r.FormFile("image"); err == nil {
			data, _ = io.ReadAll(file)
		}

		mu.Lock()
		bodies = append(bodies, r.FormValue("title")+":"+string(data))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, memory.New(apiclient.Session{AccessToken: "old", RefreshToken: "r"}))

	req, err := apiclient.NewMultipartRequest(http.MethodPost, "/blogs",
		[][2]string{{"title", "Exam tips"}},
		apiclient.File{Field: "image", Filename: "cover.png", Content: strings.NewReader("PNG")},
	)
	require.NoError(t, err)

	resp, err := c.Do(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"Exam tips:PNG", "Exam tips:PNG"}, bodies)
}
