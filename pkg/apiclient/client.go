package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/prepadmin/pkg/slogx"
)

// DefaultRefreshTimeout bounds the refresh call. The refresh runs detached
// from the triggering caller's context so one cancelled caller cannot log
// everybody out.
const DefaultRefreshTimeout = 15 * time.Second

// Client sends requests to the admin API with the stored bearer token and
// recovers from expired access tokens with a single shared refresh.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	Sessions  SessionStore
	Navigator Navigator
	Refresh   *RefreshCoordinator

	// RefreshPath is the endpoint used to mint a new access token.
	RefreshPath    string
	RefreshTimeout time.Duration
}

// New creates a client for baseURL backed by sessions. Navigation defaults to
// a no-op; set Navigator to react to forced logouts.
func New(baseURL string, sessions SessionStore) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Sessions:       sessions,
		Navigator:      NavigatorFunc(func(context.Context, string) {}),
		Refresh:        NewRefreshCoordinator(),
		RefreshPath:    "/auth/refresh-token",
		RefreshTimeout: DefaultRefreshTimeout,
	}
}

// attempt is the retry context threaded alongside a request. Requests are
// never mutated to record that they were retried.
type attempt struct {
	retried bool
	// token overrides the stored access token for a replay
	token string
}

func (a attempt) replayWith(token string) attempt {
	return attempt{retried: true, token: token}
}

// Do sends req and returns the buffered response for any 2xx status.
//
// A 401 on a first attempt is recovered by refreshing the access token once
// and replaying the request. Concurrent 401s share the same refresh. Other
// non-2xx statuses are returned as *HTTPError; transport failures are returned
// as they come from the HTTP client.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Anonymous {
		return c.sendAnonymous(ctx, req)
	}

	sess, err := c.Sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return c.send(ctx, req, sess.AccessToken, attempt{})
}

func (c *Client) sendAnonymous(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.roundTrip(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, newHTTPError(req, resp)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req *Request, token string, at attempt) (*Response, error) {
	resp, err := c.roundTrip(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !at.retried {
		return c.recoverUnauthorized(ctx, req, token, newHTTPError(req, resp))
	}

	if !resp.ok() {
		return nil, newHTTPError(req, resp)
	}

	return resp, nil
}

// recoverUnauthorized runs the refresh protocol for a first-attempt 401.
func (c *Client) recoverUnauthorized(
	ctx context.Context,
	req *Request,
	sentToken string,
	unauthorized *HTTPError,
) (*Response, error) {
	log := slogx.FromContext(ctx).With("method", req.Method, "path", req.Path)

	sess, err := c.Sessions.Load(ctx)
	if err != nil {
		unauthorized.Cause = fmt.Errorf("failed to load session: %w", err)
		return nil, unauthorized
	}

	if sess.RefreshToken == "" {
		log.Info("unauthorized without refresh token, ending session")
		unauthorized.Cause = ErrNoRefreshToken
		c.expireSession(ctx)
		return nil, unauthorized
	}

	// The token was already replaced after this request went out; replay
	// with the current one instead of refreshing again.
	if sess.AccessToken != "" && sess.AccessToken != sentToken && !c.Refresh.InFlight() {
		log.Debug("access token changed while request was in flight, replaying")
		return c.send(ctx, req, sess.AccessToken, attempt{}.replayWith(sess.AccessToken))
	}

	ticket := c.Refresh.AcquireOrQueue()
	if !ticket.Leader() {
		log.Debug("refresh in progress, queued")
		res, err := ticket.Wait(ctx)
		if err != nil {
			return nil, err
		}
		return c.send(ctx, req, res.Token, attempt{}.replayWith(res.Token))
	}

	// Another refresh may have settled between loading the session and
	// taking the lead.
	if cur, err := c.Sessions.Load(ctx); err == nil {
		switch {
		case cur.RefreshToken == "":
			c.Refresh.Settle("", ErrNoRefreshToken)
			unauthorized.Cause = ErrNoRefreshToken
			return nil, unauthorized
		case cur.AccessToken != "" && cur.AccessToken != sentToken:
			c.Refresh.Settle(cur.AccessToken, nil)
			return c.send(ctx, req, cur.AccessToken, attempt{}.replayWith(cur.AccessToken))
		}
		sess = cur
	}

	log.Info("access token rejected, refreshing")
	token, err := c.refreshAccessToken(ctx, sess.RefreshToken)
	if err != nil {
		log.Warn("token refresh failed, ending session", "error", err)

		// Clear before settling so no waiter can start a new refresh with
		// the dead refresh token.
		c.clearSession(ctx)
		n := c.Refresh.Settle("", err)
		log.Debug("rejected queued requests", "count", n)
		c.Navigator.Navigate(ctx, LoginPath)

		unauthorized.Cause = err
		return nil, unauthorized
	}

	n := c.Refresh.Settle(token, nil)
	log.Info("access token refreshed", "replayed", n+1)

	return c.send(ctx, req, token, attempt{}.replayWith(token))
}

// expireSession logs the user out and sends them to the login screen.
func (c *Client) expireSession(ctx context.Context) {
	c.clearSession(ctx)
	c.Navigator.Navigate(ctx, LoginPath)
}

func (c *Client) clearSession(ctx context.Context) {
	if err := c.Sessions.Clear(context.WithoutCancel(ctx)); err != nil {
		slogx.FromContext(ctx).Error("failed to clear session", "error", err)
	}
}

// roundTrip issues a single HTTP exchange with no refresh handling.
func (c *Client) roundTrip(ctx context.Context, req *Request, token string) (*Response, error) {
	target, err := req.url(c.BaseURL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return readResponse(resp)
}
