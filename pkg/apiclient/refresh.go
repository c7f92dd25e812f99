package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`

	// Some deployments wrap the payload in the usual {"data": ...} envelope.
	Data *struct {
		AccessToken string `json:"accessToken"`
	} `json:"data,omitempty"`
}

// refreshAccessToken calls the refresh endpoint directly on the HTTP client,
// never through Do, and stores the new access token on success.
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if c.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.RefreshTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", &RefreshError{Err: err}
	}

	req := &Request{
		Method:      http.MethodPost,
		Path:        c.RefreshPath,
		Body:        payload,
		ContentType: "application/json",
	}
	target, err := req.url(c.BaseURL)
	if err != nil {
		return "", &RefreshError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", &RefreshError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", &RefreshError{Err: fmt.Errorf("failed to send request: %w", err)}
	}

	resp, err := readResponse(httpResp)
	if err != nil {
		return "", &RefreshError{StatusCode: httpResp.StatusCode, Err: err}
	}

	if !resp.ok() {
		return "", &RefreshError{StatusCode: resp.StatusCode, Err: newHTTPError(req, resp)}
	}

	var out refreshResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return "", &RefreshError{StatusCode: resp.StatusCode, Err: err}
	}

	token := out.AccessToken
	if token == "" && out.Data != nil {
		token = out.Data.AccessToken
	}
	if token == "" {
		return "", &RefreshError{
			StatusCode: resp.StatusCode,
			Err:        errors.New("refresh response did not contain an access token"),
		}
	}

	if err := c.Sessions.SetAccessToken(ctx, token); err != nil {
		return "", &RefreshError{Err: fmt.Errorf("failed to store access token: %w", err)}
	}

	return token, nil
}
