/*
Package apiclient is the authenticated HTTP client behind every admin API call.

# Overview

A Client sends Requests to the configured base URL with the current access
token from a SessionStore:

	client := apiclient.New("https://api.example.com/api", store)
	resp, err := client.Do(ctx, apiclient.NewRequest(http.MethodGet, "/subjects"))

# Token Refresh

When a request comes back 401 on its first attempt and a refresh token is
stored, the client:

 1. Becomes the refresh leader, or queues behind the refresh already running
 2. Calls POST /auth/refresh-token with {"refreshToken": ...} directly on the
    HTTP client, outside the 401 handling
 3. Stores the new access token and hands it to every queued request in the
    order they arrived
 4. Replays each request once with the new token

A request is replayed at most once. A second 401 is returned to the caller.

If the refresh fails, the session is cleared, queued requests receive the
*RefreshError, the Navigator is sent to LoginPath and the request that
triggered the refresh gets its original 401 with the refresh error as cause.
A 401 with no refresh token stored ends the session the same way without
calling the refresh endpoint.

# Concurrency

Client is safe for concurrent use. The RefreshCoordinator is the only shared
refresh state and it belongs to the Client, so tests can build as many
independent clients as they like.

# Errors

  - *HTTPError: any non-2xx response that was not recovered
  - *RefreshError: a failed refresh call; matches ErrRefreshFailed
  - ErrNoRefreshToken: cause attached to a 401 that could not be refreshed
  - anything else: transport failures from the underlying http.Client

Example:

	resp, err := client.Do(ctx, req)
	switch {
	case errors.Is(err, apiclient.ErrRefreshFailed):
		// logged out, user must log in again
	case apiclient.IsStatus(err, http.StatusNotFound):
		// no such record
	}
*/
package apiclient
