package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
	"github.com/aussiebroadwan/prepadmin/pkg/jwtx"
	"github.com/aussiebroadwan/prepadmin/pkg/slogx"
)

// ErrNotLoggedIn is returned by Me when the store holds no session.
var ErrNotLoggedIn = errors.New("adminapi: not logged in")

// Auth handles login and logout against /auth and keeps the session store in
// step with them.
type Auth struct {
	client *apiclient.Client
}

// Identity is the logged-in staff member as the client sees it.
type Identity struct {
	Profile   apiclient.Profile
	ExpiresAt time.Time // zero when the token carries no exp
	Expired   bool
}

// Login exchanges credentials for a token pair and stores the session. A
// rejected login never triggers a refresh or a logout.
func (a *Auth) Login(ctx context.Context, email, password string) (*apiclient.Session, error) {
	req, err := apiclient.NewJSONRequest(http.MethodPost, "/auth/login", loginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	req.Anonymous = true

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var out loginResponse
	if _, err := decode(resp, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("login response missing access token")
	}

	sess := apiclient.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		User:         out.User,
	}
	if sess.User == nil {
		sess.User = out.Admin
	}
	if sess.User == nil {
		sess.User = profileFromToken(out.AccessToken)
	}

	if err := a.client.Sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slogx.FromContext(ctx).Info("logged in", "email", email)
	return &sess, nil
}

// Logout tells the backend to drop the refresh token, then clears the local
// session. The backend call is best effort; the local session is always
// cleared.
func (a *Auth) Logout(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	sess, err := a.client.Sessions.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if !sess.Empty() {
		req, err := apiclient.NewJSONRequest(http.MethodPost, "/auth/logout", map[string]string{
			"refreshToken": sess.RefreshToken,
		})
		if err != nil {
			return err
		}
		// Sent outside the refresh protocol so an expired token cannot
		// start a refresh on the way out.
		req.Anonymous = true
		if sess.AccessToken != "" {
			req.Header = http.Header{"Authorization": {"Bearer " + sess.AccessToken}}
		}

		if _, err := a.client.Do(ctx, req); err != nil {
			log.Warn("backend logout failed", "error", err)
		}
	}

	if err := a.client.Sessions.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	log.Info("logged out")
	return nil
}

// Me describes the stored session without calling the backend.
func (a *Auth) Me(ctx context.Context) (*Identity, error) {
	sess, err := a.client.Sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.Empty() {
		return nil, ErrNotLoggedIn
	}

	id := &Identity{}
	if sess.User != nil {
		id.Profile = *sess.User
	}

	claims, err := jwtx.Peek(sess.AccessToken)
	if err != nil {
		// Opaque tokens are fine; there is just nothing more to show.
		return id, nil
	}

	if id.Profile.ID == "" {
		id.Profile.ID = claims.Identity()
	}
	if id.Profile.Email == "" {
		id.Profile.Email = claims.Email
	}
	if id.Profile.Name == "" {
		id.Profile.Name = claims.Name
	}
	if id.Profile.Role == "" {
		id.Profile.Role = claims.Role
	}

	id.ExpiresAt = claims.Expiry()
	id.Expired = errors.Is(claims.ValidateExpiryWithLeeway(time.Now(), 0), jwtx.ErrExpired)
	return id, nil
}

func profileFromToken(token string) *apiclient.Profile {
	claims, err := jwtx.Peek(token)
	if err != nil {
		return nil
	}
	return &apiclient.Profile{
		ID:    claims.Identity(),
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}
}
