package apiclient

import "context"

// LoginPath is where the user is sent once the session cannot be recovered.
const LoginPath = "/login"

// Profile is the logged-in staff member as reported by the backend.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Session holds the credentials attached to outbound requests. The zero value
// means "logged out".
type Session struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         *Profile `json:"user,omitempty"`
}

// Empty reports whether the session carries no credentials at all.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// SessionStore owns the process-wide session. Implementations must be safe
// for concurrent use. Load returns the zero Session when nobody is logged in.
type SessionStore interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error

	// SetAccessToken replaces only the access token; the refresh token and
	// profile are left as they are.
	SetAccessToken(ctx context.Context, token string) error

	Clear(ctx context.Context) error
}

// Navigator sends the user somewhere else, e.g. the login screen.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) { f(ctx, path) }
