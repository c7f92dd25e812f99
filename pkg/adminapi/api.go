// Package adminapi is the typed facade over the admin REST API. It unwraps
// the backend's response envelope, builds list queries, and exposes one
// Resource per collection. All calls go through an *apiclient.Client, so they
// share its session handling and token refresh.
package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
)

var (
	// ErrUnknownResource is returned by Records for names outside ResourceNames.
	ErrUnknownResource = errors.New("adminapi: unknown resource")

	// ErrRejected is returned when the backend answers 2xx with success=false.
	ErrRejected = errors.New("adminapi: request rejected")
)

// ResourceNames lists the CRUD collections, in the order the dashboard shows them.
var ResourceNames = []string{"subjects", "chapters", "questions", "tests", "users", "admins", "blogs"}

// API groups every collection of the admin backend.
type API struct {
	client *apiclient.Client

	Auth    *Auth
	Content *Content

	Subjects  *Resource[Subject]
	Chapters  *Resource[Chapter]
	Questions *Resource[Question]
	Tests     *Resource[Test]
	Users     *Resource[User]
	Admins    *Resource[Admin]
	Blogs     *Resource[Blog]
}

// New builds the facade on top of client.
func New(client *apiclient.Client) *API {
	return &API{
		client:    client,
		Auth:      &Auth{client: client},
		Content:   &Content{client: client},
		Subjects:  NewResource[Subject](client, "/subjects"),
		Chapters:  NewResource[Chapter](client, "/chapters"),
		Questions: NewResource[Question](client, "/questions"),
		Tests:     NewResource[Test](client, "/tests"),
		Users:     NewResource[User](client, "/users"),
		Admins:    NewResource[Admin](client, "/admins"),
		Blogs:     NewResource[Blog](client, "/blogs"),
	}
}

// Records returns an untyped view of the named collection.
func (a *API) Records(name string) (*Resource[Record], error) {
	if !slices.Contains(ResourceNames, name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return NewResource[Record](a.client, "/"+name), nil
}

// ============================================================================
// Query building
// ============================================================================

// ListParams are the list filters every collection accepts. Zero values are
// left out of the query string.
type ListParams struct {
	Page   int
	Limit  int
	Search string
	SortBy string
	Order  string // "asc" or "desc"

	// Filters are passed through as-is, e.g. {"subjectId": "..."}.
	Filters map[string]string
}

// Values encodes p as URL query values.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.SortBy != "" {
		v.Set("sortBy", p.SortBy)
	}
	if p.Order != "" {
		v.Set("order", p.Order)
	}
	for key, value := range p.Filters {
		if key != "" && value != "" {
			v.Set(key, value)
		}
	}
	return v
}

// ============================================================================
// Response unwrapping
// ============================================================================

// decode unwraps the {"success", "message", "data"} envelope into target and
// returns any pagination metadata. Bodies without a "data" key are decoded
// whole. An empty body (204) leaves target untouched.
func decode(resp *apiclient.Response, target any) (*Pagination, error) {
	if len(resp.Body) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err == nil {
		if env.Success != nil && !*env.Success {
			return nil, fmt.Errorf("%w: %s", ErrRejected, env.Message)
		}

		if len(env.Data) > 0 {
			if target != nil {
				if err := json.Unmarshal(env.Data, target); err != nil {
					return nil, fmt.Errorf("failed to decode response data: %w", err)
				}
			}
			if env.Pagination != nil {
				return env.Pagination, nil
			}
			return env.Meta, nil
		}
	}

	if target == nil {
		return nil, nil
	}
	if err := resp.DecodeJSON(target); err != nil {
		return nil, err
	}
	return nil, nil
}
