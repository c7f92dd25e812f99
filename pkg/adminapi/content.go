package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
)

// ErrUnknownPage is returned for content pages outside ContentPages.
var ErrUnknownPage = errors.New("adminapi: unknown content page")

// ContentPages are the static pages editable from the admin.
var ContentPages = []string{"terms", "privacy", "refund", "service", "about-app"}

// Content reads and writes the static pages at /content/{page}.
type Content struct {
	client *apiclient.Client
}

func (c *Content) path(page string) (string, error) {
	if !slices.Contains(ContentPages, page) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	return "/content/" + page, nil
}

// Get returns the current page body.
func (c *Content) Get(ctx context.Context, page string) (*ContentPage, error) {
	path, err := c.path(page)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(ctx, apiclient.NewRequest(http.MethodGet, path))
	if err != nil {
		return nil, err
	}

	out := &ContentPage{}
	if _, err := decode(resp, out); err != nil {
		return nil, err
	}
	if out.Page == "" {
		out.Page = page
	}
	return out, nil
}

// Put replaces the page body. content is HTML as produced by the editor.
func (c *Content) Put(ctx context.Context, page, content string) (*ContentPage, error) {
	path, err := c.path(page)
	if err != nil {
		return nil, err
	}

	req, err := apiclient.NewJSONRequest(http.MethodPut, path, map[string]string{"content": content})
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &ContentPage{Page: page, Content: content}
	if _, err := decode(resp, out); err != nil {
		return nil, err
	}
	if out.Page == "" {
		out.Page = page
	}
	return out, nil
}
