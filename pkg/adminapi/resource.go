package adminapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
)

// Resource is one REST collection, e.g. /subjects. T is the item type the
// collection decodes into.
type Resource[T any] struct {
	client *apiclient.Client
	path   string
}

// NewResource binds a collection path to client.
func NewResource[T any](client *apiclient.Client, path string) *Resource[T] {
	return &Resource[T]{client: client, path: path}
}

// Path returns the collection path.
func (r *Resource[T]) Path() string { return r.path }

func (r *Resource[T]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

// List fetches one page of the collection. Endpoints that answer with a bare
// array get a Pagination describing that single page.
func (r *Resource[T]) List(ctx context.Context, params ListParams) (*Page[T], error) {
	req := apiclient.NewRequest(http.MethodGet, r.path)
	req.Query = params.Values()

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var items []T
	pagination, err := decode(resp, &items)
	if err != nil {
		return nil, err
	}

	page := &Page[T]{Items: items}
	if pagination != nil {
		page.Pagination = *pagination
	} else {
		page.Pagination = Pagination{
			Total:      len(items),
			Page:       max(params.Page, 1),
			Limit:      params.Limit,
			TotalPages: 1,
		}
	}
	return page, nil
}

// Get fetches one item by id.
func (r *Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	return r.send(ctx, apiclient.NewRequest(http.MethodGet, r.itemPath(id)))
}

// Create posts body to the collection and returns the created item.
func (r *Resource[T]) Create(ctx context.Context, body any) (*T, error) {
	return r.sendJSON(ctx, http.MethodPost, r.path, body)
}

// Update replaces the item with body (PUT).
func (r *Resource[T]) Update(ctx context.Context, id string, body any) (*T, error) {
	return r.sendJSON(ctx, http.MethodPut, r.itemPath(id), body)
}

// Patch applies a partial update (PATCH).
func (r *Resource[T]) Patch(ctx context.Context, id string, body any) (*T, error) {
	return r.sendJSON(ctx, http.MethodPatch, r.itemPath(id), body)
}

// Delete removes the item.
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	resp, err := r.client.Do(ctx, apiclient.NewRequest(http.MethodDelete, r.itemPath(id)))
	if err != nil {
		return err
	}
	_, err = decode(resp, nil)
	return err
}

// CreateMultipart posts a multipart form, for items carrying an image.
func (r *Resource[T]) CreateMultipart(ctx context.Context, fields [][2]string, files ...apiclient.File) (*T, error) {
	req, err := apiclient.NewMultipartRequest(http.MethodPost, r.path, fields, files...)
	if err != nil {
		return nil, err
	}
	return r.send(ctx, req)
}

// UpdateMultipart replaces an item with a multipart form.
func (r *Resource[T]) UpdateMultipart(ctx context.Context, id string, fields [][2]string, files ...apiclient.File) (*T, error) {
	req, err := apiclient.NewMultipartRequest(http.MethodPut, r.itemPath(id), fields, files...)
	if err != nil {
		return nil, err
	}
	return r.send(ctx, req)
}

func (r *Resource[T]) sendJSON(ctx context.Context, method, path string, body any) (*T, error) {
	req, err := apiclient.NewJSONRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return r.send(ctx, req)
}

func (r *Resource[T]) send(ctx context.Context, req *apiclient.Request) (*T, error) {
	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var item T
	if _, err := decode(resp, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
