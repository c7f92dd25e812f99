package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
)

// maxResponseBytes caps how much of a response body is buffered.
const maxResponseBytes = 32 << 20

// Request describes one API call. It is never modified by the client, so the
// same value can be sent again after a token refresh. Body is kept as bytes
// for the same reason.
type Request struct {
	Method      string
	Path        string // relative to the client's BaseURL, e.g. "/subjects"
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string

	// Anonymous requests carry no Authorization header and are never
	// retried through a refresh (login, password reset).
	Anonymous bool
}

// NewRequest returns a bodiless request.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path}
}

// NewJSONRequest encodes body as JSON. A nil body sends no payload.
func NewJSONRequest(method, path string, body any) (*Request, error) {
	req := NewRequest(method, path)
	if body == nil {
		return req, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req.Body = data
	req.ContentType = "application/json"
	return req, nil
}

// File is one part of a multipart upload.
type File struct {
	Field    string
	Filename string
	Content  io.Reader
}

// NewMultipartRequest buffers fields and files into a multipart/form-data
// body. Fields are written in the order given.
func NewMultipartRequest(method, path string, fields [][2]string, files ...File) (*Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %q: %w", kv[0], err)
		}
	}

	for _, f := range files {
		part, err := mw.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part %q: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("failed to copy file %q: %w", f.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req := NewRequest(method, path)
	req.Body = buf.Bytes()
	req.ContentType = mw.FormDataContentType()
	return req, nil
}

// url joins the request path and query onto base.
func (r *Request) url(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	rel, err := url.Parse(r.Path)
	if err != nil {
		return "", fmt.Errorf("invalid request path: %w", err)
	}

	u.Path = path.Join("/", u.Path, rel.Path)
	q := rel.Query()
	for key, values := range r.Query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Response is a fully buffered API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into target.
func (r *Response) DecodeJSON(target any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("failed to decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (r *Response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
