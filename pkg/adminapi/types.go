package adminapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
)

// ============================================================================
// Envelope
// ============================================================================

// envelope is the backend's standard response wrapper. Older endpoints return
// bare JSON; decode handles both.
type envelope struct {
	Success    *bool           `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	Meta       *Pagination     `json:"meta,omitempty"`
}

// Pagination is the list metadata returned next to "data".
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items []T
	Pagination
}

// ============================================================================
// Resources
// ============================================================================

type Subject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

type Chapter struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subjectId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// Question leaves its body opaque: question formats belong to the backend.
type Question struct {
	ID        string          `json:"id"`
	SubjectID string          `json:"subjectId,omitempty"`
	ChapterID string          `json:"chapterId,omitempty"`
	Question  string          `json:"question"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt,omitzero"`
}

type Test struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SubjectID   string    `json:"subjectId,omitempty"`
	QuestionIDs []string  `json:"questionIds,omitempty"`
	Duration    int       `json:"duration,omitempty"` // minutes
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

type Admin struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

type Blog struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug,omitempty"`
	Content   string    `json:"content"` // HTML from the rich-text editor
	Image     string    `json:"image,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// ContentPage is one of the static pages (terms, privacy, ...).
type ContentPage struct {
	Page      string    `json:"page,omitempty"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Record is an untyped resource, used by the CLI to pass JSON through.
type Record map[string]any

// ID returns the record's "id" (or Mongo-style "_id") as a string.
func (r Record) ID() string {
	for _, key := range []string{"id", "_id"} {
		if v, ok := r[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// ============================================================================
// Auth
// ============================================================================

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	User         *apiclient.Profile `json:"user,omitempty"`

	// Some backend versions name the logged-in staff member "admin"
	Admin *apiclient.Profile `json:"admin,omitempty"`
}
