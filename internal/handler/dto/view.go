// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/viewtally/viewtally/internal/model"
)

// CountRequest represents the optional body of a counting call. An empty
// body means cookie mode with defaults.
type CountRequest struct {
	// Mode selects the state transport: "cookie" (default) or "cookieless".
	Mode string `json:"mode,omitempty"`
}

// CountResponse reports the outcome of a counting call.
type CountResponse struct {
	ContentID int64 `json:"content_id"`
	Counted   bool  `json:"counted"`
	// VisitorKey is returned in cookieless mode so the client can carry it
	// on subsequent calls. Also mirrored in the X-Visitor-Key header.
	VisitorKey string `json:"visitor_key,omitempty"`
}

// TotalResponse carries a single aggregated view count.
type TotalResponse struct {
	Views int64 `json:"views"`
}

// SeriesResponse maps period keys to aggregated counts.
type SeriesResponse struct {
	Bucket string           `json:"bucket"`
	Series map[string]int64 `json:"series"`
}

// ContentViewsResponse is one row of a most-viewed listing.
type ContentViewsResponse struct {
	ID          int64     `json:"id"`
	ContentType string    `json:"content_type"`
	Title       string    `json:"title,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Views       int64     `json:"views"`
}

// MostViewedResponse is the result of a most-viewed listing.
type MostViewedResponse struct {
	Data       []ContentViewsResponse `json:"data"`
	TotalViews int64                  `json:"total_views"`
}

// CreateContentRequest registers an entity for counting.
type CreateContentRequest struct {
	ID          int64      `json:"id"`
	ContentType string     `json:"content_type"`
	Title       string     `json:"title,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ContentResponse represents a registered content item.
type ContentResponse struct {
	ID          int64     `json:"id"`
	ContentType string    `json:"content_type"`
	Title       string    `json:"title,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToContentResponse converts a Content model to ContentResponse DTO.
func ToContentResponse(c *model.Content) *ContentResponse {
	return &ContentResponse{
		ID:          c.ID,
		ContentType: c.ContentType,
		Title:       c.Title,
		PublishedAt: c.PublishedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// ToMostViewedResponse converts listing rows to the response shape.
func ToMostViewedResponse(items []model.ContentWithViews, totalViews int64) *MostViewedResponse {
	rows := make([]ContentViewsResponse, len(items))
	for i, item := range items {
		rows[i] = ContentViewsResponse{
			ID:          item.ID,
			ContentType: item.ContentType,
			Title:       item.Title,
			PublishedAt: item.PublishedAt,
			Views:       item.Views,
		}
	}
	return &MostViewedResponse{Data: rows, TotalViews: totalViews}
}
