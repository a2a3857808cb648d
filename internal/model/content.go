package model

import "time"

// ContentStatus filters content listings.
type ContentStatus string

// Content statuses.
const (
	StatusAny       ContentStatus = ""
	StatusPublished ContentStatus = "published"
	StatusDeleted   ContentStatus = "deleted"
)

// Content is a counted entity registered with the service. The service does
// not own the content itself, only enough of it to answer listing queries.
type Content struct {
	ID          int64      `json:"id"`
	ContentType string     `json:"content_type"` // e.g. "post", "page"
	Title       string     `json:"title"`
	PublishedAt time.Time  `json:"published_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ContentWithViews is a listing row augmented with the aggregated view count.
type ContentWithViews struct {
	Content
	Views int64 `json:"views"`
}
