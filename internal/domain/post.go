package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MinTitleLength is the minimum number of characters of a trimmed post title.
	MinTitleLength = 5
	// MinContentLength is the minimum number of characters of trimmed post content.
	MinContentLength = 5
)

var (
	// ErrPostNotFound is returned when looking up a non-existent post.
	ErrPostNotFound = &Error{Kind: ErrNotFound, Message: "Could not find post."}
	// ErrNotPostOwner is returned when a user mutates a post created by someone else.
	ErrNotPostOwner = &Error{Kind: ErrForbidden, Message: "Not authorized!"}
	// ErrInvalidPage is returned for a page number that is not an integer.
	ErrInvalidPage = NewValidationError("Invalid page.", FieldError{Field: "page", Message: "must be an integer"})
)

// CreatorSummary is the public view of a post's creator, joined into every read.
type CreatorSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Post is a feed entry owned by exactly one user.
type Post struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	ImageURL  AssetRef       `json:"imageUrl"`
	Creator   CreatorSummary `json:"creator"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`

	// Seq is the insertion sequence, used to order posts sharing a creation time.
	Seq int64 `json:"-"`
}

// OwnedBy reports whether userID created the post.
func (p *Post) OwnedBy(userID string) bool {
	return userID != "" && p.Creator.ID == userID
}

// PostFields are the mutable fields of a post.
type PostFields struct {
	Title    string
	Content  string
	ImageURL AssetRef
}

// Normalize trims the text fields.
func (f PostFields) Normalize() PostFields {
	return PostFields{
		Title:    strings.TrimSpace(f.Title),
		Content:  strings.TrimSpace(f.Content),
		ImageURL: f.ImageURL,
	}
}

// Validate checks the length constraints of normalized text fields.
// The image is checked separately since it may arrive as an upload.
func (f PostFields) Validate() error {
	var fields []FieldError

	if utf8.RuneCountInString(f.Title) < MinTitleLength {
		fields = append(fields, fieldErrorf("title", "must be at least %d characters", MinTitleLength))
	}

	if utf8.RuneCountInString(f.Content) < MinContentLength {
		fields = append(fields, fieldErrorf("content", "must be at least %d characters", MinContentLength))
	}

	if len(fields) > 0 {
		return NewValidationError("Validation failed, entered data is incorrect.", fields...)
	}

	return nil
}

// PostPage is one page of the feed.
type PostPage struct {
	Posts      []*Post
	TotalItems int
}

// PostsResponse is the feed listing response.
type PostsResponse struct {
	Message    string  `json:"message"`
	Posts      []*Post `json:"posts"`
	TotalItems int     `json:"totalItems"`
}

// PostResponse carries a single post.
type PostResponse struct {
	Message string          `json:"message"`
	Post    *Post           `json:"post,omitempty"`
	Creator *CreatorSummary `json:"creator,omitempty"`
}
