package domain

import "time"

// Book is a catalog row. Metadata fields are optional and become
// non-empty only after a successful resolution or a manual edit.
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Path        string    `json:"path,omitempty"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	CoverPath   string    `json:"coverPath,omitempty"`
	Year        int       `json:"year,omitempty"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Chapter struct {
	ID     string `json:"id"`
	BookID string `json:"bookId"`
	Name   string `json:"name"`
	Path   string `json:"path,omitempty"`
	Index  int    `json:"index"`
}

// BookFieldUpdate carries a partial update. Nil pointers leave the
// corresponding column untouched, so "unset" and "set to empty" stay
// distinguishable at the store boundary.
type BookFieldUpdate struct {
	Title       *string
	Author      *string
	Description *string
	CoverPath   *string
	Year        *int
	Language    *string
}

func (u BookFieldUpdate) Empty() bool {
	return u.Title == nil && u.Author == nil && u.Description == nil &&
		u.CoverPath == nil && u.Year == nil && u.Language == nil
}
