// Package models defines core data structures for statistics records and search queries.
package models

// Record is one statistics publication in the catalogue.
type Record struct {
	ID             int64  `json:"id" db:"id"`
	Title          string `json:"title" db:"title"`
	Subject        string `json:"subject" db:"subject"`
	Description    string `json:"description" db:"description"`
	Link           string `json:"link" db:"link"`
	Date           string `json:"date" db:"date"`
	TeaserImageURL string `json:"teaser_image_url" db:"teaser_image_url"`
}
