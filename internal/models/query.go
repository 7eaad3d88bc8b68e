package models

import (
	"errors"
	"strings"
)

// Default and maximum result counts for a search request.
const (
	DefaultLimit = 5
	MaxLimit     = 100
)

// ErrInvalidQuery is returned by Validate for malformed requests.
var ErrInvalidQuery = errors.New("invalid query")

// SearchQuery is the request body of /find and /stream/find.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// An empty limit becomes defaultLimit and a larger one is capped at maxLimit;
// zero arguments fall back to DefaultLimit and MaxLimit.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if strings.TrimSpace(q.Query) == "" {
		return errors.Join(ErrInvalidQuery, errors.New("query cannot be empty"))
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if q.Limit < 0 {
		return errors.Join(ErrInvalidQuery, errors.New("limit cannot be negative"))
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
