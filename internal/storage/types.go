// Package storage defines the persistence interfaces and shared query types
// for the NLP knowledge base.
//
// The layer is split into small, focused interfaces (entities, values,
// samples, sample links, languages) that backends implement independently.
// Deduplication relies on FindOneOrCreate primitives plus database uniqueness
// constraints: concurrent creators may race past the existence check, in
// which case the loser receives ErrConflict and should retry or skip.
package storage

import (
	"errors"

	"github.com/chatforge/nlukit/pkg/types"
)

var (
	// ErrNotFound indicates that the requested row was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a uniqueness violation, typically the losing
	// side of a concurrent find-or-create race. Callers may retry the
	// lookup or skip the row.
	ErrConflict = errors.New("conflicting row already exists")
)

// PaginatedResult is a typed page of rows.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []*T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and sorting for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 10, max: 100).
	Limit int

	// SortBy specifies the field to sort by.
	SortBy string

	// SortOrder is "asc" or "desc" (default: "desc").
	SortOrder string
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"id":         true,
		"text":       true,
		"name":       true,
		"value":      true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 10
	}

	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the row offset for the current page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// SampleFilter restricts sample queries on plain sample fields. Zero values
// mean "no filter" for their field.
type SampleFilter struct {
	// Text matches the sample text exactly.
	Text string

	// Type filters by sample type (train, test, inbox).
	Type types.SampleType

	// LanguageID filters by language reference.
	LanguageID string

	// Trained filters by trained flag when non-nil.
	Trained *bool
}
