// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

// Package pagination provides shared types and helpers for list responses.
//
// # Overview
//
// It standardizes how page-based navigation is requested via query parameters
// and how the resulting metadata is delivered in the API response envelope.
package pagination

// Bounds applied to the page_size query parameter.
const (
	// DefaultPage is the starting page (1-indexed).
	DefaultPage = 1
	// DefaultPageSize is the number of rows per page if not specified.
	DefaultPageSize = 20
	// MaxPageSize is the upper bound for rows per page to prevent system abuse.
	MaxPageSize = 100
)

// Params holds the validated page and page_size for a list query.
type Params struct {
	Page     int
	PageSize int
}

// Offset returns the SQL OFFSET value derived from Page and PageSize.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Meta is the pagination metadata included in list responses.
type Meta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

// NewMeta constructs pagination metadata for a response.
//
// Pages is always ceil(total / page_size); zero when the result is empty.
func NewMeta(page, pageSize, total int) Meta {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}

	return Meta{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
	}
}
