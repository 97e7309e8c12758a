// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package query

import (
	"net/url"

	"github.com/relatadb/relata/pkg/pagination"
)

// ListOptions aggregates every validated list/count parameter.
//
// A nil Fields slice means the projection defaults to all columns.
type ListOptions struct {
	Fields  []string
	Filters []FilterTerm
	Sorts   []SortTerm
	Page    pagination.Params
}

// ParseListOptions validates the full query-parameter surface of the list
// and count actions. The first invalid parameter aborts parsing.
func ParseListOptions(values url.Values) (*ListOptions, error) {
	fields, err := ParseFields(values.Get("fields"))
	if err != nil {
		return nil, err
	}

	filters, err := ParseFilter(values.Get("filter"))
	if err != nil {
		return nil, err
	}

	sorts, err := ParseSort(values.Get("sort"))
	if err != nil {
		return nil, err
	}

	page, err := ParsePagination(values.Get("page"), values.Get("page_size"))
	if err != nil {
		return nil, err
	}

	return &ListOptions{
		Fields:  fields,
		Filters: filters,
		Sorts:   sorts,
		Page:    page,
	}, nil
}
