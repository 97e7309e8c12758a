// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package query

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/pkg/pagination"
)

/*
TestValidIdentifier exercises the identifier grammar boundaries.
*/
func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "orders", true},
		{"underscore_leading", "_private", true},
		{"mixed_case_digits", "Order2Items", true},
		{"max_length", strings.Repeat("a", 64), true},
		{"too_long", strings.Repeat("a", 65), false},
		{"empty", "", false},
		{"digit_leading", "2orders", false},
		{"hyphen", "order-items", false},
		{"space", "order items", false},
		{"semicolon_injection", "orders;DROP TABLE users", false},
		{"quote_injection", "orders`", false},
		{"unicode", "ordérs", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentifier(tt.input))
		})
	}
}

/*
TestParseID accepts positive integers and canonical UUIDs, nothing else.
*/
func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = ParseID("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id)

	for _, raw := range []string{"0", "-1", "", "abc", "1.5", "550e8400e29b41d4a716446655440000", "1 OR 1=1"} {
		_, err := ParseID(raw)
		require.Error(t, err, "input %q", raw)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidInput))
	}
}

/*
TestParsePagination verifies defaults, bounds, and rejection of invalid input.
*/
func TestParsePagination(t *testing.T) {
	params, err := ParsePagination("", "")
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultPage, params.Page)
	assert.Equal(t, pagination.DefaultPageSize, params.PageSize)

	params, err = ParsePagination("3", "50")
	require.NoError(t, err)
	assert.Equal(t, 3, params.Page)
	assert.Equal(t, 50, params.PageSize)

	tests := []struct {
		name     string
		page     string
		pageSize string
	}{
		{"page_zero", "0", ""},
		{"page_negative", "-2", ""},
		{"page_not_numeric", "two", ""},
		{"size_zero", "", "0"},
		{"size_over_max", "", "101"},
		{"size_not_numeric", "", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePagination(tt.page, tt.pageSize)
			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.CodeInvalidInput))
		})
	}
}

/*
TestParseFields verifies projection parsing, trimming, and deduplication.
*/
func TestParseFields(t *testing.T) {
	fields, err := ParseFields("")
	require.NoError(t, err)
	assert.Nil(t, fields)

	fields, err = ParseFields("id, name ,total,id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "total"}, fields)

	_, err = ParseFields("id,na me")
	require.Error(t, err)

	_, err = ParseFields("id,,name")
	require.Error(t, err)
}

/*
TestParseSort verifies direction prefixes and duplicate rejection.
*/
func TestParseSort(t *testing.T) {
	terms, err := ParseSort("-created_at,name")
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, SortTerm{Column: "created_at", Desc: true}, terms[0])
	assert.Equal(t, SortTerm{Column: "name", Desc: false}, terms[1])

	_, err = ParseSort("name,-name")
	require.Error(t, err)

	_, err = ParseSort("name;DROP")
	require.Error(t, err)
}

/*
TestParseFilter covers the three-part grammar, the legacy two-part form, and
operator-specific operand handling.
*/
func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []FilterTerm
		wantErr bool
	}{
		{
			name: "explicit_operator",
			raw:  "total:gte:100",
			want: []FilterTerm{{Column: "total", Op: OpGte, Value: "100"}},
		},
		{
			name: "legacy_equality",
			raw:  "status:active",
			want: []FilterTerm{{Column: "status", Op: OpEq, Value: "active"}},
		},
		{
			name: "legacy_wildcard_upgrades_to_like",
			raw:  "name:Jo%",
			want: []FilterTerm{{Column: "name", Op: OpLike, Value: "Jo%"}},
		},
		{
			name: "in_expands_values",
			raw:  "status:in:new|paid|shipped",
			want: []FilterTerm{{Column: "status", Op: OpIn, Value: "new|paid|shipped", Values: []string{"new", "paid", "shipped"}}},
		},
		{
			name: "null_drops_operand",
			raw:  "deleted_at:null:",
			want: []FilterTerm{{Column: "deleted_at", Op: OpNull}},
		},
		{
			name: "multiple_terms",
			raw:  "status:active,total:gt:10",
			want: []FilterTerm{
				{Column: "status", Op: OpEq, Value: "active"},
				{Column: "total", Op: OpGt, Value: "10"},
			},
		},
		{"missing_colon", "status", nil, true},
		{"bad_column", "sta tus:active", nil, true},
		{"unknown_operator", "created_at:2024-01-01:x", nil, true},
		{"empty_in_list", "status:in:", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms, err := ParseFilter(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsCode(err, apperr.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, terms)
		})
	}
}

/*
TestParseListOptions verifies the aggregate parser and first-error abort.
*/
func TestParseListOptions(t *testing.T) {
	values := url.Values{
		"fields":    {"id,name"},
		"filter":    {"status:active"},
		"sort":      {"-id"},
		"page":      {"2"},
		"page_size": {"25"},
	}

	opts, err := ParseListOptions(values)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, opts.Fields)
	require.Len(t, opts.Filters, 1)
	assert.Equal(t, OpEq, opts.Filters[0].Op)
	require.Len(t, opts.Sorts, 1)
	assert.True(t, opts.Sorts[0].Desc)
	assert.Equal(t, 2, opts.Page.Page)
	assert.Equal(t, 25, opts.Page.PageSize)

	_, err = ParseListOptions(url.Values{"sort": {"bad column"}})
	require.Error(t, err)
}
