// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package query turns untrusted request input into validated, parameterized SQL.

It has three layers, each pure and free of I/O:

  - validate.go: closed-grammar parsers for identifiers, IDs, pagination,
    field lists, sort specs, and filter terms. Nothing partially parses:
    one bad term rejects the whole parameter.
  - options.go: [ListOptions], the aggregate of all list/count parameters.
  - builder.go: [Builder] assembles SQL from [QuotedIdent] identifiers and
    bound parameters only. Untrusted strings cannot reach SQL because
    [QuotedIdent] has no constructor that skips validation.

# Filter Grammar

	filter=col:op:value[,col:op:value]*

Operators: eq, neq, gt, gte, lt, lte, like, in, notin, null, notnull.
The legacy two-part form "col:value" maps to eq, or to like when the value
contains a '%' wildcard. Values containing ':' must use the explicit
three-part form; the legacy form tokenizes on the first ':' only.
*/
package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/constants"
	"github.com/relatadb/relata/pkg/pagination"
)

var (
	// identifierRegex matches safe SQL identifiers (tables and columns).
	identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// uuidRegex matches a canonical 8-4-4-4-12 UUID string.
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// # Identifiers

// ValidIdentifier reports whether name is a safe table or column identifier:
// ASCII letters, digits, underscore, not digit-leading, at most 64 bytes.
func ValidIdentifier(name string) bool {
	if len(name) == 0 || len(name) > constants.MaxIdentifierLength {
		return false
	}
	return identifierRegex.MatchString(name)
}

// CheckIdentifier returns a typed error when name is not a safe identifier.
func CheckIdentifier(field, name string) error {
	if !ValidIdentifier(name) {
		return apperr.InvalidInput("Invalid identifier", apperr.FieldError{
			Field:   field,
			Message: "Must match ^[A-Za-z_][A-Za-z0-9_]*$ and be at most 64 characters",
		})
	}
	return nil
}

// # Row IDs

// ParseID validates a primary-key value from the id query parameter.
//
// # Returns
//   - int64 for decimal integers >= 1.
//   - string for canonical UUIDs.
//   - A typed error for everything else.
func ParseID(raw string) (any, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 1 {
			return nil, apperr.InvalidInput("Invalid id", apperr.FieldError{
				Field:   "id",
				Message: "Must be a positive integer",
			})
		}
		return n, nil
	}

	if uuidRegex.MatchString(raw) {
		return raw, nil
	}

	return nil, apperr.InvalidInput("Invalid id", apperr.FieldError{
		Field:   "id",
		Message: "Must be a positive integer or a canonical UUID",
	})
}

// # Pagination

// ParsePagination validates the page and page_size query parameters.
//
// Absent parameters take their defaults; present-but-invalid parameters are
// rejected rather than clamped, so clients learn about their mistakes.
func ParsePagination(pageRaw, pageSizeRaw string) (pagination.Params, error) {
	params := pagination.Params{
		Page:     pagination.DefaultPage,
		PageSize: pagination.DefaultPageSize,
	}

	if pageRaw != "" {
		page, err := strconv.Atoi(pageRaw)
		if err != nil || page < 1 {
			return params, apperr.InvalidInput("Invalid pagination", apperr.FieldError{
				Field:   "page",
				Message: "Must be an integer >= 1",
			})
		}
		params.Page = page
	}

	if pageSizeRaw != "" {
		pageSize, err := strconv.Atoi(pageSizeRaw)
		if err != nil || pageSize < 1 || pageSize > pagination.MaxPageSize {
			return params, apperr.InvalidInput("Invalid pagination", apperr.FieldError{
				Field:   "page_size",
				Message: "Must be an integer between 1 and 100",
			})
		}
		params.PageSize = pageSize
	}

	return params, nil
}

// # Field Projection

// ParseFields validates the comma-separated fields parameter.
//
// Duplicates are removed with the first occurrence's position preserved.
func ParseFields(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var fields []string

	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if err := CheckIdentifier("fields", field); err != nil {
			return nil, err
		}
		if _, duplicate := seen[field]; duplicate {
			continue
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}

	return fields, nil
}

// # Sorting

// SortTerm is one validated element of the sort parameter.
type SortTerm struct {
	Column string
	Desc   bool
}

// ParseSort validates the comma-separated sort parameter.
//
// A leading '-' selects descending order. Duplicate columns are rejected:
// a duplicate almost always signals a client bug, not an intent.
func ParseSort(raw string) ([]SortTerm, error) {
	if raw == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var terms []SortTerm

	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		desc := strings.HasPrefix(token, "-")
		column := strings.TrimPrefix(token, "-")

		if err := CheckIdentifier("sort", column); err != nil {
			return nil, err
		}
		if _, duplicate := seen[column]; duplicate {
			return nil, apperr.InvalidInput("Invalid sort", apperr.FieldError{
				Field:   "sort",
				Message: "Duplicate sort column: " + column,
			})
		}
		seen[column] = struct{}{}
		terms = append(terms, SortTerm{Column: column, Desc: desc})
	}

	return terms, nil
}

// # Filtering

// FilterOp is the closed set of comparison operators in the filter grammar.
type FilterOp string

const (
	OpEq      FilterOp = "eq"
	OpNeq     FilterOp = "neq"
	OpGt      FilterOp = "gt"
	OpGte     FilterOp = "gte"
	OpLt      FilterOp = "lt"
	OpLte     FilterOp = "lte"
	OpLike    FilterOp = "like"
	OpIn      FilterOp = "in"
	OpNotIn   FilterOp = "notin"
	OpNull    FilterOp = "null"
	OpNotNull FilterOp = "notnull"
)

// validOps is the whitelist consulted by ParseFilter.
var validOps = map[FilterOp]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpLike: {}, OpIn: {}, OpNotIn: {}, OpNull: {}, OpNotNull: {},
}

// FilterTerm is one validated element of the filter parameter.
//
// Value holds the scalar operand; Values holds the expanded operand list
// for the in/notin operators.
type FilterTerm struct {
	Column string
	Op     FilterOp
	Value  string
	Values []string
}

// ParseFilter validates the comma-separated filter parameter.
func ParseFilter(raw string) ([]FilterTerm, error) {
	if raw == "" {
		return nil, nil
	}

	var terms []FilterTerm

	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		term, err := parseFilterTerm(token)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}

	return terms, nil
}

// parseFilterTerm tokenizes a single "col:op:value" or legacy "col:value" term.
func parseFilterTerm(token string) (FilterTerm, error) {
	column, rest, found := strings.Cut(token, ":")
	if !found {
		return FilterTerm{}, apperr.InvalidInput("Invalid filter", apperr.FieldError{
			Field:   "filter",
			Message: "Terms must be col:op:value or col:value",
		})
	}

	if err := CheckIdentifier("filter", column); err != nil {
		return FilterTerm{}, err
	}

	op, value, hasOp := strings.Cut(rest, ":")
	if hasOp {
		if _, known := validOps[FilterOp(op)]; !known {
			// Not an operator: treat the whole rest as a legacy value
			// containing a ':' — explicitly rejected by the grammar.
			return FilterTerm{}, apperr.InvalidInput("Invalid filter", apperr.FieldError{
				Field:   "filter",
				Message: "Unknown operator " + op + "; values containing ':' require the col:op:value form",
			})
		}
		return buildFilterTerm(column, FilterOp(op), value)
	}

	// Legacy two-part form: col:value. A '%' wildcard upgrades to LIKE.
	if strings.Contains(rest, "%") {
		return buildFilterTerm(column, OpLike, rest)
	}
	return buildFilterTerm(column, OpEq, rest)
}

// buildFilterTerm finalizes operator-specific operand handling.
func buildFilterTerm(column string, op FilterOp, value string) (FilterTerm, error) {
	term := FilterTerm{Column: column, Op: op, Value: value}

	switch op {
	case OpIn, OpNotIn:
		// Operand is a pipe-separated list; one binding per element.
		term.Values = strings.Split(value, "|")
		if len(term.Values) == 1 && term.Values[0] == "" {
			return FilterTerm{}, apperr.InvalidInput("Invalid filter", apperr.FieldError{
				Field:   "filter",
				Message: "in/notin operators require at least one value",
			})
		}

	case OpNull, OpNotNull:
		// Operand is ignored by the grammar.
		term.Value = ""
	}

	return term, nil
}
