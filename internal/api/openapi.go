// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package api

import (
	"context"
	"strings"

	"github.com/relatadb/relata/internal/schema"
)

// openAPIDocument renders an OpenAPI 3.0 description of the live schema.
//
// The document is generated per request from the inspector, so it follows
// schema changes without redeploys. Every table contributes one component
// schema plus the shared single-endpoint path description.
func (g *Gateway) openAPIDocument(ctx context.Context) (map[string]any, error) {
	tables, err := g.engine.Inspector().Tables(ctx)
	if err != nil {
		return nil, err
	}

	schemas := make(map[string]any, len(tables))
	for _, table := range tables {
		tableSchema, err := g.engine.Inspector().Schema(ctx, table)
		if err != nil {
			return nil, err
		}
		schemas[table] = tableComponent(tableSchema)
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "Relata Gateway",
			"description": "Generic CRUD over the connected relational schema.",
			"version":     "1.0.0",
		},
		"paths": map[string]any{
			"/api": map[string]any{
				"get": map[string]any{
					"summary": "Read operations (list, read, count, tables, columns, health)",
					"parameters": []any{
						queryParameter("action", true, "Operation selector"),
						queryParameter("table", false, "Target table"),
						queryParameter("id", false, "Primary key for read"),
						queryParameter("page", false, "Page number (1-based)"),
						queryParameter("page_size", false, "Rows per page"),
						queryParameter("fields", false, "Comma-separated projection"),
						queryParameter("sort", false, "Comma-separated sort, '-' prefix for descending"),
						queryParameter("filter", false, "Comma-separated column:op:value terms"),
					},
					"responses": defaultResponses(),
				},
				"post": map[string]any{
					"summary":   "Write operations (create, update, delete, bulk_create, bulk_delete, login)",
					"responses": defaultResponses(),
				},
				"put": map[string]any{
					"summary":   "Update a row by primary key",
					"responses": defaultResponses(),
				},
				"delete": map[string]any{
					"summary":   "Delete a row by primary key",
					"responses": defaultResponses(),
				},
			},
		},
		"components": map[string]any{
			"schemas": schemas,
		},
	}, nil
}

// tableComponent renders one table as an OpenAPI object schema.
func tableComponent(tableSchema *schema.TableSchema) map[string]any {
	properties := make(map[string]any, len(tableSchema.Columns))
	var required []string

	for _, column := range tableSchema.Columns {
		properties[column.Name] = map[string]any{
			"type":     openAPIType(column.Type),
			"nullable": column.Nullable,
		}
		if !column.Nullable && column.Default == nil && column.Name != tableSchema.PrimaryKey {
			required = append(required, column.Name)
		}
	}

	component := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		component["required"] = required
	}
	return component
}

// openAPIType maps SQL column types onto OpenAPI primitive types.
func openAPIType(sqlType string) string {
	lower := strings.ToLower(sqlType)
	switch {
	case strings.Contains(lower, "int"):
		return "integer"
	case strings.Contains(lower, "float"), strings.Contains(lower, "double"),
		strings.Contains(lower, "decimal"), strings.Contains(lower, "numeric"),
		strings.Contains(lower, "real"):
		return "number"
	case strings.Contains(lower, "bool"):
		return "boolean"
	default:
		return "string"
	}
}

// queryParameter renders one OpenAPI query parameter.
func queryParameter(name string, required bool, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"required":    required,
		"description": description,
		"schema":      map[string]any{"type": "string"},
	}
}

// defaultResponses is the shared response table for the single endpoint.
func defaultResponses() map[string]any {
	return map[string]any{
		"200": map[string]any{"description": "Success"},
		"400": map[string]any{"description": "Invalid input"},
		"401": map[string]any{"description": "Missing or invalid credentials"},
		"403": map[string]any{"description": "Role not permitted"},
		"404": map[string]any{"description": "Table or row not found"},
		"429": map[string]any{"description": "Rate limit exceeded"},
	}
}
