// Package query turns natural-language data requests into validated,
// bounded, parameterized read queries against the knowledge store.
package query

import (
	"fmt"
	"strings"
)

// ColumnType is the logical type of a column as seen by the pipeline.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
	TypeReal    ColumnType = "real"
	// TypeList is a JSON array serialized into a text column. Comparisons on
	// it are substring containment, never structural equality.
	TypeList ColumnType = "list"
)

// Numeric reports whether ordering comparisons are allowed.
func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeReal
}

// Column is one column of a queryable table.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is a queryable table and its columns, in storage order.
type Table struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns"`
}

// Column looks up a column by case-insensitive name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Schema is the read-only descriptor the pipeline grounds and validates
// against. Built once at startup.
type Schema struct {
	Tables []Table `json:"tables"`
}

// Table looks up a table by case-insensitive name.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns every table name in declaration order.
func (s Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Describe renders the schema for a grounding prompt.
func (s Schema) Describe() string {
	var b strings.Builder
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "- %s", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, " (%s)", t.Description)
		}
		b.WriteString(":")
		for i, c := range t.Columns {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s %s", c.Name, c.Type)
		}
		b.WriteString("\n")
	}
	return b.String()
}
