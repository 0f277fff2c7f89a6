package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// LogicalTable names a dataset the dashboard can request, independent of
// where the platform physically stores it.
type LogicalTable string

// Logical tables served by the data-access core.
const (
	TableIssues        LogicalTable = "issues"
	TableReviewAspects LogicalTable = "review_aspects"
	TableLocations     LogicalTable = "locations"
)

// LogicalTables lists every table the UI can request, in a stable order.
func LogicalTables() []LogicalTable {
	return []LogicalTable{TableIssues, TableReviewAspects, TableLocations}
}

// ParseLogicalTable validates a table name from an external caller.
func ParseLogicalTable(s string) (LogicalTable, error) {
	switch LogicalTable(s) {
	case TableIssues, TableReviewAspects, TableLocations:
		return LogicalTable(s), nil
	}
	return "", ErrValidation("unknown logical table %q", s)
}

// Shape selects the structural representation of a result.
type Shape string

// Output shapes.
const (
	ShapeRecords Shape = "records"
	ShapeTable   Shape = "table"
)

// ParseShape validates an output shape from an external caller.
func ParseShape(s string) (Shape, error) {
	if s == "" {
		return ShapeRecords, nil
	}
	switch Shape(s) {
	case ShapeRecords, ShapeTable:
		return Shape(s), nil
	}
	return "", ErrValidation("unknown output shape %q", s)
}

// Source records where a result came from, so operators can detect
// degraded mode.
type Source string

// Result provenance values.
const (
	SourceLive     Source = "live"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// ResultPayload holds one query result. Columns and rows are stored once;
// both output shapes are derived from the same data without re-querying.
type ResultPayload struct {
	Columns []string
	Rows    [][]interface{}
	Source  Source
}

// RowCount returns the number of rows in the payload.
func (p *ResultPayload) RowCount() int { return len(p.Rows) }

// Records returns the payload as uniform column→value records.
func (p *ResultPayload) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, len(p.Rows))
	for i, row := range p.Rows {
		rec := make(map[string]interface{}, len(p.Columns))
		for j, col := range p.Columns {
			if j < len(row) {
				rec[col] = row[j]
			} else {
				rec[col] = nil
			}
		}
		records[i] = rec
	}
	return records
}

// Column returns the index of the named column, or -1.
func (p *ResultPayload) Column(name string) int {
	for i, col := range p.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// WithSource returns a shallow copy of the payload tagged with the given
// provenance.
func (p *ResultPayload) WithSource(src Source) *ResultPayload {
	out := *p
	out.Source = src
	return &out
}

// Fingerprint derives the deterministic cache key for a logical request.
// Filter parameters are canonicalised by key so two logically identical
// requests fingerprint identically regardless of map iteration order. Every
// component is length-prefixed so filter values containing delimiter
// characters cannot collide with a differently-structured request. The
// output shape is excluded: one cached payload serves both shapes.
func Fingerprint(table LogicalTable, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s", len(table), table)
	for _, k := range keys {
		fmt.Fprintf(&b, "%d:%s%d:%s", len(k), k, len(filters[k]), filters[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
