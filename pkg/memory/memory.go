// Package memory implements the bounded query-result memory that lets a
// follow-up question reuse identifiers from an earlier structured answer
// without replaying the original query.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Row is a single result record: column name → scalar value.
type Row map[string]any

// QueryResult is one stored SQL outcome. Identifiers is computed at
// construction and frozen thereafter: for every column whose name is
// "id" or ends in "id"/"Id", the unique non-null values in first-seen
// order.
type QueryResult struct {
	Question       string              `json:"question"`
	StructuredData []Row               `json:"structured_data"`
	SQLQuery       string              `json:"sql_query,omitempty"`
	TablesUsed     []string            `json:"tables_used,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	RowCount       int                 `json:"row_count"`
	Identifiers    map[string][]string `json:"identifiers"`
}

// NewQueryResult builds a QueryResult and derives its identifier map.
func NewQueryResult(question string, data []Row, sqlQuery string, tablesUsed []string) QueryResult {
	return QueryResult{
		Question:       question,
		StructuredData: data,
		SQLQuery:       sqlQuery,
		TablesUsed:     tablesUsed,
		Timestamp:      time.Now().UTC(),
		RowCount:       len(data),
		Identifiers:    extractIdentifiers(data),
	}
}

// isIdentifierColumn reports whether a column name denotes an id:
// literally "id", or ending in "id" or "Id" (inspectionId, work_order_id).
func isIdentifierColumn(name string) bool {
	if name == "id" {
		return true
	}
	return strings.HasSuffix(name, "id") || strings.HasSuffix(name, "Id")
}

func extractIdentifiers(data []Row) map[string][]string {
	ids := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, row := range data {
		// Stable column order per row so value order is deterministic.
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			if !isIdentifierColumn(col) {
				continue
			}
			val := row[col]
			if val == nil {
				continue
			}
			s := fmt.Sprintf("%v", val)
			if seen[col] == nil {
				seen[col] = make(map[string]struct{})
				ids[col] = nil
			}
			if _, dup := seen[col][s]; dup {
				continue
			}
			seen[col][s] = struct{}{}
			ids[col] = append(ids[col], s)
		}
	}
	return ids
}

// Memory is a bounded FIFO of recent query results. The zero value is
// not usable; construct with New. The struct is JSON-serializable and
// round-trips losslessly as part of the workflow checkpoint.
type Memory struct {
	Capacity int           `json:"capacity"`
	Results  []QueryResult `json:"results"`
}

// DefaultCapacity is the retained-result bound when none is configured.
const DefaultCapacity = 5

// New creates an empty memory with the given capacity.
func New(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{Capacity: capacity}
}

// Add constructs a QueryResult, appends it, and evicts the oldest entry
// when over capacity. Adding an empty result set is a no-op.
func (m *Memory) Add(question string, data []Row, sqlQuery string, tablesUsed []string) {
	if len(data) == 0 {
		return
	}
	m.Results = append(m.Results, NewQueryResult(question, data, sqlQuery, tablesUsed))
	if len(m.Results) > m.Capacity {
		m.Results = m.Results[len(m.Results)-m.Capacity:]
	}
}

// Len returns the number of retained results.
func (m *Memory) Len() int {
	return len(m.Results)
}

// Recent returns the last n results, most recent first.
func (m *Memory) Recent(n int) []QueryResult {
	if n <= 0 || len(m.Results) == 0 {
		return nil
	}
	if n > len(m.Results) {
		n = len(m.Results)
	}
	out := make([]QueryResult, 0, n)
	for i := len(m.Results) - 1; i >= len(m.Results)-n; i-- {
		out = append(out, m.Results[i])
	}
	return out
}

// AllIdentifiers unions the identifier maps of the last n results,
// deduplicating values per column. Most recent results contribute first.
func (m *Memory) AllIdentifiers(n int) map[string][]string {
	merged := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, res := range m.Recent(n) {
		for col, vals := range res.Identifiers {
			if seen[col] == nil {
				seen[col] = make(map[string]struct{})
			}
			for _, v := range vals {
				if _, dup := seen[col][v]; dup {
					continue
				}
				seen[col][v] = struct{}{}
				merged[col] = append(merged[col], v)
			}
		}
	}
	return merged
}
