// Package graph models the static join graph of the business database:
// tables, their columns, and the directed relationships between them.
// The graph is produced offline by the schema-extraction tooling, loaded
// once at startup, and shared read-only across all conversations.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Relationship types.
const (
	RelForeignKey = "foreign_key"
	RelHeuristic  = "heuristic"
)

// Table describes one table's columns.
type Table struct {
	Columns       []string `json:"columns"`
	UniqueColumns []string `json:"unique_columns,omitempty"`
}

// Relationship is a directed link between two tables.
type Relationship struct {
	FromTable   string  `json:"from_table"`
	FromColumn  string  `json:"from_column"`
	ToTable     string  `json:"to_table"`
	ToColumn    string  `json:"to_column"`
	Type        string  `json:"type"`        // foreign_key | heuristic
	Confidence  float64 `json:"confidence"`  // 0..1
	Cardinality string  `json:"cardinality"` // 1:1, N:1, 1:N, N:N, unknown
	Evidence    string  `json:"evidence,omitempty"`
}

// JoinGraph is the full read-only schema description.
type JoinGraph struct {
	Tables        map[string]Table `json:"tables"`
	Relationships []Relationship   `json:"relationships"`
}

// Load reads and parses a join graph JSON file.
func Load(path string) (*JoinGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read join graph: %w", err)
	}
	var g JoinGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse join graph %s: %w", path, err)
	}
	if len(g.Tables) == 0 {
		return nil, fmt.Errorf("join graph %s contains no tables", path)
	}
	return &g, nil
}

// TableNames returns all table names in sorted order.
func (g *JoinGraph) TableNames() []string {
	names := make([]string, 0, len(g.Tables))
	for name := range g.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTable reports whether the graph knows the table.
func (g *JoinGraph) HasTable(name string) bool {
	_, ok := g.Tables[name]
	return ok
}

// Related returns relationships touching the given table, foreign keys
// before heuristics, higher confidence first.
func (g *JoinGraph) Related(table string) []Relationship {
	var out []Relationship
	for _, rel := range g.Relationships {
		if rel.FromTable == table || rel.ToTable == table {
			out = append(out, rel)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == RelForeignKey
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Neighbors returns tables one join away from the given table.
func (g *JoinGraph) Neighbors(table string) []string {
	seen := map[string]struct{}{table: {}}
	var out []string
	for _, rel := range g.Related(table) {
		other := rel.ToTable
		if other == table {
			other = rel.FromTable
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out
}

// SchemaBlock renders a prompt-ready description of the given tables:
// columns plus the relationships linking them.
func (g *JoinGraph) SchemaBlock(tables []string) string {
	want := make(map[string]struct{}, len(tables))
	var b []byte
	for _, name := range tables {
		tbl, ok := g.Tables[name]
		if !ok {
			continue
		}
		want[name] = struct{}{}
		b = append(b, fmt.Sprintf("TABLE %s (%s)\n", name, joinComma(tbl.Columns))...)
	}
	for _, rel := range g.Relationships {
		_, fromOK := want[rel.FromTable]
		_, toOK := want[rel.ToTable]
		if !fromOK || !toOK {
			continue
		}
		b = append(b, fmt.Sprintf("JOIN %s.%s -> %s.%s (%s, %s)\n",
			rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn, rel.Type, rel.Cardinality)...)
	}
	return string(b)
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
