package graph

import (
	"sort"
	"strings"
	"sync"
)

// systemTables are well-known infrastructure tables that never count as
// business entities.
var systemTables = map[string]struct{}{
	"__EFMigrationsHistory": {},
	"schema_migrations":     {},
	"flyway_schema_history": {},
	"migrations":            {},
	"sync_log":              {},
	"sync_state":            {},
	"audit_log":             {},
	"sessions":              {},
	"refresh_tokens":        {},
}

// priorityEntities are listed first when present in the graph, in this
// order. Curated for the field-service domain.
var priorityEntities = []string{
	"workOrder",
	"technician",
	"inspection",
	"customer",
	"asset",
	"invoice",
	"quote",
	"form",
	"formResponse",
	"location",
}

// DefaultVocabularyLimit bounds the non-priority tail of the vocabulary.
const DefaultVocabularyLimit = 10

// Vocabulary is the business-entity vocabulary derived from a join
// graph: system tables removed, curated priorities first, remainder
// alphabetical and truncated. Derived lazily on first use and cached
// for the process lifetime.
type Vocabulary struct {
	graph *JoinGraph
	limit int

	once     sync.Once
	entities []string
}

// NewVocabulary wraps a join graph with a lazily derived vocabulary.
// limit bounds the number of non-priority entities (<=0 uses the default).
func NewVocabulary(g *JoinGraph, limit int) *Vocabulary {
	if limit <= 0 {
		limit = DefaultVocabularyLimit
	}
	return &Vocabulary{graph: g, limit: limit}
}

// Entities returns the derived vocabulary. The returned slice is shared
// and must not be mutated.
func (v *Vocabulary) Entities() []string {
	v.once.Do(func() {
		v.entities = deriveEntities(v.graph, v.limit)
	})
	return v.entities
}

// Matches reports whether the question references a vocabulary entity by
// name, tolerating simple inflections (plural "s"/"es", camelCase and
// snake_case splits).
func (v *Vocabulary) Matches(question string) (string, bool) {
	all := v.MatchesAll(question)
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}

// MatchesAll returns every vocabulary entity the question references, in
// vocabulary order.
func (v *Vocabulary) MatchesAll(question string) []string {
	q := strings.ToLower(question)
	var out []string
	for _, entity := range v.Entities() {
		for _, form := range inflections(entity) {
			if strings.Contains(q, form) {
				out = append(out, entity)
				break
			}
		}
	}
	return out
}

func deriveEntities(g *JoinGraph, limit int) []string {
	present := make(map[string]struct{}, len(g.Tables))
	for name := range g.Tables {
		if _, sys := systemTables[name]; sys {
			continue
		}
		present[name] = struct{}{}
	}

	var out []string
	taken := make(map[string]struct{})
	for _, name := range priorityEntities {
		if _, ok := present[name]; ok {
			out = append(out, name)
			taken[name] = struct{}{}
		}
	}

	var rest []string
	for name := range present {
		if _, dup := taken[name]; !dup {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	if len(rest) > limit {
		rest = rest[:limit]
	}
	return append(out, rest...)
}

// inflections returns lowercase textual forms a question might use for
// a table name: the name itself, spaced variants of camelCase and
// snake_case, and naive plurals.
func inflections(entity string) []string {
	base := strings.ToLower(entity)
	spaced := strings.ToLower(splitWords(entity))

	forms := []string{base}
	if spaced != base {
		forms = append(forms, spaced)
	}
	for _, f := range []string{base, spaced} {
		forms = append(forms, f+"s", f+"es")
	}
	return dedupe(forms)
}

// splitWords converts camelCase or snake_case to space-separated words.
func splitWords(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_':
			b.WriteByte(' ')
		case r >= 'A' && r <= 'Z' && i > 0:
			b.WriteByte(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, s := range items {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
