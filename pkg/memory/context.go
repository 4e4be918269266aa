package memory

import (
	"fmt"
	"sort"
	"strings"
)

// maxIdentifierSamples bounds how many representative values are listed
// per id column; the remainder is indicated by count.
const maxIdentifierSamples = 5

// sampleRows / sampleColumns bound the optional raw-row preview.
const (
	sampleRows    = 2
	sampleColumns = 6
)

// FormatContext renders a plain-text block describing the last n results
// for inclusion in a classifier or SQL-generation prompt. The block is
// kept within a rough token budget (one token ≈ four characters): sample
// rows are dropped first, then n is decremented until the block fits.
func (m *Memory) FormatContext(n, maxTokens int, includeSamples bool) string {
	if n <= 0 || m.Len() == 0 {
		return ""
	}
	block := m.renderContext(n, includeSamples)
	if estimateTokens(block) <= maxTokens {
		return block
	}
	if includeSamples {
		return m.FormatContext(n, maxTokens, false)
	}
	// n decreases monotonically, so the recursion is bounded.
	return m.FormatContext(n-1, maxTokens, false)
}

func (m *Memory) renderContext(n int, includeSamples bool) string {
	recent := m.Recent(n)
	if len(recent) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Recent query results (most recent first):\n")
	for i, res := range recent {
		fmt.Fprintf(&b, "%d. Question: %s\n", i+1, res.Question)
		if len(res.TablesUsed) > 0 {
			fmt.Fprintf(&b, "   Tables: %s\n", strings.Join(res.TablesUsed, ", "))
		}
		fmt.Fprintf(&b, "   Rows: %d\n", res.RowCount)

		cols := make([]string, 0, len(res.Identifiers))
		for col := range res.Identifiers {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			vals := res.Identifiers[col]
			shown := vals
			if len(shown) > maxIdentifierSamples {
				shown = shown[:maxIdentifierSamples]
			}
			line := fmt.Sprintf("   %s: [%s]", col, joinQuoted(shown))
			if rest := len(vals) - len(shown); rest > 0 {
				line += fmt.Sprintf(" (+%d more)", rest)
			}
			b.WriteString(line + "\n")
		}

		if includeSamples {
			for _, row := range firstN(res.StructuredData, sampleRows) {
				fmt.Fprintf(&b, "   Sample: %s\n", renderRow(row, sampleColumns))
			}
		}
	}
	return b.String()
}

func joinQuoted(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ", ")
}

func firstN(rows []Row, n int) []Row {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}

// renderRow formats a row truncated to maxCols columns, columns in
// sorted order for determinism.
func renderRow(row Row, maxCols int) string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	truncated := len(cols) > maxCols
	if truncated {
		cols = cols[:maxCols]
	}
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, fmt.Sprintf("%s=%v", col, row[col]))
	}
	s := "{" + strings.Join(parts, ", ") + "}"
	if truncated {
		s += " …"
	}
	return s
}

// estimateTokens applies the rough one-token-per-four-characters rule.
func estimateTokens(s string) int {
	return len(s) / 4
}
