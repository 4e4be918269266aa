package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEnforcesCapacity(t *testing.T) {
	m := New(3)
	for i := 0; i < 7; i++ {
		m.Add(fmt.Sprintf("question %d", i), []Row{{"count": i}}, "", nil)
	}

	require.Equal(t, 3, m.Len())
	// Retained items are the last three, Recent returns newest first.
	recent := m.Recent(3)
	assert.Equal(t, "question 6", recent[0].Question)
	assert.Equal(t, "question 5", recent[1].Question)
	assert.Equal(t, "question 4", recent[2].Question)
}

func TestAddEmptyDataIsNoOp(t *testing.T) {
	m := New(5)
	m.Add("nothing came back", nil, "SELECT 1", []string{"technician"})
	m.Add("still nothing", []Row{}, "", nil)
	assert.Equal(t, 0, m.Len())
}

func TestIdentifierExtraction(t *testing.T) {
	rows := []Row{
		{"inspectionId": "abc-123", "workOrderId": "wo-456", "status": "IN_PROGRESS"},
		{"inspectionId": "abc-123", "workOrderId": "wo-789", "status": "DONE"},
		{"inspectionId": "def-222", "workOrderId": nil, "status": "DONE"},
	}
	res := NewQueryResult("find inspections", rows, "SELECT ...", []string{"inspection"})

	require.Equal(t, 3, res.RowCount)
	assert.Equal(t, []string{"abc-123", "def-222"}, res.Identifiers["inspectionId"])
	assert.Equal(t, []string{"wo-456", "wo-789"}, res.Identifiers["workOrderId"])
	// Non-id columns never appear.
	assert.NotContains(t, res.Identifiers, "status")
}

func TestIdentifierColumnNaming(t *testing.T) {
	rows := []Row{{"id": 7, "tenant_id": "t1", "customerId": "c1", "width": 3}}
	res := NewQueryResult("q", rows, "", nil)

	assert.Contains(t, res.Identifiers, "id")
	assert.Contains(t, res.Identifiers, "tenant_id")
	assert.Contains(t, res.Identifiers, "customerId")
	assert.NotContains(t, res.Identifiers, "width")
	assert.Equal(t, []string{"7"}, res.Identifiers["id"])
}

func TestNoIdentifierColumns(t *testing.T) {
	m := New(5)
	m.Add("How many technicians are active?", []Row{{"count": 10}}, "SELECT COUNT(*)...", []string{"technician"})

	require.Equal(t, 1, m.Len())
	assert.Empty(t, m.Recent(1)[0].Identifiers)
}

func TestAllIdentifiersUnions(t *testing.T) {
	m := New(5)
	m.Add("first", []Row{{"inspectionId": "abc-123"}}, "", nil)
	m.Add("second", []Row{{"inspectionId": "abc-123"}, {"inspectionId": "zzz-999"}}, "", nil)
	m.Add("third", []Row{{"workOrderId": "wo-1"}}, "", nil)

	ids := m.AllIdentifiers(3)
	assert.ElementsMatch(t, []string{"abc-123", "zzz-999"}, ids["inspectionId"])
	assert.Equal(t, []string{"wo-1"}, ids["workOrderId"])

	// Window of 1 only sees the newest result.
	ids = m.AllIdentifiers(1)
	assert.NotContains(t, ids, "inspectionId")
	assert.Equal(t, []string{"wo-1"}, ids["workOrderId"])
}

func TestFormatContext(t *testing.T) {
	m := New(5)
	m.Add("Find crane inspections for ABC COKE",
		[]Row{{"inspectionId": "abc-123", "workOrderId": "wo-456", "status": "IN_PROGRESS"}},
		"SELECT ...", []string{"inspection", "workOrder"})

	block := m.FormatContext(3, 1000, true)
	assert.Contains(t, block, "Find crane inspections for ABC COKE")
	assert.Contains(t, block, "inspectionId: ['abc-123']")
	assert.Contains(t, block, "Tables: inspection, workOrder")
	assert.Contains(t, block, "Rows: 1")
	assert.Contains(t, block, "Sample:")
}

func TestFormatContextDropsSamplesFirst(t *testing.T) {
	m := New(5)
	var rows []Row
	for i := 0; i < 20; i++ {
		rows = append(rows, Row{
			"inspectionId": fmt.Sprintf("insp-%03d", i),
			"description":  strings.Repeat("x", 80),
		})
	}
	m.Add("long result", rows, "", []string{"inspection"})

	full := m.FormatContext(1, 100000, true)
	require.Contains(t, full, "Sample:")

	budget := estimateTokens(full) - 1
	squeezed := m.FormatContext(1, budget, true)
	assert.NotContains(t, squeezed, "Sample:")
	assert.Contains(t, squeezed, "inspectionId")
}

func TestFormatContextShrinksWindow(t *testing.T) {
	m := New(5)
	for i := 0; i < 5; i++ {
		m.Add(fmt.Sprintf("question %d %s", i, strings.Repeat("y", 200)),
			[]Row{{"id": i}}, "", nil)
	}

	one := m.renderContext(1, false)
	block := m.FormatContext(5, estimateTokens(one), false)
	assert.Contains(t, block, "question 4")
	assert.NotContains(t, block, "question 0")
}

func TestFormatContextEmpty(t *testing.T) {
	assert.Empty(t, New(5).FormatContext(3, 1000, true))
}

func TestIdentifierSampleTruncation(t *testing.T) {
	m := New(5)
	var rows []Row
	for i := 0; i < 9; i++ {
		rows = append(rows, Row{"workOrderId": fmt.Sprintf("wo-%d", i)})
	}
	m.Add("many work orders", rows, "", nil)

	block := m.FormatContext(1, 100000, false)
	assert.Contains(t, block, "'wo-4'")
	assert.NotContains(t, block, "'wo-5'")
	assert.Contains(t, block, "(+4 more)")
}

func TestSerializationRoundTrip(t *testing.T) {
	m := New(2)
	m.Add("a", []Row{{"inspectionId": "i-1", "n": float64(3)}}, "SELECT a", []string{"inspection"})
	m.Add("b", []Row{{"workOrderId": "wo-1"}}, "SELECT b", []string{"workOrder"})
	m.Add("c", []Row{{"id": "x"}}, "", nil) // evicts "a"

	data, err := json.Marshal(m)
	require.NoError(t, err)

	restored := &Memory{}
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, m.Capacity, restored.Capacity)
	require.Equal(t, m.Len(), restored.Len())
	for i := range m.Results {
		assert.Equal(t, m.Results[i].Question, restored.Results[i].Question)
		assert.Equal(t, m.Results[i].Identifiers, restored.Results[i].Identifiers)
		assert.Equal(t, m.Results[i].RowCount, restored.Results[i].RowCount)
		assert.True(t, m.Results[i].Timestamp.Equal(restored.Results[i].Timestamp))
	}
}
