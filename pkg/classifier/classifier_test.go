package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/answerhub/pkg/events"
	"github.com/fieldworks/answerhub/pkg/graph"
	"github.com/fieldworks/answerhub/pkg/llm"
)

type stubProvider struct {
	reply string
	err   error
	calls []llm.Request
}

func (s *stubProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls = append(s.calls, req)
	return s.reply, s.err
}

func (s *stubProvider) CompleteStream(context.Context, llm.Request) (<-chan llm.Chunk, <-chan error) {
	chunks := make(chan llm.Chunk)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func (s *stubProvider) Embed(context.Context, string) ([]float32, error) { return nil, nil }

func testVocab() *graph.Vocabulary {
	g := &graph.JoinGraph{Tables: map[string]graph.Table{
		"technician": {Columns: []string{"id", "name"}},
		"workOrder":  {Columns: []string{"id", "status"}},
	}}
	return graph.NewVocabulary(g, 0)
}

func TestClassifyParsesReplies(t *testing.T) {
	tests := []struct {
		reply string
		want  string
	}{
		{"SQL", events.RouteSQL},
		{"sql", events.RouteSQL},
		{" SQL.\n", events.RouteSQL},
		{"RAG", events.RouteRAG},
		{"GENERAL", events.RouteGeneral},
		{"\"general\"", events.RouteGeneral},
	}
	for _, tc := range tests {
		t.Run(tc.reply, func(t *testing.T) {
			c := New(&stubProvider{reply: tc.reply}, testVocab(), 0)
			route, err := c.Classify(context.Background(), Input{Question: "How many technicians are active?"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, route)
		})
	}
}

func TestClassifyDefaultsToGeneralOnAnomaly(t *testing.T) {
	c := New(&stubProvider{reply: "I think this is a database question."}, testVocab(), 0)
	route, err := c.Classify(context.Background(), Input{Question: "How many technicians?"})
	require.NoError(t, err)
	assert.Equal(t, events.RouteGeneral, route)
}

func TestClassifyPropagatesProviderError(t *testing.T) {
	c := New(&stubProvider{err: errors.New("model not found")}, testVocab(), 0)
	_, err := c.Classify(context.Background(), Input{Question: "How many technicians?"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "model not found")
}

func TestClassifyIsDeterministicForFixedInput(t *testing.T) {
	// Same question, window and vocabulary with a scripted model must
	// yield the same route every time.
	in := Input{
		Question: "How many work orders are open?",
		Messages: []llm.Message{llm.User("hi"), llm.Assistant("hello")},
	}
	for i := 0; i < 5; i++ {
		c := New(&stubProvider{reply: "SQL"}, testVocab(), 0)
		route, err := c.Classify(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, events.RouteSQL, route)
	}
}

func TestPromptCarriesVocabularyDialogueAndMemory(t *testing.T) {
	stub := &stubProvider{reply: "SQL"}
	c := New(stub, testVocab(), 0)

	msgs := []llm.Message{
		llm.User("one"), llm.Assistant("two"),
		llm.User("three"), llm.Assistant("four"),
		llm.User("five"), llm.Assistant("six"),
	}
	_, err := c.Classify(context.Background(), Input{
		Question:      "Show me the questions for that inspection",
		Messages:      msgs,
		MemoryContext: "Recent query results (most recent first):\n   inspectionId: ['abc-123']",
	})
	require.NoError(t, err)

	require.Len(t, stub.calls, 1)
	prompt := stub.calls[0].Messages[len(stub.calls[0].Messages)-1].Content
	assert.Contains(t, prompt, "workOrder, technician")
	assert.Contains(t, prompt, "inspectionId: ['abc-123']")
	assert.Contains(t, prompt, "Show me the questions for that inspection")

	// Only the last four dialogue turns are included.
	assert.NotContains(t, prompt, "user: one")
	assert.NotContains(t, prompt, "assistant: two")
	assert.Contains(t, prompt, "user: three")
	assert.Contains(t, prompt, "assistant: six")
}
