// Package classifier makes the three-way routing decision: structured
// database query (sql), documentation lookup (rag), or general LLM
// (general). The decision rules live in the prompt; the model is asked
// for a single word and anything unparseable defaults to general.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fieldworks/answerhub/pkg/events"
	"github.com/fieldworks/answerhub/pkg/graph"
	"github.com/fieldworks/answerhub/pkg/llm"
)

// recentWindow is how many trailing messages of dialogue the classifier
// sees.
const recentWindow = 4

// Input is one routing decision request.
type Input struct {
	Question      string
	Messages      []llm.Message // full truncated history; only the tail is used
	MemoryContext string        // formatted query-result memory, may be empty
}

// Classifier routes questions using the business-entity vocabulary and
// recent dialogue.
type Classifier struct {
	provider    llm.Provider
	vocab       *graph.Vocabulary
	temperature float32
}

// New builds a classifier. temperature should be the orchestrator
// temperature (typically 0 for deterministic routing).
func New(provider llm.Provider, vocab *graph.Vocabulary, temperature float32) *Classifier {
	return &Classifier{provider: provider, vocab: vocab, temperature: temperature}
}

const rulesPrompt = `You route questions to one of three backends. Reply with exactly one word: SQL, RAG, or GENERAL.

Rules, applied in order:
1. The question references a business entity by name (see vocabulary) and is NOT phrased "how do I", "how to", or "steps to": reply SQL.
2. The question asks how to use the system ("how do I ...", "how to ...", "steps to ...", "what permissions ...") : reply RAG.
3. The previous assistant reply was a database result and the question refers back to it ("that", "those", "the above", "from before") or asks for more columns or related data about an unnamed subject: reply SQL.
4. Otherwise: reply GENERAL.`

// Classify returns one of events.RouteSQL, events.RouteRAG,
// events.RouteGeneral. A reply outside that set is a logged anomaly and
// defaults to general; a provider failure is returned to the caller.
func (c *Classifier) Classify(ctx context.Context, in Input) (string, error) {
	reply, err := c.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System(rulesPrompt),
			llm.User(c.buildPrompt(in)),
		},
		Temperature: c.temperature,
		MaxTokens:   8,
	})
	if err != nil {
		return "", fmt.Errorf("classification call: %w", err)
	}

	route, ok := parseRoute(reply)
	if !ok {
		slog.Warn("Classifier returned unexpected reply, defaulting to general",
			"reply", truncate(reply, 80), "question", truncate(in.Question, 80))
		return events.RouteGeneral, nil
	}
	return route, nil
}

func (c *Classifier) buildPrompt(in Input) string {
	var b strings.Builder

	entities := c.vocab.Entities()
	b.WriteString("Business entity vocabulary: ")
	b.WriteString(strings.Join(entities, ", "))
	b.WriteString("\n")

	for i, entity := range entities {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "Example: \"How many %ss are there?\" -> SQL\n", entity)
		fmt.Fprintf(&b, "Example: \"How do I create a %s?\" -> RAG\n", entity)
	}

	if recent := tail(in.Messages, recentWindow); len(recent) > 0 {
		b.WriteString("\nRecent dialogue:\n")
		for _, msg := range recent {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	if in.MemoryContext != "" {
		b.WriteString("\n")
		b.WriteString(in.MemoryContext)
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(in.Question)
	b.WriteString("\nAnswer with one word: SQL, RAG, or GENERAL.")
	return b.String()
}

// parseRoute maps a model reply to a route, tolerating case, whitespace
// and trailing punctuation. Replies that are not exactly one known word
// are rejected.
func parseRoute(reply string) (string, bool) {
	word := strings.ToUpper(strings.Trim(strings.TrimSpace(reply), ".!\"' "))
	switch word {
	case "SQL":
		return events.RouteSQL, true
	case "RAG":
		return events.RouteRAG, true
	case "GENERAL":
		return events.RouteGeneral, true
	default:
		return "", false
	}
}

func tail(msgs []llm.Message, n int) []llm.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
