package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/fieldworks/answerhub/pkg/llm"
	"github.com/fieldworks/answerhub/pkg/memory"
)

// Workflow steps. The engine dispatches on NextStep until it reaches
// StepEnd.
const (
	StepClassify       = "classify"
	StepExecuteSQL     = "execute_sql"
	StepExecuteRAG     = "execute_rag"
	StepExecuteGeneral = "execute_general"
	StepFinalize       = "finalize"
	StepEnd            = "end"
)

// State is the per-invocation workflow record. It is serialized as the
// thread's checkpoint, so every field carries a JSON tag. Exactly zero
// or one of the three result slots is non-empty when finalize runs.
type State struct {
	Question string        `json:"question"`
	Messages []llm.Message `json:"messages"` // truncated conversation context
	NextStep string        `json:"next_step"`

	SQLResult           string       `json:"sql_result,omitempty"`
	RAGResult           string       `json:"rag_result,omitempty"`
	GeneralResult       string       `json:"general_result,omitempty"`
	SQLStructuredResult []memory.Row `json:"sql_structured_result,omitempty"`

	FinalAnswer         string       `json:"final_answer,omitempty"`
	FinalStructuredData []memory.Row `json:"final_structured_data,omitempty"`

	QueryResultMemory *memory.Memory `json:"query_result_memory"`
}

// newState creates the state for a fresh thread.
func newState(memoryCapacity int) *State {
	return &State{QueryResultMemory: memory.New(memoryCapacity)}
}

// decodeState restores a checkpointed state. A missing memory (old or
// hand-edited checkpoint) is replaced with an empty one.
func decodeState(data []byte, memoryCapacity int) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if s.QueryResultMemory == nil {
		s.QueryResultMemory = memory.New(memoryCapacity)
	}
	return &s, nil
}

// encode serializes the state for checkpointing.
func (s *State) encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// reset clears the per-request fields, keeping the query-result memory
// that must survive across turns.
func (s *State) reset(question string) {
	s.Question = question
	s.NextStep = StepClassify
	s.SQLResult = ""
	s.RAGResult = ""
	s.GeneralResult = ""
	s.SQLStructuredResult = nil
	s.FinalAnswer = ""
	s.FinalStructuredData = nil
}
