package agent

import "fmt"

// SQLGenerationError means the model could not produce a syntactically
// acceptable query within the attempt budget.
type SQLGenerationError struct {
	Attempts int
	LastErr  error
}

func (e *SQLGenerationError) Error() string {
	return fmt.Sprintf("could not generate a valid SQL query after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *SQLGenerationError) Unwrap() error { return e.LastErr }

// SQLExecutionError means every correction attempt was rejected by the
// database.
type SQLExecutionError struct {
	Attempts int
	LastErr  error
}

func (e *SQLExecutionError) Error() string {
	return fmt.Sprintf("database rejected the query after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *SQLExecutionError) Unwrap() error { return e.LastErr }

// DomainResolutionError means the question referenced no known business
// entity and no prior query context was available to anchor it.
type DomainResolutionError struct {
	Question string
}

func (e *DomainResolutionError) Error() string {
	return fmt.Sprintf("could not map question to any known business entity: %q", e.Question)
}
