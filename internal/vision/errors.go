package vision

import "errors"

// Task-level sentinel errors. The orchestrator classifies failures with
// errors.Is against these through wrapped chains.
var (
	// ErrParse marks a model response that did not conform to the task's
	// output schema.
	ErrParse = errors.New("vision: response did not conform to task schema")

	// ErrTimeout marks a task that exceeded its per-call deadline.
	ErrTimeout = errors.New("vision: task deadline exceeded")

	// ErrUnavailable marks an API transport or service failure.
	ErrUnavailable = errors.New("vision: api unavailable")

	// ErrImageBudget marks a request whose image count exceeds the task's
	// configured budget. Callers select images; the engine never truncates
	// silently.
	ErrImageBudget = errors.New("vision: image count exceeds task budget")
)
