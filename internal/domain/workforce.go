package domain

import "context"

// Workforce is the opaque agent collaborator that analyzes market batches
// and returns trading decisions.
type Workforce interface {
	Process(ctx context.Context, task Task) (TaskResult, error)
}

// Task is a batch of filtered market candidates handed to the agent
// workforce for analysis.
type Task struct {
	TaskID      string   `json:"task_id"`
	BatchID     string   `json:"batch_id"`
	Description string   `json:"description"`
	Markets     []Market `json:"markets"`
}

// TaskDecision is one market-level verdict inside a workforce result.
type TaskDecision struct {
	MarketID   string  `json:"market_id"`
	BetID      string  `json:"bet_id,omitempty"`
	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// TaskResult is the workforce's analysis payload for a batch.
type TaskResult struct {
	Status    string         `json:"status"`
	Decisions []TaskDecision `json:"decisions"`
	Error     string         `json:"error,omitempty"`
}
