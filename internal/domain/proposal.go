package domain

import "time"

// ProposalStatus tracks a trade proposal's lifecycle.
type ProposalStatus string

const (
	ProposalStatusReady    ProposalStatus = "ready_to_execute"
	ProposalStatusExecuted ProposalStatus = "executed"
)

// Proposal is a sized trade recommendation produced by the gate. It is
// immutable once created except for Status: execution by proposal id reuses
// the stored quantity and price verbatim (locked quote).
type Proposal struct {
	ProposalID          string
	MarketID            string
	BetID               string
	Outcome             string // "yes" or "no"
	TokenLabel          string
	Confidence          float64
	Reasoning           string
	RecommendedQuantity int
	RecommendedPrice    float64
	EstimatedValue      float64
	Status              ProposalStatus
	CreatedAt           time.Time
	ExecutedAt          *time.Time
}

// Decision is a recorded trading decision, typically produced by the agent
// workforce for a scanned market and kept for audit.
type Decision struct {
	DecisionID string
	MarketID   string
	BetID      string
	Outcome    string
	Action     string // "execute", "skip"
	Confidence float64
	Reasoning  string
	TradeID    string
	CreatedAt  time.Time
}
