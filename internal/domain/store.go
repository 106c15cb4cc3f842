package domain

import (
	"context"
	"time"
)

// TradeFilter narrows List queries over trade history.
type TradeFilter struct {
	Limit  int
	Status TradeStatus
	Asset  string
}

// TradeStore persists trade results. Pending trades live in a separate set
// until resolved; history is append/lookup-only.
type TradeStore interface {
	Insert(ctx context.Context, t TradeResult) error
	Update(ctx context.Context, t TradeResult) error
	GetByID(ctx context.Context, tradeID string) (TradeResult, error)
	// List returns resolved trades newest-first, filtered.
	List(ctx context.Context, f TradeFilter) ([]TradeResult, error)
	ListPending(ctx context.Context) ([]TradeResult, error)
	// ListBefore returns resolved trades with a timestamp strictly before the
	// cutoff, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]TradeResult, error)
}

// ProposalStore persists trade proposals.
type ProposalStore interface {
	Create(ctx context.Context, p Proposal) error
	GetByID(ctx context.Context, proposalID string) (Proposal, error)
	// MarkExecuted transitions a ready proposal to executed. It returns
	// ErrAlreadyExecuted when the proposal was executed before, making
	// execute-by-proposal idempotency-safe.
	MarkExecuted(ctx context.Context, proposalID string, at time.Time) error
	List(ctx context.Context, limit int) ([]Proposal, error)
}

// DecisionStore persists recorded trading decisions.
type DecisionStore interface {
	Insert(ctx context.Context, d Decision) error
	GetByID(ctx context.Context, decisionID string) (Decision, error)
	List(ctx context.Context, limit int) ([]Decision, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}

// SignalBus provides pub/sub fan-out of serialized events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// Archiver exports aged records to cold storage. Each method returns the
// number of records archived.
type Archiver interface {
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
	ArchiveNotifications(ctx context.Context, before time.Time) (int64, error)
}
