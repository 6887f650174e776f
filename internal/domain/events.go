package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestClaimedEvent is emitted by the blockchain watcher once a claim transaction for
// a request is confirmed. The payout fields are optional; older producers only send the
// event id and the request.
type RequestClaimedEvent struct {
	BlockchainEventID int64           `json:"blockchain_event_id"`
	RequestDto        RequestDto      `json:"request"`
	Solver            string          `json:"solver,omitempty"`
	Token             string          `json:"token,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	TransactionHash   string          `json:"transaction_hash,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// RequestClaimProcessedEvent is published after pending request claims were moved to
// PROCESSED.
type RequestClaimProcessedEvent struct {
	EventID           string    `json:"event_id"`
	RequestID         int64     `json:"request_id"`
	RequestClaimIDs   []int64   `json:"request_claim_ids"`
	BlockchainEventID int64     `json:"blockchain_event_id"`
	OccurredAt        time.Time `json:"occurred_at"`
}
