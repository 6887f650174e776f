package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fundrequest/claim-service/internal/domain"
)

const claimEventTimeout = 15 * time.Second

// ClaimEventHandler is implemented by ClaimService.
type ClaimEventHandler interface {
	RecordClaim(ctx context.Context, event domain.RequestClaimedEvent) (*domain.Claim, bool, error)
	OnClaimed(ctx context.Context, event domain.RequestClaimedEvent) error
}

// ClaimEventConsumer turns `request.claimed` messages from the blockchain watcher into
// claim lifecycle updates.
type ClaimEventConsumer struct {
	handler ClaimEventHandler
	logger  *slog.Logger
}

func NewClaimEventConsumer(handler ClaimEventHandler, logger *slog.Logger) *ClaimEventConsumer {
	return &ClaimEventConsumer{handler: handler, logger: logger}
}

// claimedEnvelope holds the fields every request claimed event carries. The payout fields
// are decoded separately so a malformed optional field cannot block the claim transition.
type claimedEnvelope struct {
	BlockchainEventID int64 `json:"blockchain_event_id"`
	Request           struct {
		ID int64 `json:"id"`
	} `json:"request"`
}

// HandleMessage returns true when the delivery should be acknowledged. Payloads that can
// never be processed are acknowledged and dropped.
func (c *ClaimEventConsumer) HandleMessage(body []byte) bool {
	var envelope claimedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Error("failed to unmarshal payload", "component", "claim_consumer", "error", err)
		return true
	}

	if envelope.Request.ID <= 0 {
		c.logger.Warn("missing request id in event", "component", "claim_consumer", "blockchain_event_id", envelope.BlockchainEventID)
		return true
	}

	event := domain.RequestClaimedEvent{
		BlockchainEventID: envelope.BlockchainEventID,
		RequestDto:        domain.RequestDto{ID: envelope.Request.ID},
	}
	hasPayout := true
	var full domain.RequestClaimedEvent
	if err := json.Unmarshal(body, &full); err != nil {
		c.logger.Warn("invalid payout details; skipping claim record", "component", "claim_consumer", "request_id", event.RequestDto.ID, "blockchain_event_id", event.BlockchainEventID, "error", err)
		hasPayout = false
	} else {
		event = full
	}

	ctx, cancel := context.WithTimeout(context.Background(), claimEventTimeout)
	defer cancel()

	if hasPayout {
		claim, created, err := c.handler.RecordClaim(ctx, event)
		if err != nil {
			c.logger.Error("failed to record claim", "component", "claim_consumer", "request_id", event.RequestDto.ID, "blockchain_event_id", event.BlockchainEventID, "error", err)
			return false
		}
		if created {
			c.logger.Info("claim recorded", "component", "claim_consumer", "request_id", event.RequestDto.ID, "claim_id", claim.ID, "transaction_hash", claim.TransactionHash)
		}
	}

	if err := c.handler.OnClaimed(ctx, event); err != nil {
		c.logger.Error("processing error", "component", "claim_consumer", "request_id", event.RequestDto.ID, "blockchain_event_id", event.BlockchainEventID, "error", err)
		return false
	}
	return true
}
