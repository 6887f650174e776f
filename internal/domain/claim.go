package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimRequestStatus is the status of a RequestClaim. PROCESSED is terminal.
type ClaimRequestStatus string

const (
	ClaimRequestStatusPending   ClaimRequestStatus = "PENDING"
	ClaimRequestStatusProcessed ClaimRequestStatus = "PROCESSED"
)

// IsTerminal reports whether no further transition is possible from s.
func (s ClaimRequestStatus) IsTerminal() bool {
	return s == ClaimRequestStatusProcessed
}

// RequestClaim tracks a claim submission until the payout is confirmed on-chain.
// Flagged marks the row for manual review and is independent of Status.
type RequestClaim struct {
	ID        int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID int64              `gorm:"not null;index" json:"request_id"`
	Address   string             `gorm:"type:varchar(64);not null" json:"address"`
	Solver    string             `gorm:"type:varchar(255);not null" json:"solver"`
	Status    ClaimRequestStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	Flagged   bool               `gorm:"not null;default:false" json:"flagged"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (RequestClaim) TableName() string {
	return "request_claim"
}

// Claim is a finalized reward payout confirmed on-chain.
type Claim struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID         int64           `gorm:"not null;index" json:"request_id"`
	Solver            string          `gorm:"type:varchar(255);not null" json:"solver"`
	Token             string          `gorm:"type:varchar(64);not null" json:"token"`
	Amount            decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"amount"`
	TransactionHash   string          `gorm:"type:varchar(80);not null;index" json:"transaction_hash"`
	BlockchainEventID int64           `gorm:"not null;uniqueIndex" json:"blockchain_event_id"`
	Timestamp         time.Time       `gorm:"not null" json:"timestamp"`
}

func (Claim) TableName() string {
	return "claim"
}

// ClaimDto is the read representation of a Claim.
type ClaimDto struct {
	ID              int64           `json:"id"`
	RequestID       int64           `json:"request_id"`
	Solver          string          `json:"solver"`
	Token           string          `json:"token"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionHash string          `json:"transaction_hash"`
	Timestamp       time.Time       `json:"timestamp"`
}

// NewClaimDto maps a stored claim to its DTO.
func NewClaimDto(c Claim) ClaimDto {
	return ClaimDto{
		ID:              c.ID,
		RequestID:       c.RequestID,
		Solver:          c.Solver,
		Token:           c.Token,
		Amount:          c.Amount,
		TransactionHash: c.TransactionHash,
		Timestamp:       c.Timestamp,
	}
}

// NewClaimDtos maps claims preserving order.
func NewClaimDtos(claims []Claim) []ClaimDto {
	dtos := make([]ClaimDto, 0, len(claims))
	for _, c := range claims {
		dtos = append(dtos, NewClaimDto(c))
	}
	return dtos
}

// TokenTotal is the summed amount of one token.
type TokenTotal struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// ClaimByTransactionAggregate groups the claims paid out by a single transaction.
type ClaimByTransactionAggregate struct {
	TransactionHash string       `json:"transaction_hash"`
	Solver          string       `json:"solver"`
	Timestamp       time.Time    `json:"timestamp"`
	Claims          []ClaimDto   `json:"claims"`
	Totals          []TokenTotal `json:"totals"`
}

// ClaimsByTransactionAggregate is the per-transaction view of a request's claims.
type ClaimsByTransactionAggregate struct {
	Claims []ClaimByTransactionAggregate `json:"claims"`
}

// UserClaimRequest is what a solver submits to claim a request.
type UserClaimRequest struct {
	Platform   Platform `json:"platform"`
	PlatformID string   `json:"platform_id"`
	Address    string   `json:"address"`
}
