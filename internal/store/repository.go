/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation the claim-service needs. Business logic depends on this interface only, so
 * the gorm implementation can be swapped for stubs in tests.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/fundrequest/claim-service/internal/domain"
)

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrClaimNotFound   = errors.New("claim not found")
	ErrDuplicateClaim  = errors.New("claim already recorded for blockchain event")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Request methods
	FindRequestByID(ctx context.Context, requestID int64) (*domain.Request, error)
	FindRequestByPlatformAndPlatformID(ctx context.Context, platform domain.Platform, platformID string) (*domain.Request, error)
	SaveRequest(ctx context.Context, request *domain.Request) error

	// Finalized claim methods
	FindClaimByID(ctx context.Context, claimID int64) (*domain.Claim, error)
	FindClaimsByRequestID(ctx context.Context, requestID int64) ([]domain.Claim, error)
	FindClaimByBlockchainEventID(ctx context.Context, blockchainEventID int64) (*domain.Claim, error)
	CreateClaim(ctx context.Context, claim *domain.Claim) error

	// Request claim methods
	FindRequestClaimsByRequestID(ctx context.Context, requestID int64) ([]domain.RequestClaim, error)
	// FindStalePendingRequestClaims returns unflagged PENDING rows created before olderThan.
	FindStalePendingRequestClaims(ctx context.Context, olderThan time.Time) ([]domain.RequestClaim, error)
	SaveRequestClaim(ctx context.Context, requestClaim *domain.RequestClaim) error
	// MarkRequestClaimProcessed moves a PENDING row to PROCESSED. changed is false when the
	// row was no longer PENDING.
	MarkRequestClaimProcessed(ctx context.Context, requestClaimID int64) (changed bool, err error)
	// FlagRequestClaim sets the manual review flag on a row that is still PENDING.
	FlagRequestClaim(ctx context.Context, requestClaimID int64) (changed bool, err error)

	// Fund methods
	FindFundsByRequestID(ctx context.Context, requestID int64) ([]domain.Fund, error)

	// WithinTransaction runs fn against a repository bound to a single transaction.
	// The transaction is rolled back when fn returns an error.
	WithinTransaction(ctx context.Context, fn func(repo Repository) error) error
}
