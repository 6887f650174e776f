/**
 * @description
 * This file contains the core business logic of the claim-service. The `ClaimService`
 * owns the claim lifecycle: solvers submit a claim for a funded request, the request is
 * moved to CLAIM_REQUESTED and a PENDING request claim is recorded. Once the payout is
 * confirmed on-chain, the blockchain watcher's event moves every pending request claim
 * of that request to PROCESSED and materializes the finalized claim.
 *
 * Key features:
 * - Authorization of claim submissions through the platform claim resolver.
 * - Transactional status flip + request claim creation (nothing is written on failure).
 * - Idempotent handling of redelivered blockchain events.
 * - Read paths for single claims and claims aggregated per transaction.
 *
 * @dependencies
 * - github.com/google/uuid: Event ids for published notifications.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Publishing of `request.claim.processed` notifications.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/fundrequest/claim-service/internal/store"
	"github.com/fundrequest/claim-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

const (
	RoutingKeyRequestClaimed        = "request.claimed"
	RoutingKeyRequestClaimProcessed = "request.claim.processed"
)

var (
	ErrRequestNotFound     = errors.New("request not found")
	ErrUnauthorizedClaim   = errors.New("unauthorized claim")
	ErrInvalidClaimRequest = errors.New("invalid claim request")
)

// ClaimResolver decides whether a principal may claim a request.
type ClaimResolver interface {
	GetUserPlatformUsername(ctx context.Context, principal domain.Principal, platform domain.Platform) (string, bool, error)
	CanClaim(ctx context.Context, principal domain.Principal, request domain.RequestDto) (bool, error)
}

// RequestMapper converts stored requests to their display representation.
type RequestMapper interface {
	Map(ctx context.Context, request *domain.Request, principal *domain.Principal) (domain.RequestDto, error)
}

// ClaimService provides the claim lifecycle operations.
type ClaimService struct {
	repo       store.Repository
	resolver   ClaimResolver
	mapper     RequestMapper
	aggregator *ClaimDtoAggregator
	publisher  rabbitmq.Publisher
	metrics    *Metrics
	logger     *slog.Logger
	exchange   string
}

// NewClaimService creates a new claim service. publisher and metrics may be nil.
func NewClaimService(
	repo store.Repository,
	resolver ClaimResolver,
	mapper RequestMapper,
	aggregator *ClaimDtoAggregator,
	publisher rabbitmq.Publisher,
	metrics *Metrics,
	logger *slog.Logger,
	exchange string,
) *ClaimService {
	if aggregator == nil {
		aggregator = NewClaimDtoAggregator()
	}
	return &ClaimService{
		repo:       repo,
		resolver:   resolver,
		mapper:     mapper,
		aggregator: aggregator,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
		exchange:   exchange,
	}
}

// FindOne returns the finalized claim with the given id. found is false when it does not exist.
func (s *ClaimService) FindOne(ctx context.Context, claimID int64) (domain.ClaimDto, bool, error) {
	claim, err := s.repo.FindClaimByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, store.ErrClaimNotFound) {
			return domain.ClaimDto{}, false, nil
		}
		return domain.ClaimDto{}, false, fmt.Errorf("find claim %d: %w", claimID, err)
	}
	return domain.NewClaimDto(*claim), true, nil
}

// Claim submits a claim on behalf of principal. On success the request is
// CLAIM_REQUESTED and a PENDING request claim exists; on failure nothing is written.
func (s *ClaimService) Claim(ctx context.Context, principal domain.Principal, req domain.UserClaimRequest) (*domain.RequestClaim, error) {
	requestClaim, err := s.claim(ctx, principal, req)
	switch {
	case err == nil:
		s.metrics.claimSubmitted("accepted")
	case errors.Is(err, ErrUnauthorizedClaim):
		s.metrics.claimSubmitted("unauthorized")
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrInvalidClaimRequest):
		s.metrics.claimSubmitted("rejected")
	default:
		s.metrics.claimSubmitted("error")
	}
	return requestClaim, err
}

func (s *ClaimService) claim(ctx context.Context, principal domain.Principal, req domain.UserClaimRequest) (*domain.RequestClaim, error) {
	request, err := s.repo.FindRequestByPlatformAndPlatformID(ctx, req.Platform, req.PlatformID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRequestNotFound, req.Platform, req.PlatformID)
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, fmt.Errorf("%w: payout address is required", ErrInvalidClaimRequest)
	}

	requestDto, err := s.mapper.Map(ctx, request, &principal)
	if err != nil {
		return nil, fmt.Errorf("map request %d: %w", request.ID, err)
	}

	platform := request.IssueInformation.Platform
	solver, ok, err := s.resolver.GetUserPlatformUsername(ctx, principal, platform)
	if err != nil {
		return nil, fmt.Errorf("resolve %s username: %w", platform, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no %s account linked", ErrUnauthorizedClaim, platform)
	}

	allowed, err := s.resolver.CanClaim(ctx, principal, requestDto)
	if err != nil {
		return nil, fmt.Errorf("check claim eligibility for request %d: %w", request.ID, err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s cannot claim request %d", ErrUnauthorizedClaim, solver, request.ID)
	}

	requestClaim := &domain.RequestClaim{
		RequestID: request.ID,
		Address:   req.Address,
		Solver:    solver,
		Status:    domain.ClaimRequestStatusPending,
		Flagged:   false,
	}
	err = s.repo.WithinTransaction(ctx, func(tx store.Repository) error {
		request.Status = domain.RequestStatusClaimRequested
		if err := tx.SaveRequest(ctx, request); err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		if err := tx.SaveRequestClaim(ctx, requestClaim); err != nil {
			return fmt.Errorf("save request claim: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("claim requested", "component", "claim_service", "request_id", request.ID, "request_claim_id", requestClaim.ID, "solver", solver)
	return requestClaim, nil
}

// GetAggregatedClaimsForRequest returns the finalized claims of a request grouped per
// transaction. The result is empty, never nil, when there are no claims.
func (s *ClaimService) GetAggregatedClaimsForRequest(ctx context.Context, requestID int64) (domain.ClaimsByTransactionAggregate, error) {
	claims, err := s.repo.FindClaimsByRequestID(ctx, requestID)
	if err != nil {
		return domain.ClaimsByTransactionAggregate{}, fmt.Errorf("find claims for request %d: %w", requestID, err)
	}
	return s.aggregator.AggregateClaims(domain.NewClaimDtos(claims)), nil
}

// ListRequestClaims returns the request claims of a request submitted by principal, in
// any status. Rows of other solvers are never returned.
func (s *ClaimService) ListRequestClaims(ctx context.Context, principal domain.Principal, requestID int64) ([]domain.RequestClaim, error) {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
		}
		return nil, fmt.Errorf("find request %d: %w", requestID, err)
	}

	own := []domain.RequestClaim{}
	solver, ok, err := s.resolver.GetUserPlatformUsername(ctx, principal, request.IssueInformation.Platform)
	if err != nil {
		return nil, fmt.Errorf("resolve %s username: %w", request.IssueInformation.Platform, err)
	}
	if !ok {
		return own, nil
	}

	requestClaims, err := s.repo.FindRequestClaimsByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("find request claims for request %d: %w", requestID, err)
	}
	for _, requestClaim := range requestClaims {
		if strings.EqualFold(requestClaim.Solver, solver) {
			own = append(own, requestClaim)
		}
	}
	return own, nil
}

// OnClaimed moves every pending request claim of the event's request to PROCESSED.
// Rows are updated one at a time; a redelivered event completes whatever is still pending.
func (s *ClaimService) OnClaimed(ctx context.Context, event domain.RequestClaimedEvent) error {
	requestID := event.RequestDto.ID
	requestClaims, err := s.repo.FindRequestClaimsByRequestID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("find request claims for request %d: %w", requestID, err)
	}

	var processed []int64
	for i := range requestClaims {
		requestClaim := &requestClaims[i]
		if requestClaim.Status.IsTerminal() {
			continue
		}
		changed, err := s.repo.MarkRequestClaimProcessed(ctx, requestClaim.ID)
		if err != nil {
			return fmt.Errorf("mark request claim %d processed: %w", requestClaim.ID, err)
		}
		if !changed {
			continue
		}
		processed = append(processed, requestClaim.ID)
		s.metrics.requestClaimProcessed()
	}

	if len(processed) == 0 {
		return nil
	}

	s.logger.Info("request claims processed", "component", "claim_service", "request_id", requestID, "blockchain_event_id", event.BlockchainEventID, "count", len(processed))
	s.publishProcessed(ctx, domain.RequestClaimProcessedEvent{
		EventID:           uuid.NewString(),
		RequestID:         requestID,
		RequestClaimIDs:   processed,
		BlockchainEventID: event.BlockchainEventID,
		OccurredAt:        time.Now().UTC(),
	})
	return nil
}

// RecordClaim stores the finalized claim carried by a blockchain event. It is idempotent
// per blockchain event id; created reports whether a new row was written. Events without
// payout details are skipped.
func (s *ClaimService) RecordClaim(ctx context.Context, event domain.RequestClaimedEvent) (*domain.Claim, bool, error) {
	if strings.TrimSpace(event.TransactionHash) == "" {
		return nil, false, nil
	}

	existing, err := s.repo.FindClaimByBlockchainEventID(ctx, event.BlockchainEventID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrClaimNotFound) {
		return nil, false, fmt.Errorf("find claim for blockchain event %d: %w", event.BlockchainEventID, err)
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	claim := &domain.Claim{
		RequestID:         event.RequestDto.ID,
		Solver:            event.Solver,
		Token:             event.Token,
		Amount:            event.Amount,
		TransactionHash:   event.TransactionHash,
		BlockchainEventID: event.BlockchainEventID,
		Timestamp:         timestamp,
	}
	if err := s.repo.CreateClaim(ctx, claim); err != nil {
		if errors.Is(err, store.ErrDuplicateClaim) {
			existing, findErr := s.repo.FindClaimByBlockchainEventID(ctx, event.BlockchainEventID)
			if findErr != nil {
				return nil, false, fmt.Errorf("reload claim for blockchain event %d: %w", event.BlockchainEventID, findErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create claim: %w", err)
	}

	s.metrics.claimRecorded()
	return claim, true, nil
}

// FlagStaleRequestClaims marks PENDING request claims created before olderThan for
// manual review and returns how many were flagged. Status is left untouched.
func (s *ClaimService) FlagStaleRequestClaims(ctx context.Context, olderThan time.Time) (int, error) {
	stale, err := s.repo.FindStalePendingRequestClaims(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("find stale request claims: %w", err)
	}

	flagged := 0
	for _, requestClaim := range stale {
		changed, err := s.repo.FlagRequestClaim(ctx, requestClaim.ID)
		if err != nil {
			return flagged, fmt.Errorf("flag request claim %d: %w", requestClaim.ID, err)
		}
		if !changed {
			// Processed since it was loaded.
			continue
		}
		flagged++
		s.metrics.requestClaimFlagged()
	}
	return flagged, nil
}

func (s *ClaimService) publishProcessed(ctx context.Context, event domain.RequestClaimProcessedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.exchange, RoutingKeyRequestClaimProcessed, event); err != nil {
		s.logger.Warn("failed to publish request claim processed event", "component", "claim_service", "request_id", event.RequestID, "error", err)
	}
}
