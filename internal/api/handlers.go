/**
 * @description
 * This file contains the HTTP handlers for the claim-service's API endpoints. Handlers
 * parse requests, call the claim service and translate its errors into status codes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - github.com/ethereum/go-ethereum/common: Payout address validation.
 * - internal/app, internal/domain: Service errors and models.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundrequest/claim-service/internal/app"
	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ClaimService is the application service behind the handlers.
type ClaimService interface {
	FindOne(ctx context.Context, claimID int64) (domain.ClaimDto, bool, error)
	Claim(ctx context.Context, principal domain.Principal, req domain.UserClaimRequest) (*domain.RequestClaim, error)
	GetAggregatedClaimsForRequest(ctx context.Context, requestID int64) (domain.ClaimsByTransactionAggregate, error)
	ListRequestClaims(ctx context.Context, principal domain.Principal, requestID int64) ([]domain.RequestClaim, error)
}

// RateLimiter counts claim submissions per principal.
type RateLimiter interface {
	CountClaim(ctx context.Context, subject string) (app.ClaimRateLimit, error)
}

// ClaimHandlers holds the dependencies of the claim endpoints.
type ClaimHandlers struct {
	service ClaimService
	limiter RateLimiter
	logger  *slog.Logger
}

// NewClaimHandlers creates the handlers. limiter may be nil to disable rate limiting.
func NewClaimHandlers(service ClaimService, limiter RateLimiter, logger *slog.Logger) *ClaimHandlers {
	return &ClaimHandlers{
		service: service,
		limiter: limiter,
		logger:  logger,
	}
}

type claimRequestBody struct {
	Platform   string `json:"platform"`
	PlatformID string `json:"platform_id"`
	Address    string `json:"address"`
}

// GetClaimHandler returns a single finalized claim.
func (h *ClaimHandlers) GetClaimHandler(w http.ResponseWriter, r *http.Request) {
	claimID, ok := pathID(w, r, "claimID")
	if !ok {
		return
	}

	claim, found, err := h.service.FindOne(r.Context(), claimID)
	if err != nil {
		h.logger.Error("failed to load claim", "component", "api", "claim_id", claimID, "error", err)
		writeError(w, http.StatusInternalServerError, "Unable to load claim")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Claim not found")
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// GetRequestClaimsHandler returns the finalized claims of a request grouped per transaction.
func (h *ClaimHandlers) GetRequestClaimsHandler(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}

	aggregate, err := h.service.GetAggregatedClaimsForRequest(r.Context(), requestID)
	if err != nil {
		h.logger.Error("failed to aggregate claims", "component", "api", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "Unable to load claims")
		return
	}
	writeJSON(w, http.StatusOK, aggregate)
}

// ListRequestClaimsHandler returns the caller's own claim submissions for a request.
func (h *ClaimHandlers) ListRequestClaimsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}

	requestClaims, err := h.service.ListRequestClaims(r.Context(), principal, requestID)
	if errors.Is(err, app.ErrRequestNotFound) {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to list request claims", "component", "api", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "Unable to load request claims")
		return
	}
	writeJSON(w, http.StatusOK, requestClaims)
}

// ClaimHandler submits a claim for the authenticated principal.
func (h *ClaimHandlers) ClaimHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if h.limiter != nil {
		limit, err := h.limiter.CountClaim(r.Context(), principal.Subject)
		if err != nil {
			h.logger.Warn("rate limiter unavailable; allowing claim", "component", "api", "subject", principal.Subject, "error", err)
		} else if limit.Exceeded() {
			w.Header().Set("Retry-After", strconv.Itoa(limit.RetryAfterSeconds()))
			writeError(w, http.StatusTooManyRequests, "Too many claim attempts. Please try again later.")
			return
		}
	}

	var body claimRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	platform, ok := domain.ParsePlatform(body.Platform)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unsupported platform")
		return
	}
	address := strings.TrimSpace(body.Address)
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "Invalid payout address")
		return
	}

	requestClaim, err := h.service.Claim(r.Context(), principal, domain.UserClaimRequest{
		Platform:   platform,
		PlatformID: strings.TrimSpace(body.PlatformID),
		Address:    address,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidClaimRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrRequestNotFound):
			writeError(w, http.StatusNotFound, "Request not found")
		case errors.Is(err, app.ErrUnauthorizedClaim):
			h.logger.Info("claim rejected", "component", "api", "subject", principal.Subject, "reason", err)
			writeError(w, http.StatusForbidden, "You are not allowed to claim this request")
		default:
			h.logger.Error("claim failed", "component", "api", "subject", principal.Subject, "error", err)
			writeError(w, http.StatusInternalServerError, "Unable to process claim")
		}
		return
	}
	writeJSON(w, http.StatusCreated, requestClaim)
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+param)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
