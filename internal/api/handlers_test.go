package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fundrequest/claim-service/internal/app"
	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/shopspring/decimal"
)

type claimServiceStub struct {
	claim     *domain.ClaimDto
	aggregate domain.ClaimsByTransactionAggregate
	rows      []domain.RequestClaim
	claimErr  error
	err       error

	submitted []domain.UserClaimRequest
	listedFor string
}

func (s *claimServiceStub) FindOne(ctx context.Context, claimID int64) (domain.ClaimDto, bool, error) {
	if s.err != nil {
		return domain.ClaimDto{}, false, s.err
	}
	if s.claim == nil || s.claim.ID != claimID {
		return domain.ClaimDto{}, false, nil
	}
	return *s.claim, true, nil
}

func (s *claimServiceStub) Claim(ctx context.Context, principal domain.Principal, req domain.UserClaimRequest) (*domain.RequestClaim, error) {
	s.submitted = append(s.submitted, req)
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return &domain.RequestClaim{ID: 9, RequestID: 3124, Address: req.Address, Solver: "davyvanroy", Status: domain.ClaimRequestStatusPending}, nil
}

func (s *claimServiceStub) GetAggregatedClaimsForRequest(ctx context.Context, requestID int64) (domain.ClaimsByTransactionAggregate, error) {
	return s.aggregate, s.err
}

func (s *claimServiceStub) ListRequestClaims(ctx context.Context, principal domain.Principal, requestID int64) ([]domain.RequestClaim, error) {
	s.listedFor = principal.Subject
	return s.rows, s.err
}

type rateLimiterStub struct {
	count int
	err   error
}

func (s *rateLimiterStub) CountClaim(ctx context.Context, subject string) (app.ClaimRateLimit, error) {
	return app.ClaimRateLimit{Count: s.count, Limit: 5, RetryAfter: 42 * time.Second}, s.err
}

// fakeAuth authenticates every request as a principal with a linked GitHub login.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := domain.Principal{Subject: "user-1", PlatformUsernames: map[domain.Platform]string{domain.PlatformGithub: "davyvanroy"}}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
	})
}

func newTestRouter(service ClaimService, limiter RateLimiter) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := NewClaimHandlers(service, limiter, logger)
	return ClaimRoutes(handlers, RouterOptions{
		Auth:    fakeAuth,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("metrics")) }),
	})
}

func doRequest(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const validClaimBody = `{"platform":"github","platform_id":"FundRequest|FR|area51|FR|5","address":"0x00000000000000000000000000000000000000aB"}`

func TestGetClaimHandler(t *testing.T) {
	service := &claimServiceStub{claim: &domain.ClaimDto{ID: 697, Solver: "davyvanroy", Amount: decimal.RequireFromString("1000")}}
	router := newTestRouter(service, nil)

	rec := doRequest(router, http.MethodGet, "/claims/697", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var dto domain.ClaimDto
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dto.ID != 697 || !dto.Amount.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("unexpected claim %+v", dto)
	}

	if rec := doRequest(router, http.MethodGet, "/claims/1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doRequest(router, http.MethodGet, "/claims/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetClaimHandler_StorageFailure(t *testing.T) {
	router := newTestRouter(&claimServiceStub{err: errors.New("db down")}, nil)

	if rec := doRequest(router, http.MethodGet, "/claims/697", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGetRequestClaimsHandler_EmptyAggregate(t *testing.T) {
	service := &claimServiceStub{aggregate: domain.ClaimsByTransactionAggregate{Claims: []domain.ClaimByTransactionAggregate{}}}
	router := newTestRouter(service, nil)

	rec := doRequest(router, http.MethodGet, "/requests/3124/claims", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"claims":[]}` {
		t.Fatalf("expected empty claims array, got %s", body)
	}
}

func TestListRequestClaimsHandler(t *testing.T) {
	service := &claimServiceStub{rows: []domain.RequestClaim{{ID: 1, RequestID: 3124, Status: domain.ClaimRequestStatusPending}}}
	router := newTestRouter(service, nil)

	rec := doRequest(router, http.MethodGet, "/requests/3124/request-claims", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []domain.RequestClaim
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil || len(rows) != 1 {
		t.Fatalf("unexpected body %s err=%v", rec.Body.String(), err)
	}
	if service.listedFor != "user-1" {
		t.Fatalf("expected rows to be listed for the caller, got %q", service.listedFor)
	}
}

func TestListRequestClaimsHandler_UnknownRequest(t *testing.T) {
	service := &claimServiceStub{err: fmt.Errorf("%w: 42", app.ErrRequestNotFound)}
	router := newTestRouter(service, nil)

	if rec := doRequest(router, http.MethodGet, "/requests/42/request-claims", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestClaimHandler_Created(t *testing.T) {
	service := &claimServiceStub{}
	router := newTestRouter(service, &rateLimiterStub{count: 1})

	rec := doRequest(router, http.MethodPost, "/claims", validClaimBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(service.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(service.submitted))
	}
	submitted := service.submitted[0]
	if submitted.Platform != domain.PlatformGithub || submitted.PlatformID != "FundRequest|FR|area51|FR|5" {
		t.Fatalf("unexpected submission %+v", submitted)
	}
	var created domain.RequestClaim
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != domain.ClaimRequestStatusPending || created.Address != "0x00000000000000000000000000000000000000aB" {
		t.Fatalf("unexpected response %+v", created)
	}
}

func TestClaimHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		claimErr error
		want     int
	}{
		{name: "malformed body", body: `{`, want: http.StatusBadRequest},
		{name: "unknown platform", body: `{"platform":"gitlab","platform_id":"x","address":"0x00000000000000000000000000000000000000ab"}`, want: http.StatusBadRequest},
		{name: "invalid address", body: `{"platform":"GITHUB","platform_id":"x","address":"not-an-address"}`, want: http.StatusBadRequest},
		{name: "invalid claim request", body: validClaimBody, claimErr: fmt.Errorf("%w: payout address is required", app.ErrInvalidClaimRequest), want: http.StatusBadRequest},
		{name: "request not found", body: validClaimBody, claimErr: fmt.Errorf("%w: GITHUB/x", app.ErrRequestNotFound), want: http.StatusNotFound},
		{name: "unauthorized", body: validClaimBody, claimErr: fmt.Errorf("%w: not the solver", app.ErrUnauthorizedClaim), want: http.StatusForbidden},
		{name: "internal", body: validClaimBody, claimErr: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&claimServiceStub{claimErr: tt.claimErr}, nil)
			if rec := doRequest(router, http.MethodPost, "/claims", tt.body); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestClaimHandler_RateLimited(t *testing.T) {
	service := &claimServiceStub{}
	router := newTestRouter(service, &rateLimiterStub{count: 6})

	rec := doRequest(router, http.MethodPost, "/claims", validClaimBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "42" {
		t.Fatalf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}
	if len(service.submitted) != 0 {
		t.Fatal("expected rate limited claim not to reach the service")
	}
}

func TestClaimHandler_LimiterFailureFailsOpen(t *testing.T) {
	service := &claimServiceStub{}
	router := newTestRouter(service, &rateLimiterStub{err: errors.New("redis down")})

	if rec := doRequest(router, http.MethodPost, "/claims", validClaimBody); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestClaimHandler_RequiresAuthentication(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := ClaimRoutes(NewClaimHandlers(&claimServiceStub{}, nil, logger), RouterOptions{})

	if rec := doRequest(router, http.MethodPost, "/claims", validClaimBody); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(&claimServiceStub{}, nil)

	if rec := doRequest(router, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
	if rec := doRequest(router, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || rec.Body.String() != "metrics" {
		t.Fatalf("expected metrics handler to be mounted, got %d %q", rec.Code, rec.Body.String())
	}
}
