package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/fundrequest/claim-service/internal/store"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// interleavingRepository runs a callback right after a lookup returns, standing in for
// another writer that commits between the read and the write of a service method.
type interleavingRepository struct {
	*store.GormRepository

	afterStaleLookup        func()
	afterRequestClaimLookup func()
}

func (r *interleavingRepository) FindStalePendingRequestClaims(ctx context.Context, olderThan time.Time) ([]domain.RequestClaim, error) {
	rows, err := r.GormRepository.FindStalePendingRequestClaims(ctx, olderThan)
	if r.afterStaleLookup != nil {
		r.afterStaleLookup()
	}
	return rows, err
}

func (r *interleavingRepository) FindRequestClaimsByRequestID(ctx context.Context, requestID int64) ([]domain.RequestClaim, error) {
	rows, err := r.GormRepository.FindRequestClaimsByRequestID(ctx, requestID)
	if r.afterRequestClaimLookup != nil {
		r.afterRequestClaimLookup()
	}
	return rows, err
}

func newSQLiteRepository(t *testing.T) *store.GormRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), store.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewGormRepository(db)
}

func seedStalePendingClaim(t *testing.T, repo store.Repository, requestID int64) *domain.RequestClaim {
	t.Helper()
	requestClaim := &domain.RequestClaim{
		RequestID: requestID,
		Address:   "0x0000000000000000000000000000000000000abc",
		Solver:    "davyvanroy",
		Status:    domain.ClaimRequestStatusPending,
		CreatedAt: time.Now().UTC().Add(-100 * time.Hour),
	}
	if err := repo.SaveRequestClaim(context.Background(), requestClaim); err != nil {
		t.Fatalf("seed request claim: %v", err)
	}
	return requestClaim
}

func loadRequestClaim(t *testing.T, repo store.Repository, requestID int64) domain.RequestClaim {
	t.Helper()
	rows, err := repo.FindRequestClaimsByRequestID(context.Background(), requestID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one request claim, got %d err=%v", len(rows), err)
	}
	return rows[0]
}

func newReconcileService(repo store.Repository) *ClaimService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClaimService(repo, &claimResolverStub{}, nil, nil, nil, nil, logger, "fundrequest.events")
}

func TestFlagStaleRequestClaims_ProcessedMeanwhileStaysProcessed(t *testing.T) {
	ctx := context.Background()
	base := newSQLiteRepository(t)
	repo := &interleavingRepository{GormRepository: base}
	service := newReconcileService(repo)
	seedStalePendingClaim(t, base, 3124)

	repo.afterStaleLookup = func() {
		if err := newReconcileService(base).OnClaimed(ctx, claimedEvent(3124)); err != nil {
			t.Fatalf("process claims: %v", err)
		}
	}

	flagged, err := service.FlagStaleRequestClaims(ctx, time.Now().UTC().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 0 {
		t.Fatalf("expected nothing flagged, got %d", flagged)
	}
	got := loadRequestClaim(t, base, 3124)
	if got.Status != domain.ClaimRequestStatusProcessed || got.Flagged {
		t.Fatalf("expected PROCESSED unflagged row, got status=%s flagged=%t", got.Status, got.Flagged)
	}
}

func TestOnClaimed_KeepsFlagSetMeanwhile(t *testing.T) {
	ctx := context.Background()
	base := newSQLiteRepository(t)
	repo := &interleavingRepository{GormRepository: base}
	service := newReconcileService(repo)
	seedStalePendingClaim(t, base, 3124)

	repo.afterRequestClaimLookup = func() {
		repo.afterRequestClaimLookup = nil
		if _, err := newReconcileService(base).FlagStaleRequestClaims(ctx, time.Now().UTC().Add(-72*time.Hour)); err != nil {
			t.Fatalf("flag claims: %v", err)
		}
	}

	if err := service.OnClaimed(ctx, claimedEvent(3124)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := loadRequestClaim(t, base, 3124)
	if got.Status != domain.ClaimRequestStatusProcessed || !got.Flagged {
		t.Fatalf("expected PROCESSED row that keeps its review flag, got status=%s flagged=%t", got.Status, got.Flagged)
	}
}
