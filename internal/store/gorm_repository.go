/**
 * @description
 * This file provides the gorm implementation of the `Repository` interface. In
 * production gorm runs on top of the service's pgx connection pool; tests run it
 * against an in-memory SQLite database.
 *
 * @dependencies
 * - gorm.io/gorm, gorm.io/driver/postgres: ORM and PostgreSQL dialect.
 * - github.com/jackc/pgx/v5: Connection pool shared with gorm via pgx/stdlib.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormRepository is a concrete implementation of the Repository interface.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new instance of GormRepository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// GormConfig is the gorm configuration shared by every dialect the service opens.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

// OpenPostgres wraps an existing pgx pool in a gorm handle.
func OpenPostgres(pool *pgxpool.Pool) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the tables used by the claim-service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Request{},
		&domain.RequestWatcher{},
		&domain.Fund{},
		&domain.Claim{},
		&domain.RequestClaim{},
	)
}

// FindRequestByID retrieves a request and its watchers.
func (r *GormRepository) FindRequestByID(ctx context.Context, requestID int64) (*domain.Request, error) {
	var request domain.Request
	err := r.db.WithContext(ctx).Preload("Watchers").First(&request, "id = ?", requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

// FindRequestByPlatformAndPlatformID resolves a request from its issue coordinates.
func (r *GormRepository) FindRequestByPlatformAndPlatformID(ctx context.Context, platform domain.Platform, platformID string) (*domain.Request, error) {
	var request domain.Request
	err := r.db.WithContext(ctx).
		Preload("Watchers").
		Where("issue_platform = ? AND issue_platform_id = ?", platform, platformID).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

// SaveRequest persists the request row. Watchers are managed by the request subsystem
// and are never written from here.
func (r *GormRepository) SaveRequest(ctx context.Context, request *domain.Request) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(request).Error
}

// FindClaimByID retrieves a finalized claim.
func (r *GormRepository) FindClaimByID(ctx context.Context, claimID int64) (*domain.Claim, error) {
	var claim domain.Claim
	if err := r.db.WithContext(ctx).First(&claim, "id = ?", claimID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return &claim, nil
}

// FindClaimsByRequestID lists a request's finalized claims in insertion order.
func (r *GormRepository) FindClaimsByRequestID(ctx context.Context, requestID int64) ([]domain.Claim, error) {
	var claims []domain.Claim
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Order("id ASC").Find(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}

// FindClaimByBlockchainEventID looks up the claim materialized from a blockchain event.
func (r *GormRepository) FindClaimByBlockchainEventID(ctx context.Context, blockchainEventID int64) (*domain.Claim, error) {
	var claim domain.Claim
	err := r.db.WithContext(ctx).Where("blockchain_event_id = ?", blockchainEventID).First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return &claim, nil
}

// CreateClaim inserts a finalized claim. A second claim for the same blockchain event
// yields ErrDuplicateClaim.
func (r *GormRepository) CreateClaim(ctx context.Context, claim *domain.Claim) error {
	if err := r.db.WithContext(ctx).Create(claim).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateClaim
		}
		return err
	}
	return nil
}

// FindRequestClaimsByRequestID returns every request claim of a request regardless of status.
func (r *GormRepository) FindRequestClaimsByRequestID(ctx context.Context, requestID int64) ([]domain.RequestClaim, error) {
	var requestClaims []domain.RequestClaim
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Order("id ASC").Find(&requestClaims).Error; err != nil {
		return nil, err
	}
	return requestClaims, nil
}

func (r *GormRepository) FindStalePendingRequestClaims(ctx context.Context, olderThan time.Time) ([]domain.RequestClaim, error) {
	var requestClaims []domain.RequestClaim
	err := r.db.WithContext(ctx).
		Where("status = ? AND flagged = ? AND created_at < ?", domain.ClaimRequestStatusPending, false, olderThan).
		Order("id ASC").
		Find(&requestClaims).Error
	if err != nil {
		return nil, err
	}
	return requestClaims, nil
}

// SaveRequestClaim inserts a new request claim or updates an existing one.
func (r *GormRepository) SaveRequestClaim(ctx context.Context, requestClaim *domain.RequestClaim) error {
	return r.db.WithContext(ctx).Save(requestClaim).Error
}

func (r *GormRepository) MarkRequestClaimProcessed(ctx context.Context, requestClaimID int64) (bool, error) {
	return r.updatePendingRequestClaim(ctx, requestClaimID, "status", domain.ClaimRequestStatusProcessed)
}

func (r *GormRepository) FlagRequestClaim(ctx context.Context, requestClaimID int64) (bool, error) {
	return r.updatePendingRequestClaim(ctx, requestClaimID, "flagged", true)
}

// updatePendingRequestClaim writes a single column, guarded on the row still being
// PENDING, so concurrent writers never overwrite each other's columns.
func (r *GormRepository) updatePendingRequestClaim(ctx context.Context, requestClaimID int64, column string, value interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.RequestClaim{}).
		Where("id = ? AND status = ?", requestClaimID, domain.ClaimRequestStatusPending).
		Update(column, value)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindFundsByRequestID lists the funds contributed to a request.
func (r *GormRepository) FindFundsByRequestID(ctx context.Context, requestID int64) ([]domain.Fund, error) {
	var funds []domain.Fund
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Order("id ASC").Find(&funds).Error; err != nil {
		return nil, err
	}
	return funds, nil
}

func (r *GormRepository) WithinTransaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}
