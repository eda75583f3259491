package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrBalanceChanged signals that the conditioned debit lost the race: the
	// balance moved between the read and the write.
	ErrBalanceChanged = errors.New("authorization: credit balance changed concurrently")
	// ErrInsufficientCredits signals the balance does not cover the cost.
	ErrInsufficientCredits = errors.New("authorization: insufficient credits")
)

// CreditStore performs credit accounting against the users table. Debits use
// an optimistic compare-and-write on the balance itself instead of row locks,
// so concurrent submissions for one account cannot double-spend: at most one
// conditioned write succeeds, the loser observes ErrBalanceChanged.
type CreditStore struct {
	db *gorm.DB
}

// NewCreditStore wraps an existing GORM handle. The handle may come from a
// different module; all operations target the users table owned here.
func NewCreditStore(db *gorm.DB) *CreditStore {
	if db == nil {
		return nil
	}
	return &CreditStore{db: db}
}

// Balance reads the current credit balance for the given user.
func (s *CreditStore) Balance(ctx context.Context, userID uint64) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("authorization: credit store not initialized")
	}

	var user User
	if err := s.db.WithContext(ctx).Select("id", "credits").Where("id = ?", userID).First(&user).Error; err != nil {
		return 0, err
	}
	return user.Credits, nil
}

// DebitIfUnchanged subtracts cost from the balance, conditioned on the balance
// still equalling expected (the value the caller read). Callers must verify
// expected >= cost before calling; a conditioned write that matches zero rows
// is reported as ErrBalanceChanged.
func (s *CreditStore) DebitIfUnchanged(ctx context.Context, userID uint64, cost, expected int) error {
	if s == nil || s.db == nil {
		return errors.New("authorization: credit store not initialized")
	}
	if cost <= 0 {
		return fmt.Errorf("authorization: debit cost must be positive, got %d", cost)
	}
	if expected < cost {
		return ErrInsufficientCredits
	}

	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ? AND credits = ?", userID, expected).
		Updates(map[string]interface{}{
			"credits":    gorm.Expr("credits - ?", cost),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("authorization: debit credits: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBalanceChanged
	}
	return nil
}

// Grant adds credits to an account. Used by administrative top-ups.
func (s *CreditStore) Grant(ctx context.Context, userID uint64, amount int) error {
	if s == nil || s.db == nil {
		return errors.New("authorization: credit store not initialized")
	}
	if amount <= 0 {
		return fmt.Errorf("authorization: grant amount must be positive, got %d", amount)
	}

	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"credits":    gorm.Expr("credits + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("authorization: grant credits: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetTier switches an account between the free and pro tiers.
func (s *CreditStore) SetTier(ctx context.Context, userID uint64, tier string) error {
	if s == nil || s.db == nil {
		return errors.New("authorization: credit store not initialized")
	}
	if tier != TierFree && tier != TierPro {
		return fmt.Errorf("authorization: unknown tier %q", tier)
	}

	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"tier":       tier,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("authorization: set tier: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TierOf reads the current tier for the given user.
func (s *CreditStore) TierOf(ctx context.Context, userID uint64) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("authorization: credit store not initialized")
	}

	var user User
	if err := s.db.WithContext(ctx).Select("id", "tier").Where("id = ?", userID).First(&user).Error; err != nil {
		return "", err
	}
	return user.Tier, nil
}
