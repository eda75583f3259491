package authorization

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"gorm.io/gorm"
)

// InviteCode gates registration. A code stays redeemable while it is active
// and current_uses < max_uses; redemption bumps the counter atomically.
type InviteCode struct {
	ID          uint64 `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;size:32;not null"`
	MaxUses     int    `gorm:"not null;default:1"`
	CurrentUses int    `gorm:"not null;default:0"`
	IsActive    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the storage table for invite codes.
func (InviteCode) TableName() string {
	return "invite_codes"
}

// InviteStore manages invite code issuance and redemption.
type InviteStore struct {
	db *gorm.DB
}

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Redeem consumes one use of the given code. The counter increment is
// conditioned on the code still being redeemable, so two racing registrations
// cannot overshoot max_uses.
func (s *InviteStore) Redeem(ctx context.Context, code string) error {
	if s == nil || s.db == nil {
		return errors.New("authorization: invite store not initialized")
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return ErrInvalidInviteCode
	}

	result := s.db.WithContext(ctx).
		Model(&InviteCode{}).
		Where("code = ? AND is_active = ? AND current_uses < max_uses", normalized, true).
		Updates(map[string]interface{}{
			"current_uses": gorm.Expr("current_uses + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("authorization: redeem invite code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidInviteCode
	}
	return nil
}

// Create issues a fresh invite code with the given number of uses.
func (s *InviteStore) Create(ctx context.Context, maxUses int) (*InviteCode, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("authorization: invite store not initialized")
	}
	if maxUses <= 0 {
		maxUses = 1
	}

	code, err := generateInviteCode(10)
	if err != nil {
		return nil, fmt.Errorf("authorization: generate invite code: %w", err)
	}

	invite := &InviteCode{Code: code, MaxUses: maxUses, IsActive: true}
	if err := s.db.WithContext(ctx).Create(invite).Error; err != nil {
		return nil, fmt.Errorf("authorization: create invite code: %w", err)
	}
	return invite, nil
}

// List returns all invite codes, newest first.
func (s *InviteStore) List(ctx context.Context) ([]InviteCode, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("authorization: invite store not initialized")
	}

	var codes []InviteCode
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func generateInviteCode(length int) (string, error) {
	var builder strings.Builder
	for i := 0; i < length; i++ {
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(inviteAlphabet))))
		if err != nil {
			return "", err
		}
		builder.WriteByte(inviteAlphabet[index.Int64()])
	}
	return builder.String(), nil
}
