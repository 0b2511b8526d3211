package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gullin-backend/models"
)

// CodeService issues and consumes the per-user one-time verification code.
type CodeService struct {
	db  *gorm.DB
	now func() time.Time
}

// Issue replaces the user's code with a fresh one and returns it.
func (s *CodeService) Issue(ctx context.Context, userID uint) (string, error) {
	return issueCode(s.db.WithContext(ctx), userID, s.now())
}

// Consume validates submitted and expires the code in one conditional update,
// so a code can succeed at most once. Failures are ErrCodeExpired or
// ErrCodeMismatch.
func (s *CodeService) Consume(ctx context.Context, userID uint, submitted string) error {
	return consumeCode(s.db.WithContext(ctx), userID, submitted, s.now())
}

func issueCode(db *gorm.DB, userID uint, now time.Time) (string, error) {
	var vc models.VerificationCode
	err := db.Where("user_id = ?", userID).First(&vc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, err := models.NewVerificationCode(userID, now)
		if err != nil {
			return "", err
		}
		if err := db.Create(created).Error; err != nil {
			return "", fmt.Errorf("failed to create verification code: %w", err)
		}
		return created.Code, nil
	}
	if err != nil {
		return "", err
	}

	if err := vc.Refresh(now); err != nil {
		return "", err
	}
	err = db.Model(&models.VerificationCode{}).
		Where("id = ?", vc.ID).
		Updates(map[string]interface{}{"code": vc.Code, "expire_time": vc.ExpireTime}).Error
	if err != nil {
		return "", fmt.Errorf("failed to refresh verification code: %w", err)
	}
	return vc.Code, nil
}

func consumeCode(db *gorm.DB, userID uint, submitted string, now time.Time) error {
	if len(submitted) != models.CodeLength {
		return ErrCodeMismatch
	}

	var consumed models.VerificationCode
	consumed.Expire(now)
	res := db.Model(&models.VerificationCode{}).
		Where("user_id = ? AND code = ? AND expire_time >= ?", userID, submitted, now).
		Update("expire_time", consumed.ExpireTime)
	if res.Error != nil {
		return fmt.Errorf("failed to consume verification code: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var vc models.VerificationCode
	if err := db.Where("user_id = ?", userID).First(&vc).Error; err != nil {
		return ErrCodeMismatch
	}
	if vc.IsExpired(now) {
		return ErrCodeExpired
	}
	return ErrCodeMismatch
}
