package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gullin-backend/models"
	"gullin-backend/notify"
	"gullin-backend/utils"
)

// FollowupService moves an investor through email, phone and wallet
// verification.
type FollowupService struct {
	db       *gorm.DB
	codes    *CodeService
	notifier *notify.Notifier
	audit    *AuditService
	logger   *zap.Logger
	now      func() time.Time
}

// raiseLevel moves the investor from one level to the next. It affects no
// row when the investor is not at from.
func raiseLevel(tx *gorm.DB, investorID uint, from, to models.VerificationLevel) (bool, error) {
	res := tx.Model(&models.InvestorUser{}).
		Where("id = ? AND verification_level = ?", investorID, from).
		Update("verification_level", to)
	return res.RowsAffected == 1, res.Error
}

// VerifyEmail consumes the code and marks the email verified. Any failure is
// reported as a mismatch.
func (s *FollowupService) VerifyEmail(ctx context.Context, p *models.InvestorPrincipal, code string, meta RequestMeta) (models.VerificationLevel, error) {
	now := s.now()
	level := p.Investor.VerificationLevel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := consumeCode(tx, p.User.ID, code, now); err != nil {
			if errors.Is(err, ErrCodeExpired) || errors.Is(err, ErrCodeMismatch) {
				return ErrCodeMismatch
			}
			return err
		}
		raised, err := raiseLevel(tx, p.Investor.ID, models.LevelNotVerified, models.LevelEmailVerified)
		if err != nil {
			return err
		}
		if raised {
			level = models.LevelEmailVerified
		}
		return nil
	})
	if err != nil {
		return level, err
	}
	s.audit.Record(ctx, p.User.ID, models.ActionEmailVerified, meta)
	return level, nil
}

// SubmitPhone stores the phone number and texts a code to it.
func (s *FollowupService) SubmitPhone(ctx context.Context, p *models.InvestorPrincipal, req *models.PhoneRequest, meta RequestMeta) error {
	if p.Investor.VerificationLevel != models.LevelEmailVerified {
		return fmt.Errorf("%w: email must be verified and phone not yet verified", ErrState)
	}
	callingCode, national, err := utils.NormalizePhone(req.Country, req.Phone)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var code string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.User{}).
			Where("phone_country_code = ? AND phone = ? AND id <> ?", callingCode, national, p.User.ID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: phone number", ErrConflict)
		}
		err = tx.Model(&models.User{}).Where("id = ?", p.User.ID).
			Updates(map[string]interface{}{"phone_country_code": callingCode, "phone": national}).Error
		if err != nil {
			return err
		}
		code, err = issueCode(tx, p.User.ID, s.now())
		return err
	})
	if err != nil {
		return err
	}

	p.User.PhoneCountryCode, p.User.Phone = &callingCode, &national
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.SMSCode(sendCtx, p.User.FullPhone(), code); err != nil {
		s.logger.Warn("failed to send phone code", zap.Uint("user_id", p.User.ID), zap.Error(err))
	}
	s.audit.Record(ctx, p.User.ID, models.ActionPhoneSubmitted, meta)
	return nil
}

// VerifyPhone distinguishes an expired code from a wrong one.
func (s *FollowupService) VerifyPhone(ctx context.Context, p *models.InvestorPrincipal, code string, meta RequestMeta) error {
	if p.Investor.VerificationLevel != models.LevelEmailVerified {
		return fmt.Errorf("%w: phone verification is not pending", ErrState)
	}
	if p.User.FullPhone() == "" {
		return fmt.Errorf("%w: no phone number on file", ErrState)
	}
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := consumeCode(tx, p.User.ID, code, now); err != nil {
			return err
		}
		raised, err := raiseLevel(tx, p.Investor.ID, models.LevelEmailVerified, models.LevelPhoneVerified)
		if err != nil {
			return err
		}
		if !raised {
			return fmt.Errorf("%w: phone already verified", ErrState)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, p.User.ID, models.ActionPhoneVerified, meta)
	return nil
}

// Resend issues a new code on the requested channel.
func (s *FollowupService) Resend(ctx context.Context, p *models.InvestorPrincipal, channel string) error {
	phone := p.User.FullPhone()
	if channel == "phone" && phone == "" {
		return fmt.Errorf("%w: no phone number on file", ErrState)
	}
	code, err := s.codes.Issue(ctx, p.User.ID)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if channel == "phone" {
		err = s.notifier.SMSCode(sendCtx, phone, code)
	} else {
		err = s.notifier.EmailCode(sendCtx, p.User.Email, code)
	}
	if err != nil {
		s.logger.Warn("failed to resend code", zap.Uint("user_id", p.User.ID), zap.String("channel", channel), zap.Error(err))
	}
	return nil
}

// BindWallet sets the wallet address once and raises the investor to
// WALLET_BOUND.
func (s *FollowupService) BindWallet(ctx context.Context, p *models.InvestorPrincipal, req *models.WalletAddressRequest, meta RequestMeta) (*models.Wallet, error) {
	if p.Investor.VerificationLevel < models.LevelPhoneVerified {
		return nil, fmt.Errorf("%w: phone must be verified first", ErrState)
	}
	address := strings.ToLower(strings.TrimSpace(req.WalletAddress))

	var wallet models.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("investor_id = ?", p.Investor.ID).First(&wallet).Error; err != nil {
			return fmt.Errorf("%w: wallet", ErrNotFound)
		}
		if wallet.WalletAddress != nil {
			return fmt.Errorf("%w: wallet address is already set", ErrState)
		}
		var count int64
		if err := tx.Model(&models.Wallet{}).Where("wallet_address = ?", address).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: wallet address", ErrConflict)
		}

		updates := map[string]interface{}{"wallet_address": address}
		if req.CreationBlock != nil {
			updates["creation_block"] = *req.CreationBlock
		}
		res := tx.Model(&models.Wallet{}).Where("id = ? AND wallet_address IS NULL", wallet.ID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: wallet address is already set", ErrState)
		}
		if _, err := raiseLevel(tx, p.Investor.ID, models.LevelPhoneVerified, models.LevelWalletBound); err != nil {
			return err
		}
		wallet.WalletAddress = &address
		wallet.CreationBlock = req.CreationBlock
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, p.User.ID, models.ActionWalletBound, meta)
	return &wallet, nil
}
