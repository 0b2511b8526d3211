package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gullin-backend/models"
	"gullin-backend/notify"
	"gullin-backend/utils"
)

type KYCService struct {
	db       *gorm.DB
	audit    *AuditService
	notifier *notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// SubmitID stores an encrypted ID document submission at stage 1 and moves
// the investor to ID_SUBMITTED. Only a WALLET_BOUND investor may submit.
func (s *KYCService) SubmitID(ctx context.Context, p *models.InvestorPrincipal, req *models.UploadIDRequest, meta RequestMeta) (*models.IDVerification, error) {
	if p.Investor.VerificationLevel != models.LevelWalletBound {
		return nil, fmt.Errorf("%w: ID can only be submitted after binding a wallet and before verification", ErrState)
	}
	if p.Investor.Birthday == nil || p.Investor.Address == nil {
		return nil, fmt.Errorf("%w: birthday and address are required before ID verification", ErrValidation)
	}

	tid := uuid.NewString()
	images := make([]string, 3)
	for i, raw := range []string{req.Front, req.Back, req.Selfie} {
		enc, err := utils.EncryptSensitiveData(raw, imageLabel(tid, i))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt document: %w", err)
		}
		images[i] = enc
	}

	verification := &models.IDVerification{
		InvestorID: p.Investor.ID,
		DocType:    req.OfficialIDType,
		DocCountry: utils.LookupCountry(req.Nationality).String(),
		FrontImage: images[0],
		BackImage:  images[1],
		Selfie:     images[2],
		TID:        tid,
		Stage:      models.StageSubmitted,
		State:      models.StatePending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(verification).Error; err != nil {
			return err
		}
		res := tx.Model(&models.InvestorUser{}).
			Where("id = ? AND verification_level = ?", p.Investor.ID, models.LevelWalletBound).
			Updates(map[string]interface{}{
				"verification_level": models.LevelIDSubmitted,
				"id_verification_id": verification.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: ID already submitted", ErrState)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, p.User.ID, models.ActionIDSubmitted, meta)
	s.logger.Info("id verification submitted", zap.Uint("investor_id", p.Investor.ID), zap.String("tid", verification.TID))
	return verification, nil
}

// SubmitAIV stores accredited-investor evidence for staff review.
func (s *KYCService) SubmitAIV(ctx context.Context, p *models.InvestorPrincipal, req *models.UploadAIVRequest, meta RequestMeta) (*models.InvestorVerification, error) {
	if p.Investor.VerificationLevel != models.LevelIDVerified {
		return nil, fmt.Errorf("%w: identity must be verified first", ErrState)
	}
	doc1, err := utils.EncryptSensitiveData(req.Document1, aivLabel(p.Investor.ID, 1))
	if err != nil {
		return nil, err
	}
	doc2, err := utils.EncryptSensitiveData(req.Document2, aivLabel(p.Investor.ID, 2))
	if err != nil {
		return nil, err
	}
	aiv := &models.InvestorVerification{
		InvestorID: p.Investor.ID,
		DocType:    req.DocType,
		Document1:  doc1,
		Document2:  doc2,
		Decision:   models.AIVPending,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(aiv).Error; err != nil {
			return err
		}
		res := tx.Model(&models.InvestorUser{}).
			Where("id = ? AND verification_level = ?", p.Investor.ID, models.LevelIDVerified).
			Updates(map[string]interface{}{
				"verification_level":                  models.LevelAIVProcessing,
				"accredited_investor_verification_id": aiv.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: accreditation already submitted", ErrState)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, p.User.ID, models.ActionAIVSubmitted, meta)
	return aiv, nil
}

// DecideAIV records the staff decision on the investor's pending
// accreditation. Approval moves the investor to AIV_VERIFIED, rejection back
// to ID_VERIFIED. Documents are dropped either way.
func (s *KYCService) DecideAIV(ctx context.Context, investorID uint, approved bool) (*models.InvestorVerification, error) {
	var aiv models.InvestorVerification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("investor_id = ? AND decision = ?", investorID, models.AIVPending).
			Order("id DESC").First(&aiv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no pending accreditation for investor %d", ErrNotFound, investorID)
		}
		if err != nil {
			return err
		}

		decision, level := models.AIVRejected, models.LevelIDVerified
		if approved {
			decision, level = models.AIVApproved, models.LevelAIVVerified
		}
		res := tx.Model(&models.InvestorVerification{}).
			Where("id = ? AND decision = ?", aiv.ID, models.AIVPending).
			Updates(map[string]interface{}{"decision": decision, "document1": "", "document2": ""})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: accreditation already decided", ErrState)
		}
		if _, err := raiseLevel(tx, investorID, models.LevelAIVProcessing, level); err != nil {
			return err
		}
		aiv.Decision, aiv.Document1, aiv.Document2 = decision, "", ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &aiv, nil
}

// Review sets the local decision on a submitted verification. The poller acts
// on it in its next cycle.
func (s *KYCService) Review(ctx context.Context, id uint, state models.ProviderState) error {
	res := s.db.WithContext(ctx).Model(&models.IDVerification{}).
		Where("id = ? AND stage = ? AND processed = ?", id, models.StageSubmitted, false).
		Update("state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.IDVerification{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: id verification %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: id verification %d is no longer awaiting review", ErrState, id)
}

// Decide resolves a verification that was sent to manual review. Approval
// moves the investor to ID_VERIFIED, denial back to WALLET_BOUND so they can
// resubmit. The investor is told the result by email.
func (s *KYCService) Decide(ctx context.Context, id uint, approved bool) (*models.IDVerification, error) {
	state, level := models.StateDenied, models.LevelWalletBound
	if approved {
		state, level = models.StateAccepted, models.LevelIDVerified
	}

	var v models.IDVerification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&v, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: id verification %d", ErrNotFound, id)
			}
			return err
		}
		res := tx.Model(&models.IDVerification{}).
			Where("id = ? AND processed = ? AND state = ?", id, true, models.StateReview).
			Update("state", state)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id verification %d is not awaiting a manual decision", ErrState, id)
		}
		moved, err := raiseLevel(tx, v.InvestorID, models.LevelIDSubmitted, level)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: investor %d is no longer awaiting ID verification", ErrState, v.InvestorID)
		}
		v.State = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	var investor models.InvestorUser
	if err := s.db.WithContext(ctx).Preload("User").First(&investor, v.InvestorID).Error; err != nil {
		s.logger.Warn("decided verification but could not load investor", zap.Uint("id", id), zap.Error(err))
		return &v, nil
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	send := s.notifier.KYCFailed
	if approved {
		send = s.notifier.KYCSuccess
	}
	if err := send(sendCtx, investor.User.Email, investor.FullName()); err != nil {
		s.logger.Warn("verification result email failed", zap.Uint("id", id), zap.Error(err))
	}
	s.logger.Info("manual verification decided", zap.Uint("id", id), zap.String("tid", v.TID), zap.Bool("approved", approved))
	return &v, nil
}

func (s *KYCService) ListVerifications(ctx context.Context, processed *bool, limit, offset int) ([]models.IDVerification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.IDVerification{})
	if processed != nil {
		query = query.Where("processed = ?", *processed)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.IDVerification
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// imageLabel binds an encrypted ID image to its record and slot
// (0 front, 1 back, 2 selfie).
func imageLabel(tid string, slot int) string {
	return fmt.Sprintf("id:%s:%d", tid, slot)
}

func aivLabel(investorID uint, n int) string {
	return fmt.Sprintf("aiv:%d:%d", investorID, n)
}
