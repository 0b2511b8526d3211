package services

import (
	"context"
	"crypto/subtle"
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

type AccountService struct {
	db        *gorm.DB
	adminCode string
	tokens    *utils.TokenManager
	notifier  *notify.Notifier
	audit     *AuditService
	logger    *zap.Logger
	now       func() time.Time
}

type SignUpResult struct {
	Investor *models.InvestorUser
	Token    string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates the user, its verification code, the investor profile and a
// wallet with zero balances in one transaction. The verification email is
// sent after commit and its failure does not undo the sign-up.
func (s *AccountService) SignUp(ctx context.Context, req *models.SignUpRequest, meta RequestMeta) (*SignUpResult, error) {
	email := normalizeEmail(req.Email)
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()

	investor := &models.InvestorUser{
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		VerificationLevel: models.LevelNotVerified,
	}
	var code string

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: email %s", ErrConflict, email)
		}

		user := models.User{
			Email:       email,
			Password:    hash,
			Role:        models.RoleInvestor,
			IsStaff:     s.isAdminCode(req.AdminCode),
			IsActive:    true,
			LastLogin:   &now,
			LastLoginIP: meta.IP,
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		vc, err := models.NewVerificationCode(user.ID, now)
		if err != nil {
			return err
		}
		if err := tx.Create(vc).Error; err != nil {
			return fmt.Errorf("failed to create verification code: %w", err)
		}
		code = vc.Code

		investor.UserID = user.ID
		if err := tx.Omit("User", "Address").Create(investor).Error; err != nil {
			return fmt.Errorf("failed to create investor: %w", err)
		}
		investor.User = user

		wallet := models.Wallet{InvestorID: investor.ID}
		if err := tx.Create(&wallet).Error; err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
		return initBalances(tx, wallet.ID)
	})
	if err != nil {
		return nil, err
	}

	s.sendEmailCode(ctx, email, code)

	token, err := s.tokens.Generate(investor.UserID, email)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, investor.UserID, models.ActionSignUp, meta)
	s.logger.Info("investor signed up", zap.Uint("user_id", investor.UserID), zap.Bool("staff", investor.User.IsStaff))
	return &SignUpResult{Investor: investor, Token: token}, nil
}

func (s *AccountService) isAdminCode(code string) bool {
	if code == "" || s.adminCode == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(s.adminCode)) == 1
}

func (s *AccountService) sendEmailCode(ctx context.Context, email, code string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.EmailCode(sendCtx, email, code); err != nil {
		s.logger.Warn("failed to send verification email", zap.String("email", email), zap.Error(err))
	}
}

// LoadPrincipal resolves a user id to its role-specific principal.
func (s *AccountService) LoadPrincipal(ctx context.Context, userID uint) (models.Principal, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account disabled", ErrForbidden)
	}

	switch user.Role {
	case models.RoleInvestor:
		var investor models.InvestorUser
		if err := db.Preload("Address").Where("user_id = ?", user.ID).First(&investor).Error; err != nil {
			return nil, fmt.Errorf("%w: investor profile: %v", ErrNotFound, err)
		}
		investor.User = user
		return &models.InvestorPrincipal{User: &user, Investor: &investor}, nil
	case models.RoleCompany:
		var cu models.CompanyUser
		if err := db.Preload("Company").Where("user_id = ?", user.ID).First(&cu).Error; err != nil {
			return nil, fmt.Errorf("%w: company profile: %v", ErrNotFound, err)
		}
		cu.User = user
		return &models.CompanyPrincipal{User: &user, CompanyUser: &cu}, nil
	case models.RoleAnalyst:
		var au models.AnalystUser
		if err := db.Where("user_id = ?", user.ID).First(&au).Error; err != nil {
			return nil, fmt.Errorf("%w: analyst profile: %v", ErrNotFound, err)
		}
		au.User = user
		return &models.AnalystPrincipal{User: &user, Analyst: &au}, nil
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrForbidden, user.Role)
}

func (s *AccountService) UpdateProfile(ctx context.Context, investor *models.InvestorUser, req *models.ProfileUpdateRequest, meta RequestMeta) (*models.InvestorUser, error) {
	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Birthday != nil {
		birthday, err := time.Parse("2006-01-02", *req.Birthday)
		if err != nil {
			return nil, fmt.Errorf("%w: birthday must be YYYY-MM-DD", ErrValidation)
		}
		updates["birthday"] = birthday
	}
	if req.Nationality != nil {
		updates["nationality"] = utils.LookupCountry(*req.Nationality).String()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.InvestorUser{}).Where("id = ?", investor.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.TOTPEnabled != nil {
			if err := tx.Model(&models.User{}).Where("id = ?", investor.UserID).
				Update("totp_enabled", *req.TOTPEnabled).Error; err != nil {
				return err
			}
		}
		if req.Address == nil {
			return nil
		}
		addr := models.InvestorUserAddress{
			InvestorID: investor.ID,
			Address1:   req.Address.Address1,
			Address2:   req.Address.Address2,
			City:       req.Address.City,
			State:      req.Address.State,
			Zipcode:    req.Address.Zipcode,
			Country:    utils.LookupCountry(req.Address.Country).String(),
		}
		var existing models.InvestorUserAddress
		err := tx.Where("investor_id = ?", investor.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&addr).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&existing).Updates(map[string]interface{}{
			"address1": addr.Address1,
			"address2": addr.Address2,
			"city":     addr.City,
			"state":    addr.State,
			"zipcode":  addr.Zipcode,
			"country":  addr.Country,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, investor.UserID, models.ActionProfileUpdated, meta)

	var updated models.InvestorUser
	if err := s.db.WithContext(ctx).Preload("User").Preload("Address").First(&updated, investor.ID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateStaffUser creates a company or analyst account. Company accounts are
// linked to an existing company.
func (s *AccountService) CreateStaffUser(ctx context.Context, req *models.CreateStaffUserRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{Email: email, Password: hash, Role: req.Role, IsActive: true}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: email %s", ErrConflict, email)
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		vc, err := models.NewVerificationCode(user.ID, s.now())
		if err != nil {
			return err
		}
		if err := tx.Create(vc).Error; err != nil {
			return err
		}

		switch req.Role {
		case models.RoleCompany:
			var company models.Company
			if err := tx.First(&company, *req.CompanyID).Error; err != nil {
				return fmt.Errorf("%w: company %d", ErrNotFound, *req.CompanyID)
			}
			if err := tx.Model(&models.CompanyUser{}).Where("company_id = ?", company.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: company %d already has an account", ErrConflict, company.ID)
			}
			return tx.Omit("User", "Company").Create(&models.CompanyUser{UserID: user.ID, CompanyID: &company.ID}).Error
		case models.RoleAnalyst:
			return tx.Omit("User").Create(&models.AnalystUser{
				UserID:      user.ID,
				FirstName:   req.FirstName,
				LastName:    req.LastName,
				AnalystType: models.AnalystType(req.AnalystType),
			}).Error
		}
		return fmt.Errorf("%w: role %q", ErrValidation, req.Role)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("staff-created account", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}
