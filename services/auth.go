package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gullin-backend/geo"
	"gullin-backend/models"
	"gullin-backend/notify"
	"gullin-backend/session"
	"gullin-backend/utils"
)

// AuthService implements password login with a second factor whenever the
// request comes from an IP other than the last successful login, or always
// when the user has turned it on.
type AuthService struct {
	db       *gorm.DB
	codes    *CodeService
	sessions session.Store
	tokens   *utils.TokenManager
	notifier *notify.Notifier
	geo      geo.Locator
	audit    *AuditService
	logger   *zap.Logger
	now      func() time.Time
	// maxAttempts is the number of wrong codes a pending session tolerates.
	maxAttempts int64
}

type LoginResult struct {
	UserID uint
	// Token is set when the login completed.
	Token string
	// SessionID is set when a verification code is required.
	SessionID string
	// CodeChannel is "sms" or "email".
	CodeChannel string
}

func (r *LoginResult) NeedsVerification() bool { return r.SessionID != "" }

func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest, meta RequestMeta) (*LoginResult, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !utils.CheckPasswordHash(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if !user.TOTPEnabled && user.LastLoginIP != "" && user.LastLoginIP == meta.IP {
		if err := s.markLoggedIn(ctx, user.ID, meta.IP); err != nil {
			return nil, err
		}
		s.audit.Record(ctx, user.ID, models.ActionLogin, meta)
		return &LoginResult{UserID: user.ID, Token: token}, nil
	}

	sessionID, err := s.sessions.Create(ctx, session.PendingLogin{UserID: user.ID, PendingToken: token})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	code, err := s.codes.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	channel := s.deliverCode(ctx, &user, code)
	s.sendSecurityAlert(ctx, &user, meta)
	s.audit.Record(ctx, user.ID, models.ActionLoginNeeds2FA, meta)

	return &LoginResult{UserID: user.ID, SessionID: sessionID, CodeChannel: channel}, nil
}

// CompleteLogin checks the code for a pending session and releases its token.
// The session survives a wrong or expired code until maxAttempts failures,
// after which it is dropped and the password step must be repeated.
func (s *AuthService) CompleteLogin(ctx context.Context, sessionID, code string, meta RequestMeta) (*LoginResult, error) {
	pending, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	if err := s.codes.Consume(ctx, pending.UserID, code); err != nil {
		if errors.Is(err, ErrCodeMismatch) || errors.Is(err, ErrCodeExpired) {
			return nil, s.recordFailure(ctx, sessionID, pending.UserID, meta, err)
		}
		return nil, err
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to clear pending login", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.markLoggedIn(ctx, pending.UserID, meta.IP); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, pending.UserID, models.Action2FASuccessful, meta)
	return &LoginResult{UserID: pending.UserID, Token: pending.PendingToken}, nil
}

// Refresh exchanges a still valid token for a new one.
func (s *AuthService) Refresh(token string) (string, *utils.Claims, error) {
	if token == "" {
		return "", nil, fmt.Errorf("%w: no token", ErrValidation)
	}
	refreshed, claims, err := s.tokens.Refresh(token)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return refreshed, claims, nil
}

// TokenUser returns the user of a valid token, or 0.
func (s *AuthService) TokenUser(token string) uint {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return 0
	}
	return claims.UserID
}

// Logout drops any pending login session. Issued tokens stay valid until
// they expire.
func (s *AuthService) Logout(ctx context.Context, sessionID string, userID uint, meta RequestMeta) {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to clear pending login on logout", zap.Error(err))
	}
	if userID != 0 {
		s.audit.Record(ctx, userID, models.ActionLogout, meta)
	}
}

func (s *AuthService) recordFailure(ctx context.Context, sessionID string, userID uint, meta RequestMeta, cause error) error {
	n, err := s.sessions.RecordFailure(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	if n < s.maxAttempts {
		return cause
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to drop locked login session", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.logger.Warn("login session locked after failed codes", zap.Uint("user_id", userID), zap.String("ip", meta.IP), zap.Int64("attempts", n))
	s.audit.Record(ctx, userID, models.Action2FALocked, meta)
	return ErrTooManyAttempts
}

func (s *AuthService) markLoggedIn(ctx context.Context, userID uint, ip string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"last_login": s.now(), "last_login_ip": ip}).Error
}

func (s *AuthService) deliverCode(ctx context.Context, user *models.User, code string) string {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if phone := user.FullPhone(); phone != "" {
		if err := s.notifier.SMSCode(sendCtx, phone, code); err != nil {
			s.logger.Warn("failed to send login code by sms", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		return "sms"
	}
	if err := s.notifier.EmailCode(sendCtx, user.Email, code); err != nil {
		s.logger.Warn("failed to send login code by email", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return "email"
}

func (s *AuthService) sendSecurityAlert(ctx context.Context, user *models.User, meta RequestMeta) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	alert := notify.SecurityAlert{
		IP:       meta.IP,
		Device:   meta.Device,
		Location: s.geo.Locate(meta.IP),
		Time:     s.now(),
	}
	if err := s.notifier.SecurityAlert(sendCtx, user.Email, alert); err != nil {
		s.logger.Warn("failed to send security alert", zap.Uint("user_id", user.ID), zap.Error(err))
	}
}
