package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gullin-backend/events"
	"gullin-backend/models"
)

type AuditService struct {
	db     *gorm.DB
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// Record appends a UserLog entry. A failed write is logged and never fails
// the operation being audited.
func (s *AuditService) Record(ctx context.Context, userID uint, action string, meta RequestMeta) {
	entry := &models.UserLog{
		UserID:   userID,
		Action:   action,
		IP:       meta.IP,
		Device:   meta.Device,
		Datetime: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Error("failed to write user log", zap.Uint("user_id", userID), zap.String("action", action), zap.Error(err))
		return
	}
	s.events.PublishUserLog(ctx, entry)
}

func (s *AuditService) ListForUser(ctx context.Context, userID uint, limit int) ([]models.UserLog, error) {
	var logs []models.UserLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("datetime DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// List returns the newest entries across users, optionally for one user.
func (s *AuditService) List(ctx context.Context, userID uint, limit, offset int) ([]models.UserLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.UserLog{})
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.UserLog
	err := query.Order("datetime DESC, id DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, total, err
}
