package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gullin-backend/config"
	"gullin-backend/models"
	"gullin-backend/utils"
)

// Publisher mirrors audit entries to an external stream.
type Publisher interface {
	PublishUserLog(ctx context.Context, entry *models.UserLog)
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	logger := utils.Logger()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write user log events", zap.Int("message_count", len(messages)), zap.Error(err))
			}
		},
	}
	logger.Info("kafka audit publisher initialized", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.AuditTopic))
	return &KafkaPublisher{writer: writer}
}

// PublishUserLog is fire-and-forget; delivery errors surface in Completion.
func (p *KafkaPublisher) PublishUserLog(ctx context.Context, entry *models.UserLog) {
	value, err := json.Marshal(entry)
	if err != nil {
		utils.Logger().Error("failed to encode user log event", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(entry.UserID), 10)),
		Value: value,
		Time:  entry.Datetime,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		utils.Logger().Warn("failed to queue user log event", zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) PublishUserLog(context.Context, *models.UserLog) {}
func (NoopPublisher) Close() error                                    { return nil }
