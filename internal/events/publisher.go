package events

import (
	"context"
	"fmt"
	"time"

	rediscommon "github.com/Githafconsulting/Healthcare-Assistant/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 事件类型
const (
	TypeVisitCompleted = "visit.completed"
	TypeSyncCompleted  = "sync.completed"
)

// DefaultMaxLen stream 近似长度上限
const DefaultMaxLen = 1000

// VisitCompleted 就诊完成事件（不含患者身份信息）
type VisitCompleted struct {
	VisitID           string    `json:"visit_id"`
	DangerSignCount   int       `json:"danger_sign_count"`
	Referred          bool      `json:"referred"`
	FollowUpScheduled bool      `json:"follow_up_scheduled"`
	CompletedAt       time.Time `json:"completed_at"`
}

// SyncCompleted 同步周期完成事件
type SyncCompleted struct {
	Uploaded   int       `json:"uploaded"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher 领域事件发布
type Publisher interface {
	PublishVisitCompleted(ctx context.Context, evt VisitCompleted) error
	PublishSyncCompleted(ctx context.Context, evt SyncCompleted) error
}

// StreamPublisher 发布到 Redis Streams
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamPublisher 创建 Redis Streams 发布器
func NewStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: DefaultMaxLen,
		logger: logger,
	}
}

// PublishVisitCompleted 发布就诊完成事件
func (p *StreamPublisher) PublishVisitCompleted(ctx context.Context, evt VisitCompleted) error {
	return p.publish(ctx, TypeVisitCompleted, evt)
}

// PublishSyncCompleted 发布同步完成事件
func (p *StreamPublisher) PublishSyncCompleted(ctx context.Context, evt SyncCompleted) error {
	return p.publish(ctx, TypeSyncCompleted, evt)
}

func (p *StreamPublisher) publish(ctx context.Context, eventType string, data interface{}) error {
	id, err := rediscommon.PublishToStream(ctx, p.client, p.stream, map[string]interface{}{
		"type":      eventType,
		"data":      data,
		"timestamp": time.Now().Unix(),
	}, p.maxLen)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.Debug("Event published",
		zap.String("stream", p.stream),
		zap.String("type", eventType),
		zap.String("message_id", id),
	)
	return nil
}

// NopPublisher 不发布任何事件（未启用 Redis 时使用）
type NopPublisher struct{}

func (NopPublisher) PublishVisitCompleted(context.Context, VisitCompleted) error { return nil }
func (NopPublisher) PublishSyncCompleted(context.Context, SyncCompleted) error   { return nil }
