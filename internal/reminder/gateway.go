package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/common/logger"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Gateway 短信发送能力；调用方负责在发送前确认已获同意
type Gateway interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// PlaceholderGateway 未配置真实网关时使用：只记录日志，不发送
type PlaceholderGateway struct {
	logger *zap.Logger
}

// NewPlaceholderGateway 创建占位网关
func NewPlaceholderGateway(logger *zap.Logger) *PlaceholderGateway {
	return &PlaceholderGateway{logger: logger}
}

func (g *PlaceholderGateway) SendSMS(_ context.Context, phone, message string) error {
	g.logger.Warn("Placeholder SMS gateway, message not sent",
		zap.String("phone", logger.MaskPhone(phone)),
		zap.Int("length", len(message)),
	)
	return nil
}

// HTTPGateway 通过 HTTP 短信服务发送
type HTTPGateway struct {
	httpClient *resty.Client
	senderID   string
	logger     *zap.Logger
}

// SMSRequest 短信服务请求体
type SMSRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
}

// NewHTTPGateway 创建 HTTP 短信网关
func NewHTTPGateway(url, apiKey, senderID string, timeout time.Duration, logger *zap.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("apiKey", apiKey)
	}

	return &HTTPGateway{
		httpClient: client,
		senderID:   senderID,
		logger:     logger,
	}
}

func (g *HTTPGateway) SendSMS(ctx context.Context, phone, message string) error {
	resp, err := g.httpClient.R().
		SetContext(ctx).
		SetBody(SMSRequest{To: phone, Message: message, From: g.senderID}).
		Post("")
	if err != nil {
		return fmt.Errorf("failed to call SMS gateway: %w", err)
	}
	if resp.IsError() {
		g.logger.Warn("SMS gateway returned error",
			zap.String("phone", logger.MaskPhone(phone)),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("SMS gateway returned status %d", resp.StatusCode())
	}
	return nil
}

// Publisher MQTT 发布能力（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTGateway 将短信请求发布到 MQTT 主题，由网关设备转发
type MQTTGateway struct {
	publisher Publisher
	topic     string
	senderID  string
}

// NewMQTTGateway 创建 MQTT 短信网关
func NewMQTTGateway(publisher Publisher, topic, senderID string) *MQTTGateway {
	return &MQTTGateway{publisher: publisher, topic: topic, senderID: senderID}
}

func (g *MQTTGateway) SendSMS(_ context.Context, phone, message string) error {
	payload, err := json.Marshal(SMSRequest{To: phone, Message: message, From: g.senderID})
	if err != nil {
		return err
	}
	if err := g.publisher.Publish(g.topic, payload); err != nil {
		return fmt.Errorf("failed to publish SMS request: %w", err)
	}
	return nil
}
