package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// 后端接口路径
const (
	PathPatients   = "/api/v1/patients"
	PathVisits     = "/api/v1/visits"
	PathAuditBatch = "/api/v1/audit/batch"
	PathHealth     = "/api/v1/health"
)

// MaxAuditBatch 单次审计上传上限
const MaxAuditBatch = 100

// Backend 远端记录系统（只上传，后端冲突处理不在设备端考虑范围内）
type Backend interface {
	UploadPatient(ctx context.Context, p models.Patient) error
	UploadVisit(ctx context.Context, v models.Visit) error
	UploadAuditBatch(ctx context.Context, entries []models.AuditEntry) error
	Health(ctx context.Context) error
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status string `json:"status"`
}

// Client 后端 HTTP 客户端（不做自动重试，失败由下一个同步周期处理）
type Client struct {
	httpClient *resty.Client
	tokens     *TokenSource
	logger     *zap.Logger
}

// NewClient 创建后端客户端
func NewClient(baseURL string, timeout time.Duration, tokens *TokenSource, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		tokens:     tokens,
		logger:     logger,
	}
}

// UploadPatient 上传患者（后端按 last-write-wins 覆盖）
func (c *Client) UploadPatient(ctx context.Context, p models.Patient) error {
	return c.post(ctx, PathPatients, NewPatientPayload(p))
}

// UploadVisit 上传就诊
func (c *Client) UploadVisit(ctx context.Context, v models.Visit) error {
	payload, err := NewVisitPayload(v)
	if err != nil {
		return fmt.Errorf("failed to encode visit: %w", err)
	}
	return c.post(ctx, PathVisits, payload)
}

// UploadAuditBatch 批量上传审计（最多 100 条）
func (c *Client) UploadAuditBatch(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) > MaxAuditBatch {
		return fmt.Errorf("audit batch too large: %d > %d", len(entries), MaxAuditBatch)
	}
	return c.post(ctx, PathAuditBatch, NewAuditPayloads(entries))
}

// Health 健康检查，status 为 "ok" 视为在线
func (c *Client) Health(ctx context.Context) error {
	var health HealthResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&health).
		Get(PathHealth)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health check returned status %d", resp.StatusCode())
	}
	if health.Status != "ok" {
		return fmt.Errorf("backend not healthy: %q", health.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	req := c.httpClient.R().
		SetContext(ctx).
		SetBody(body)

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
	}

	resp, err := req.Post(path)
	if err != nil {
		c.logger.Warn("Backend request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.IsError() {
		c.logger.Warn("Backend returned error",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
		)
		return &StatusError{Path: path, StatusCode: resp.StatusCode()}
	}
	return nil
}

// StatusError 后端返回非 2xx
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Path, e.StatusCode)
}

// IsStatus 判断错误是否为指定状态码
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
