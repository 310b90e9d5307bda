package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/events"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/metrics"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/store"

	"go.uber.org/zap"
)

var (
	// ErrNoConnection 离线，本周期不做任何上传
	ErrNoConnection = errors.New("no connection")
	// ErrSyncInProgress 已有同步周期在运行
	ErrSyncInProgress = errors.New("sync already in progress")
)

// DefaultStatusKey 同步状态缓存键
const DefaultStatusKey = "afya:sync:status"

// Manager 同步管理：依次上传未同步的患者、就诊和一批审计记录
type Manager struct {
	store        *repository.Store
	backend      Backend
	connectivity Connectivity
	logger       *zap.Logger

	kv        store.KV
	statusKey string
	publisher events.Publisher
	metrics   *metrics.Metrics

	auditBatch int
	now        func() time.Time

	running sync.Mutex
}

// Option 管理器选项
type Option func(*Manager)

// WithStatusCache 同步状态写入 KV
func WithStatusCache(kv store.KV, key string) Option {
	return func(m *Manager) {
		m.kv = kv
		if key != "" {
			m.statusKey = key
		}
	}
}

// WithPublisher 同步完成后发布事件
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithMetrics 记录同步指标
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithAuditBatch 设置审计批次大小（1..100）
func WithAuditBatch(n int) Option {
	return func(m *Manager) {
		if n > 0 && n <= MaxAuditBatch {
			m.auditBatch = n
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager 创建同步管理器
func NewManager(st *repository.Store, backend Backend, conn Connectivity, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:        st,
		backend:      backend,
		connectivity: conn,
		logger:       logger,
		statusKey:    DefaultStatusKey,
		publisher:    events.NopPublisher{},
		auditBatch:   MaxAuditBatch,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SyncAll 执行一次同步周期
// 周期一旦开始不会被调用方取消；单条失败只计数，等待下一个周期
func (m *Manager) SyncAll(ctx context.Context) models.SyncResult {
	if !m.running.TryLock() {
		return models.SyncResult{Error: ErrSyncInProgress.Error(), StartedAt: m.now(), FinishedAt: m.now()}
	}
	defer m.running.Unlock()

	ctx = context.WithoutCancel(ctx)
	result := models.SyncResult{StartedAt: m.now()}

	if !m.connectivity.IsConnected(ctx) {
		result.Error = ErrNoConnection.Error()
		result.FinishedAt = m.now()
		m.logger.Info("Sync skipped, device offline")
		m.metrics.RecordSync(0, 0, true)
		m.finish(ctx, result)
		return result
	}

	m.syncPatients(ctx, &result)
	m.syncVisits(ctx, &result)
	m.syncAudit(ctx, &result)

	result.FinishedAt = m.now()
	m.logger.Info("Sync cycle finished",
		zap.Int("uploaded", result.Uploaded),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	m.metrics.RecordSync(result.Uploaded, result.Failed, false)
	m.finish(ctx, result)
	return result
}

func (m *Manager) syncPatients(ctx context.Context, result *models.SyncResult) {
	patients, err := m.store.Patients.ListUnsynced(ctx)
	if err != nil {
		m.logger.Error("Failed to list unsynced patients", zap.Error(err))
		return
	}

	for _, p := range patients {
		if err := m.backend.UploadPatient(ctx, p); err != nil {
			m.logger.Warn("Patient upload failed", zap.String("patient_id", p.ID), zap.Error(err))
			result.Failed++
			continue
		}
		marked, err := m.store.Patients.MarkSynced(ctx, p.ID, p.UpdatedAt)
		if err != nil {
			m.logger.Warn("Failed to mark patient synced", zap.String("patient_id", p.ID), zap.Error(err))
			result.Failed++
			continue
		}
		if !marked {
			m.logger.Info("Patient changed during upload, left for next cycle", zap.String("patient_id", p.ID))
		}
		result.Uploaded++
	}
}

func (m *Manager) syncVisits(ctx context.Context, result *models.SyncResult) {
	visits, err := m.store.Visits.ListUnsynced(ctx)
	if err != nil {
		m.logger.Error("Failed to list unsynced visits", zap.Error(err))
		return
	}

	for _, v := range visits {
		if err := m.backend.UploadVisit(ctx, v); err != nil {
			m.logger.Warn("Visit upload failed", zap.String("visit_id", v.ID), zap.Error(err))
			result.Failed++
			continue
		}
		if err := m.store.Visits.MarkSynced(ctx, v.ID); err != nil {
			m.logger.Warn("Failed to mark visit synced", zap.String("visit_id", v.ID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Uploaded++
	}
}

func (m *Manager) syncAudit(ctx context.Context, result *models.SyncResult) {
	entries, err := m.store.Audit.ListUnsynced(ctx, m.auditBatch)
	if err != nil {
		m.logger.Error("Failed to list unsynced audit entries", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	if err := m.backend.UploadAuditBatch(ctx, entries); err != nil {
		m.logger.Warn("Audit batch upload failed", zap.Int("count", len(entries)), zap.Error(err))
		result.Failed += len(entries)
		return
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if err := m.store.Audit.MarkSynced(ctx, ids...); err != nil {
		m.logger.Warn("Failed to mark audit entries synced", zap.Error(err))
		result.Failed += len(entries)
		return
	}
	result.Uploaded += len(entries)
}

// PendingCount 各类未同步记录数量
func (m *Manager) PendingCount(ctx context.Context) (models.PendingCount, error) {
	var pc models.PendingCount
	var err error
	if pc.Patients, err = m.store.Patients.CountUnsynced(ctx); err != nil {
		return pc, err
	}
	if pc.Visits, err = m.store.Visits.CountUnsynced(ctx); err != nil {
		return pc, err
	}
	if pc.Audit, err = m.store.Audit.CountUnsynced(ctx); err != nil {
		return pc, err
	}
	return pc, nil
}

// Status 读取缓存的同步状态；缓存缺失时按当前待同步数量返回
func (m *Manager) Status(ctx context.Context) (*models.SyncStatus, error) {
	if m.kv != nil {
		var status models.SyncStatus
		err := store.GetJSON(ctx, m.kv, m.statusKey, &status)
		if err == nil {
			return &status, nil
		}
		if !errors.Is(err, store.ErrMiss) {
			m.logger.Warn("Failed to read sync status cache", zap.Error(err))
		}
	}

	pending, err := m.PendingCount(ctx)
	if err != nil {
		return nil, err
	}
	return &models.SyncStatus{Pending: pending, UpdatedAt: m.now()}, nil
}

// finish 缓存状态并发布事件，失败只记录日志
func (m *Manager) finish(ctx context.Context, result models.SyncResult) {
	if m.kv != nil {
		pending, err := m.PendingCount(ctx)
		if err != nil {
			m.logger.Warn("Failed to count pending records", zap.Error(err))
		}
		status := models.SyncStatus{LastResult: &result, Pending: pending, UpdatedAt: m.now()}
		if err := store.SetJSON(ctx, m.kv, m.statusKey, status, 0); err != nil {
			m.logger.Warn("Failed to cache sync status", zap.Error(err))
		}
	}

	if err := m.publisher.PublishSyncCompleted(ctx, events.SyncCompleted{
		Uploaded:   result.Uploaded,
		Failed:     result.Failed,
		Error:      result.Error,
		FinishedAt: result.FinishedAt,
	}); err != nil {
		m.logger.Warn("Failed to publish sync event", zap.Error(err))
	}
}
