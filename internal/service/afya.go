package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/common/database"
	mqttcommon "github.com/Githafconsulting/Healthcare-Assistant/common/mqtt"
	rediscommon "github.com/Githafconsulting/Healthcare-Assistant/common/redis"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/audit"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/config"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/decision"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/events"
	httpapi "github.com/Githafconsulting/Healthcare-Assistant/internal/http"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/metrics"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/reminder"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/store"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/syncer"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/workflow"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// syncConsumerGroup 就诊完成事件触发同步的消费者组
const syncConsumerGroup = "afya-sync"

// AfyaService 设备端核心服务（整合各层）
type AfyaService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	// 各层组件
	metrics     *metrics.Metrics
	store       *repository.Store
	audit       *audit.Logger
	workflow    *workflow.Workflow
	syncManager *syncer.Manager
	reminders   *reminder.Scheduler
	handler     http.Handler

	server   *http.Server
	wg       sync.WaitGroup
	stopOnce sync.Once

	// stopping 之后不再接受远程触发，保证 wg.Add 不与 Stop 中的 wg.Wait 竞争
	triggerMu sync.Mutex
	stopping  bool
}

// NewAfyaService 创建服务
func NewAfyaService(cfg *config.Config, logger *zap.Logger) (*AfyaService, error) {
	s := &AfyaService{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	// 1. 存储
	switch cfg.StoreBackend {
	case "postgres":
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		s.db = db
		s.store = repository.NewPostgresStore(db, logger)
	default:
		s.store = repository.NewMemoryStore()
	}

	// 2. Redis：同步状态缓存 + 领域事件
	var kv store.KV = store.NewMemoryKV()
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RedisEnabled {
		s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), s.redisClient); err != nil {
			s.closeResources()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		kv = store.NewRedisKV(s.redisClient)
		publisher = events.NewStreamPublisher(s.redisClient, cfg.StatusStream, logger)
	}

	// 3. MQTT：短信网关 / 远程触发同步
	if cfg.MQTTEnabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.closeResources()
			return nil, err
		}
		s.mqttClient = client
	}

	// 4. 领域组件
	s.audit = audit.NewLogger(s.store.Audit, s.metrics, logger, cfg.Audit.QueueSize)

	engine := decision.NewEngine(logger)
	s.workflow = workflow.NewWorkflow(s.store, engine, s.audit, cfg.CHWID, logger,
		workflow.WithPublisher(publisher),
		workflow.WithMetrics(s.metrics),
	)

	tokens := syncer.NewTokenSource(cfg.Sync.TokenSecret, cfg.DeviceID, cfg.CHWID, cfg.Sync.TokenTTL)
	client := syncer.NewClient(cfg.Sync.BaseURL, cfg.Sync.Timeout, tokens, logger)
	s.syncManager = syncer.NewManager(s.store, client, syncer.NewHealthConnectivity(client, 5*time.Second), logger,
		syncer.WithStatusCache(kv, cfg.Sync.StatusKey),
		syncer.WithPublisher(publisher),
		syncer.WithMetrics(s.metrics),
		syncer.WithAuditBatch(cfg.Sync.AuditBatch),
	)

	s.reminders = reminder.NewScheduler(s.store, s.newGateway(), s.audit, s.metrics, cfg.CHWID, logger)

	// 5. HTTP
	s.handler = httpapi.NewRouter(httpapi.NewHandler(s.workflow, s.store.Visits, s.syncManager, s.reminders, s.metrics, logger))

	return s, nil
}

func (s *AfyaService) newGateway() reminder.Gateway {
	switch s.config.Reminder.Gateway {
	case "http":
		return reminder.NewHTTPGateway(s.config.Reminder.HTTPURL, s.config.Reminder.APIKey, s.config.Reminder.SenderID, s.config.Sync.Timeout, s.logger)
	case "mqtt":
		return reminder.NewMQTTGateway(s.mqttClient, s.config.Reminder.Topic, s.config.Reminder.SenderID)
	default:
		return reminder.NewPlaceholderGateway(s.logger)
	}
}

// Workflow 就诊工作流
func (s *AfyaService) Workflow() *workflow.Workflow { return s.workflow }

// Handler HTTP 处理器
func (s *AfyaService) Handler() http.Handler { return s.handler }

// Start 启动 HTTP 服务和后台循环，阻塞直到 ctx 取消或 HTTP 服务出错
func (s *AfyaService) Start(ctx context.Context) error {
	s.logger.Info("Starting afya core service",
		zap.String("device_id", s.config.DeviceID),
		zap.String("store_backend", s.config.StoreBackend),
		zap.String("sms_gateway", s.config.Reminder.Gateway),
	)

	listener, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddr, err)
	}
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.runLoop(ctx, "sync", s.config.Sync.Interval, s.syncOnce)
	s.runLoop(ctx, "reminder", s.config.Reminder.Interval, s.remindOnce)
	if s.redisClient != nil {
		s.wg.Add(1)
		go s.consumeEvents(ctx)
	}
	if s.mqttClient != nil {
		if err := s.mqttClient.Subscribe(s.config.Sync.TriggerTopic, s.handleSyncTrigger(ctx)); err != nil {
			s.logger.Warn("Failed to subscribe sync trigger topic", zap.Error(err))
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	s.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))

	select {
	case <-ctx.Done():
		s.logger.Info("Afya core service stopping")
		return nil
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}
}

// runLoop 定期执行任务；启动时立即执行一次
func (s *AfyaService) runLoop(ctx context.Context, name string, interval time.Duration, task func(context.Context)) {
	if interval <= 0 {
		s.logger.Info("Periodic task disabled", zap.String("task", name))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		task(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Periodic task stopped", zap.String("task", name))
				return
			case <-ticker.C:
				task(ctx)
			}
		}
	}()
}

func (s *AfyaService) syncOnce(ctx context.Context) {
	result := s.syncManager.SyncAll(ctx)
	if result.Error != "" {
		s.logger.Info("Sync cycle ended early", zap.String("reason", result.Error))
	}
}

func (s *AfyaService) remindOnce(ctx context.Context) {
	if _, err := s.reminders.ProcessDueReminders(ctx); err != nil {
		s.logger.Error("Failed to process reminders", zap.Error(err))
	}
}

// consumeEvents 就诊完成后尽快尝试同步
func (s *AfyaService) consumeEvents(ctx context.Context) {
	defer s.wg.Done()

	stream := s.config.StatusStream
	if err := rediscommon.CreateConsumerGroup(ctx, s.redisClient, stream, syncConsumerGroup); err != nil {
		s.logger.Error("Failed to create consumer group", zap.String("stream", stream), zap.Error(err))
		return
	}

	for ctx.Err() == nil {
		msgs, err := rediscommon.ReadFromStream(ctx, s.redisClient, stream, syncConsumerGroup, s.config.DeviceID, 10, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("Failed to read event stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		trigger := false
		for _, msg := range msgs {
			if msg.Values["type"] == events.TypeVisitCompleted {
				trigger = true
			}
			if err := s.redisClient.XAck(ctx, stream, syncConsumerGroup, msg.ID).Err(); err != nil {
				s.logger.Warn("Failed to ack event", zap.String("id", msg.ID), zap.Error(err))
			}
		}
		if trigger {
			s.syncOnce(ctx)
		}
	}
}

// handleSyncTrigger MQTT 远程触发同步（异步执行，重复触发由 Manager 拒绝）
func (s *AfyaService) handleSyncTrigger(ctx context.Context) mqttcommon.MessageHandler {
	return func(topic string, _ []byte) error {
		s.triggerMu.Lock()
		defer s.triggerMu.Unlock()
		if s.stopping {
			s.logger.Debug("Service stopping, ignoring sync trigger", zap.String("topic", topic))
			return nil
		}

		s.logger.Info("Sync triggered remotely", zap.String("topic", topic))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.syncOnce(ctx)
		}()
		return nil
	}
}

// Stop 停止服务：关闭 HTTP、等待后台任务、清空审计队列、关闭连接
func (s *AfyaService) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping afya core service")

		s.triggerMu.Lock()
		s.stopping = true
		s.triggerMu.Unlock()

		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.server.Shutdown(ctx); err != nil {
				s.logger.Error("Failed to shutdown http server", zap.Error(err))
			}
			cancel()
		}

		s.wg.Wait()
		s.audit.Close()
		s.closeResources()
	})
	return nil
}

func (s *AfyaService) closeResources() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
}
