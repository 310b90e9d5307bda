package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/common/config"
	"github.com/joho/godotenv"
)

// Config 设备端核心服务配置
type Config struct {
	HTTPAddr string
	DeviceID string // 设备标识，写入设备令牌
	CHWID    string // 当前社区卫生工作者（审计 actor）

	// StoreBackend: "postgres" 或 "memory"
	StoreBackend string

	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	RedisEnabled bool
	MQTTEnabled  bool

	Sync struct {
		BaseURL     string
		Timeout     time.Duration
		Interval    time.Duration
		AuditBatch  int // 单次审计上传上限，默认 100
		TokenSecret string
		TokenTTL    time.Duration
		StatusKey   string // 同步状态缓存键
		// TriggerTopic MQTT 远程触发同步的主题
		TriggerTopic string
	}

	Reminder struct {
		Interval time.Duration
		Gateway  string // placeholder | http | mqtt
		HTTPURL  string
		APIKey   string
		SenderID string
		Topic    string // MQTT 网关主题
	}

	Audit struct {
		QueueSize int
	}

	// Redis Stream：de-identified 领域事件
	StatusStream string

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（先尝试读取 .env，不存在则忽略）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8088")
	cfg.DeviceID = getEnv("DEVICE_ID", "device-local")
	cfg.CHWID = getEnv("CHW_ID", "chw-local")
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", "memory"))

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "afya"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 2
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "afya-core"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTTEnabled = getEnvBool("MQTT_ENABLED", false)

	cfg.Sync.BaseURL = getEnv("SYNC_BASE_URL", "http://localhost:8080")
	cfg.Sync.Timeout = time.Duration(getEnvInt("SYNC_TIMEOUT_SEC", 30)) * time.Second
	cfg.Sync.Interval = time.Duration(getEnvInt("SYNC_INTERVAL_SEC", 900)) * time.Second
	cfg.Sync.AuditBatch = getEnvInt("SYNC_AUDIT_BATCH", 100)
	cfg.Sync.TokenSecret = getEnv("SYNC_TOKEN_SECRET", "")
	cfg.Sync.TokenTTL = time.Duration(getEnvInt("SYNC_TOKEN_TTL_MIN", 60)) * time.Minute
	cfg.Sync.StatusKey = getEnv("SYNC_STATUS_KEY", "afya:sync:status")
	cfg.Sync.TriggerTopic = getEnv("SYNC_TRIGGER_TOPIC", "afya/device/"+cfg.DeviceID+"/sync")

	cfg.Reminder.Interval = time.Duration(getEnvInt("REMINDER_INTERVAL_SEC", 3600)) * time.Second
	cfg.Reminder.Gateway = strings.ToLower(getEnv("SMS_GATEWAY", "placeholder"))
	cfg.Reminder.HTTPURL = getEnv("SMS_HTTP_URL", "")
	cfg.Reminder.APIKey = getEnv("SMS_API_KEY", "")
	cfg.Reminder.SenderID = getEnv("SMS_SENDER_ID", "AFYA")
	cfg.Reminder.Topic = getEnv("SMS_MQTT_TOPIC", "afya/sms/outbound")

	cfg.Audit.QueueSize = getEnvInt("AUDIT_QUEUE_SIZE", 256)
	cfg.StatusStream = getEnv("STATUS_STREAM", "afya:events")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.Reminder.Gateway {
	case "placeholder":
	case "mqtt":
		if !c.MQTTEnabled {
			return fmt.Errorf("MQTT_ENABLED must be true when SMS_GATEWAY=mqtt")
		}
	case "http":
		if c.Reminder.HTTPURL == "" {
			return fmt.Errorf("SMS_HTTP_URL is required when SMS_GATEWAY=http")
		}
	default:
		return fmt.Errorf("invalid SMS_GATEWAY %q", c.Reminder.Gateway)
	}
	if c.Sync.AuditBatch <= 0 || c.Sync.AuditBatch > 100 {
		c.Sync.AuditBatch = 100
	}
	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 256
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
