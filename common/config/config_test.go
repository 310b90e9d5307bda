package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.local")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "afya")
	t.Setenv("DB_MAX_CONNS", "bad")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "pw", SSLMode: "disable", MaxConns: 4}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "db.local", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "afya", cfg.Database)
	assert.Equal(t, 4, cfg.MaxConns)
	assert.Equal(t, "host=db.local port=6543 user=postgres password=pw dbname=afya sslmode=disable", cfg.GetDSN())
	assert.Equal(t, "postgres://postgres:pw@db.local:6543/afya?sslmode=disable", cfg.GetURL())
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "1")

	var cfg MQTTConfig
	cfg.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(1), cfg.QoS)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")

	var cfg RedisConfig
	cfg.LoadFromEnv("REDIS")

	assert.Equal(t, "cache:6380", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
}
