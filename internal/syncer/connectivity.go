package syncer

import (
	"context"
	"sync/atomic"
	"time"
)

// Connectivity 网络连通性
type Connectivity interface {
	IsConnected(ctx context.Context) bool
}

// HealthConnectivity 以后端健康检查判断是否在线
type HealthConnectivity struct {
	backend Backend
	timeout time.Duration
}

// NewHealthConnectivity 创建基于健康检查的连通性探测
func NewHealthConnectivity(backend Backend, timeout time.Duration) *HealthConnectivity {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthConnectivity{backend: backend, timeout: timeout}
}

func (h *HealthConnectivity) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.backend.Health(ctx) == nil
}

// StaticConnectivity 手动设置的连通状态（飞行模式开关、测试）
type StaticConnectivity struct {
	online atomic.Bool
}

// NewStaticConnectivity 创建静态连通性
func NewStaticConnectivity(online bool) *StaticConnectivity {
	s := &StaticConnectivity{}
	s.online.Store(online)
	return s
}

func (s *StaticConnectivity) IsConnected(context.Context) bool {
	return s.online.Load()
}

// Set 切换在线状态
func (s *StaticConnectivity) Set(online bool) {
	s.online.Store(online)
}
