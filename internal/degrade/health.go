package degrade

import (
	"sync"
	"time"
)

// ServiceState 远程服务健康状态
type ServiceState int

const (
	StateHealthy  ServiceState = iota // 正常
	StateDegraded                     // 降级（连续失败，读路径走缓存兜底）
	StateProbing                      // 试探（静默期已过，等待下一次结果）
)

func (s ServiceState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// HealthTracker 按服务维度记录健康状态。
// 状态迁移规则与熔断器一致：连续失败达到阈值进入降级，
// 静默期过后转入试探，试探成功恢复正常、失败回到降级。
type HealthTracker struct {
	maxFailures  int           // 进入降级所需的连续失败次数
	resetTimeout time.Duration // 降级后的静默期

	mu       sync.RWMutex
	services map[string]*serviceHealth
}

type serviceHealth struct {
	state        ServiceState
	failures     int
	lastFailTime time.Time
	lastErr      error
}

// NewHealthTracker 创建健康跟踪器
func NewHealthTracker(maxFailures int, resetTimeout time.Duration) *HealthTracker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &HealthTracker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		services:     make(map[string]*serviceHealth),
	}
}

// ReportSuccess 上报一次成功调用
func (h *HealthTracker) ReportSuccess(service string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.service(service)
	s.state = StateHealthy
	s.failures = 0
	s.lastErr = nil
}

// ReportFailure 上报一次失败调用
func (h *HealthTracker) ReportFailure(service string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.service(service)
	s.failures++
	s.lastFailTime = time.Now()
	s.lastErr = err

	if s.failures >= h.maxFailures {
		s.state = StateDegraded
	}
}

// State 查询服务当前状态
func (h *HealthTracker) State(service string) ServiceState {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.services[service]
	if !ok {
		return StateHealthy
	}
	// 降级后静默期已过，转入试探
	if s.state == StateDegraded && h.resetTimeout > 0 && time.Since(s.lastFailTime) >= h.resetTimeout {
		s.state = StateProbing
	}
	return s.state
}

// LastError 返回服务最近一次失败的错误（健康时为 nil）。
func (h *HealthTracker) LastError(service string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.services[service]; ok {
		return s.lastErr
	}
	return nil
}

func (h *HealthTracker) service(name string) *serviceHealth {
	s, ok := h.services[name]
	if !ok {
		s = &serviceHealth{state: StateHealthy}
		h.services[name] = s
	}
	return s
}
