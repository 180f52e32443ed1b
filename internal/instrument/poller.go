package instrument

import (
	"sync"
	"time"

	"github.com/wfunc/pulse-server/internal/logger"
	"go.uber.org/zap"
)

// StatusSnapshot 一次轮询得到的设备状态
type StatusSnapshot struct {
	State     DeviceState            `json:"state"`
	Identity  string                 `json:"identity"`
	Address   string                 `json:"address"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Poller 周期性读取仪器设置并上报
type Poller struct {
	controller PulseController
	interval   time.Duration
	logger     *zap.Logger

	onSnapshot func(*StatusSnapshot)

	stopCh chan struct{}
	mu     sync.Mutex
}

// NewPoller 创建轮询器
func NewPoller(controller PulseController, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		controller: controller,
		interval:   interval,
		logger:     logger.GetModuleLogger("instrument"),
	}
}

// SetSnapshotCallback 设置快照回调
func (p *Poller) SetSnapshotCallback(fn func(*StatusSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSnapshot = fn
}

// Start 启动轮询循环
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})

	go p.pollLoop(p.stopCh)
}

// Stop 停止轮询
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}

// Poll 立即执行一次轮询
func (p *Poller) Poll() *StatusSnapshot {
	snapshot := &StatusSnapshot{
		State:     p.controller.State(),
		Identity:  p.controller.Identity(),
		Address:   p.controller.Address(),
		Timestamp: time.Now(),
	}

	if p.controller.IsConnected() {
		settings, err := p.controller.Snapshot()
		if err != nil {
			p.logger.Warn("轮询读取设置失败", zap.Error(err))
		} else {
			snapshot.Settings = settings
		}
		// 读取后状态可能已变化
		snapshot.State = p.controller.State()
	}

	p.mu.Lock()
	cb := p.onSnapshot
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return snapshot
}

// pollLoop 轮询循环
func (p *Poller) pollLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}
