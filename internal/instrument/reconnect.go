package instrument

import (
	"sync"
	"time"

	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/logger"
	"go.uber.org/zap"
)

// ReconnectManager 连接断开后按退避间隔自动重连
type ReconnectManager struct {
	controller PulseController
	cfg        *config.ReconnectConfig
	logger     *zap.Logger

	address      string
	reconnecting bool

	onReconnect func() // 重连成功回调

	stopCh      chan struct{}
	reconnectCh chan struct{}
	mu          sync.Mutex
}

// NewReconnectManager 创建重连管理器
func NewReconnectManager(controller PulseController, cfg *config.ReconnectConfig) *ReconnectManager {
	return &ReconnectManager{
		controller:  controller,
		cfg:         cfg,
		logger:      logger.GetModuleLogger("instrument"),
		reconnectCh: make(chan struct{}, 1),
	}
}

// SetReconnectCallback 设置重连成功回调
func (m *ReconnectManager) SetReconnectCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = fn
}

// Start 启动监控循环，address为重连使用的资源地址
func (m *ReconnectManager) Start(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh != nil {
		return
	}

	m.address = address
	m.stopCh = make(chan struct{})

	go m.reconnectLoop()
}

// Stop 停止监控循环
func (m *ReconnectManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
}

// TriggerReconnect 触发一次重连（通信故障时调用）
func (m *ReconnectManager) TriggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// 已有重连请求在队列中
	}
}

// IsReconnecting 是否正在重连
func (m *ReconnectManager) IsReconnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnecting
}

// reconnectLoop 重连循环，失败后指数退避
func (m *ReconnectManager) reconnectLoop() {
	m.mu.Lock()
	stopCh := m.stopCh
	m.mu.Unlock()

	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxInterval := m.cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 60 * time.Second
	}
	baseInterval := interval

	for {
		select {
		case <-stopCh:
			m.logger.Info("停止重连循环")
			return

		case <-m.reconnectCh:
			m.mu.Lock()
			if m.reconnecting {
				m.mu.Unlock()
				continue
			}
			m.reconnecting = true
			address := m.address
			m.mu.Unlock()

			m.logger.Info("检测到断线，开始重连",
				zap.String("address", address))

			// 确保旧连接已释放
			m.controller.Disconnect()

			retryCount := 0
			for {
				select {
				case <-stopCh:
					m.mu.Lock()
					m.reconnecting = false
					m.mu.Unlock()
					return
				default:
				}

				retryCount++
				err := m.controller.Connect(address)
				if err == nil {
					m.logger.Info("重连成功",
						zap.String("address", address),
						zap.Int("retry_count", retryCount))

					m.mu.Lock()
					m.reconnecting = false
					cb := m.onReconnect
					m.mu.Unlock()

					if cb != nil {
						cb()
					}
					break
				}

				m.logger.Warn("重连失败，等待重试",
					zap.String("address", address),
					zap.Int("retry", retryCount),
					zap.Duration("interval", interval),
					zap.Error(err))

				select {
				case <-stopCh:
					m.mu.Lock()
					m.reconnecting = false
					m.mu.Unlock()
					return
				case <-time.After(interval):
				}

				// 逐渐增加重连间隔
				if interval < maxInterval {
					interval *= 2
					if interval > maxInterval {
						interval = maxInterval
					}
				}
			}

			// 重置重连间隔
			interval = baseInterval
		}
	}
}
