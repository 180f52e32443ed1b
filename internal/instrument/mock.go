package instrument

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/pulse-server/internal/errors"
	"github.com/wfunc/pulse-server/internal/logger"
	"github.com/wfunc/pulse-server/internal/scpi"
	"github.com/wfunc/pulse-server/internal/visa"
	"go.uber.org/zap"
)

// MockController 模拟脉冲发生器（用于测试与无硬件环境）
type MockController struct {
	mu     sync.RWMutex
	logger *zap.Logger

	state    DeviceState
	identity string
	address  string

	// 模拟的仪器设置
	values map[string]interface{}

	hook CommandHook
}

// NewMockController 创建模拟控制器
func NewMockController() *MockController {
	return &MockController{
		logger:   logger.GetModuleLogger("instrument"),
		state:    StateInit,
		identity: "HEWLETT-PACKARD,8131A,0,01.00",
		values:   defaultValues(),
	}
}

// defaultValues 模拟仪器的上电默认设置
func defaultValues() map[string]interface{} {
	return map[string]interface{}{
		"period":           1e-6,
		"width1":           100e-9,
		"delay1":           0.0,
		"low1":             0.0,
		"high1":            1.0,
		"enabled1":         false,
		"cenabled1":        false,
		"width2":           100e-9,
		"delay2":           0.0,
		"low2":             0.0,
		"high2":            1.0,
		"enabled2":         false,
		"cenabled2":        false,
		"trigger_mode":     "AUTO",
		"trigger_slope":    "POSITIVE",
		"trigger_level":    0.0,
		"trigger_external": false,
	}
}

// SetCommandHook 设置命令记录回调
func (m *MockController) SetCommandHook(hook CommandHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Connect 模拟连接，地址仍需是合法的VISA资源
func (m *MockController) Connect(address string) error {
	if _, err := visa.ParseResource(address); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateOn {
		return errors.New(errors.ErrInstrumentBusy, "仪器已连接")
	}

	m.address = address
	m.state = StateOn

	m.record("*IDN?", m.identity, true, nil)
	m.logger.Info("模拟仪器已连接", zap.String("address", address))
	return nil
}

// Disconnect 模拟断开连接
func (m *MockController) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOn {
		return nil
	}

	m.state = StateOff
	m.logger.Info("模拟仪器已断开")
	return nil
}

// IsConnected 是否连接
func (m *MockController) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateOn
}

// State 当前状态
func (m *MockController) State() DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity 仪器识别字符串
func (m *MockController) Identity() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateOn {
		return ""
	}
	return m.identity
}

// Address 当前资源地址
func (m *MockController) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.address
}

// Get 读取模拟属性值
func (m *MockController) Get(name string) (interface{}, error) {
	attr, ok := scpi.Lookup(name)
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownAttribute, "未知属性: %s", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOn {
		return nil, errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	v := m.values[attr.Name]
	m.record(attr.QueryCommand(), fmt.Sprintf("%v", v), true, nil)
	return v, nil
}

// Set 写入模拟属性值，范围检查与真实控制器一致
func (m *MockController) Set(name string, value interface{}) (interface{}, error) {
	attr, ok := scpi.Lookup(name)
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownAttribute, "未知属性: %s", name)
	}

	cmd, err := attr.SetCommand(value)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOn {
		return nil, errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	// 从构造好的命令里取出规范化的值
	raw := strings.TrimPrefix(cmd, attr.Command+" ")
	v, err := attr.ParseResponse(raw)
	if err != nil {
		return nil, err
	}

	m.values[attr.Name] = v
	m.record(cmd, "", false, nil)
	return v, nil
}

// Snapshot 读取全部模拟属性
func (m *MockController) Snapshot() (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateOn {
		return nil, errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	snapshot := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		snapshot[k] = v
	}
	return snapshot, nil
}

// ManualTrigger 模拟手动触发
func (m *MockController) ManualTrigger() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOn {
		return errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	m.record("*TRG", "", false, nil)
	return nil
}

// SelfTest 模拟自检，连接状态下总是通过
func (m *MockController) SelfTest() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOn {
		return errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	m.record("*TST?", "0", true, nil)
	return nil
}

// Command 模拟原始命令
func (m *MockController) Command(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOn {
		return errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	m.record(cmd, "", false, nil)
	return nil
}

// Query 模拟原始查询，仅识别*IDN?
func (m *MockController) Query(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOn {
		return "", errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	var resp string
	if strings.EqualFold(strings.TrimSpace(cmd), "*IDN?") {
		resp = m.identity
	}
	m.record(cmd, resp, true, nil)
	return resp, nil
}

// record 生成命令记录，调用方需持锁
func (m *MockController) record(cmd, resp string, isQuery bool, err error) {
	if m.hook == nil {
		return
	}
	rec := &CommandRecord{
		Command:   cmd,
		Response:  resp,
		IsQuery:   isQuery,
		Success:   err == nil,
		Timestamp: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	m.hook(rec)
}
