package instrument

import (
	"strings"
	"sync"
	"time"

	"github.com/wfunc/pulse-server/internal/errors"
	"github.com/wfunc/pulse-server/internal/logger"
	"github.com/wfunc/pulse-server/internal/scpi"
	"github.com/wfunc/pulse-server/internal/visa"
	"go.uber.org/zap"
)

// HP8131A 通过VISA通道控制真实仪器
type HP8131A struct {
	mu     sync.Mutex
	opener *visa.Opener
	ch     visa.Channel
	logger *zap.Logger

	state    DeviceState
	identity string
	address  string

	hook CommandHook

	// 通信故障回调（重连管理器注册）
	onFault func(err error)
}

// NewHP8131A 创建控制器
func NewHP8131A(opener *visa.Opener) *HP8131A {
	return &HP8131A{
		opener: opener,
		logger: logger.GetModuleLogger("instrument"),
		state:  StateInit,
	}
}

// SetCommandHook 设置命令记录回调
func (c *HP8131A) SetCommandHook(hook CommandHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = hook
}

// SetFaultCallback 设置通信故障回调
func (c *HP8131A) SetFaultCallback(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFault = fn
}

// Connect 打开VISA通道并用*IDN?识别仪器。
// 识别失败时关闭通道并置为OFF状态。
func (c *HP8131A) Connect(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		return errors.New(errors.ErrInstrumentBusy, "仪器已连接")
	}

	ch, err := c.opener.Open(address)
	if err != nil {
		c.state = StateOff
		logger.LogConnectionEvent("connect_failed", address, err)
		return err
	}

	idn, err := c.exchange(ch, "*IDN?", true)
	if err != nil {
		ch.Close()
		c.state = StateOff
		logger.LogConnectionEvent("identify_failed", address, err)
		return errors.Wrap(err, errors.ErrIdentifyFailed, "仪器识别失败")
	}

	c.ch = ch
	c.identity = strings.TrimSpace(idn)
	c.address = address
	c.state = StateOn

	logger.LogConnectionEvent("connected", address, nil)
	c.logger.Info("仪器已连接",
		zap.String("address", address),
		zap.String("identity", c.identity))

	return nil
}

// Disconnect 关闭通道
func (c *HP8131A) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil {
		return nil
	}

	err := c.ch.Close()
	c.ch = nil
	c.state = StateOff

	logger.LogConnectionEvent("disconnected", c.address, err)
	return err
}

// IsConnected 是否已连接
func (c *HP8131A) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil && c.state == StateOn
}

// State 当前设备状态
func (c *HP8131A) State() DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity 仪器识别字符串
func (c *HP8131A) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Address 当前资源地址
func (c *HP8131A) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Get 读取属性当前值
func (c *HP8131A) Get(name string) (interface{}, error) {
	attr, ok := scpi.Lookup(name)
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownAttribute, "未知属性: %s", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.query(attr.QueryCommand())
	if err != nil {
		return nil, err
	}
	return attr.ParseResponse(resp)
}

// Set 写入属性并回读校验，返回仪器实际生效的值
func (c *HP8131A) Set(name string, value interface{}) (interface{}, error) {
	attr, ok := scpi.Lookup(name)
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownAttribute, "未知属性: %s", name)
	}

	cmd, err := attr.SetCommand(value)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(cmd); err != nil {
		return nil, err
	}

	// 回读确认仪器接受了设置
	resp, err := c.query(attr.QueryCommand())
	if err != nil {
		return nil, err
	}
	return attr.ParseResponse(resp)
}

// Snapshot 读取全部属性当前值
func (c *HP8131A) Snapshot() (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]interface{})
	for _, name := range scpi.Names() {
		attr, _ := scpi.Lookup(name)
		resp, err := c.query(attr.QueryCommand())
		if err != nil {
			return nil, err
		}
		v, err := attr.ParseResponse(resp)
		if err != nil {
			return nil, err
		}
		snapshot[name] = v
	}
	return snapshot, nil
}

// ManualTrigger 发送一次手动触发
func (c *HP8131A) ManualTrigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write("*TRG")
}

// SelfTest 执行仪器自检
// 自检通过（响应为0）时置ON状态，否则置FAULT状态。链路仍在时
// 允许在FAULT状态下重新自检。
func (c *HP8131A) SelfTest() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil {
		return errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}

	resp, err := c.exchange(c.ch, "*TST?", true)
	if err != nil {
		c.fault(err)
		return err
	}

	if strings.TrimSpace(resp) == "0" {
		c.state = StateOn
		return nil
	}

	c.state = StateFault
	c.logger.Error("仪器自检失败",
		zap.String("address", c.address),
		zap.String("result", resp))
	return errors.Newf(errors.ErrCommandFailed, "自检失败: %s", resp)
}

// Command 发送原始命令
func (c *HP8131A) Command(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(cmd)
}

// Query 发送原始查询
func (c *HP8131A) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query(cmd)
}

// write 发送写命令，调用方需持锁
func (c *HP8131A) write(cmd string) error {
	if c.ch == nil || c.state != StateOn {
		return errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}
	_, err := c.exchange(c.ch, cmd, false)
	if err != nil {
		c.fault(err)
	}
	return err
}

// query 发送查询命令，调用方需持锁
func (c *HP8131A) query(cmd string) (string, error) {
	if c.ch == nil || c.state != StateOn {
		return "", errors.New(errors.ErrInstrumentOffline, "仪器未连接")
	}
	resp, err := c.exchange(c.ch, cmd, true)
	if err != nil {
		c.fault(err)
	}
	return resp, err
}

// exchange 执行一次命令往返并记录
func (c *HP8131A) exchange(ch visa.Channel, cmd string, isQuery bool) (string, error) {
	start := time.Now()

	var resp string
	var err error
	if isQuery {
		resp, err = ch.Query(cmd)
	} else {
		err = ch.WriteString(cmd)
	}

	rec := &CommandRecord{
		Command:   cmd,
		Response:  resp,
		IsQuery:   isQuery,
		Success:   err == nil,
		Elapsed:   time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		rec.Error = err.Error()
	}

	logger.LogSCPICommand(cmd, resp, err == nil)
	if c.hook != nil {
		c.hook(rec)
	}

	return resp, err
}

// fault 通信故障：置FAULT状态并关闭通道，调用方需持锁
func (c *HP8131A) fault(err error) {
	if !errors.IsConnectionError(err) {
		return
	}

	c.logger.Error("仪器通信故障",
		zap.String("address", c.address),
		zap.Error(err))

	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
	c.state = StateFault

	if c.onFault != nil {
		go c.onFault(err)
	}
}
