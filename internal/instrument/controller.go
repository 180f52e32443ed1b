// Package instrument 实现HP 8131A脉冲发生器的控制层。
package instrument

import (
	"time"
)

// DeviceState 设备状态机
type DeviceState string

const (
	StateInit  DeviceState = "INIT"  // 尚未连接
	StateOn    DeviceState = "ON"    // 已连接并通过识别
	StateOff   DeviceState = "OFF"   // 已断开或连接失败
	StateFault DeviceState = "FAULT" // 通信故障
)

// CommandRecord 一次SCPI命令往返的记录
type CommandRecord struct {
	Command   string        // 发送的命令
	Response  string        // 仪器响应（写命令为空）
	IsQuery   bool          // 是否查询
	Success   bool          // 是否成功
	Error     string        // 失败原因
	Elapsed   time.Duration // 耗时
	Timestamp time.Time     // 发生时间
}

// CommandHook 命令记录回调，用于日志入库与监控推送
type CommandHook func(rec *CommandRecord)

// PulseController 脉冲发生器控制接口
type PulseController interface {
	// Connect 按VISA资源地址建立连接并识别仪器
	Connect(address string) error
	// Disconnect 断开连接
	Disconnect() error
	// IsConnected 是否已连接
	IsConnected() bool
	// State 当前设备状态
	State() DeviceState
	// Identity 仪器识别字符串（*IDN?响应）
	Identity() string
	// Address 当前连接的资源地址
	Address() string

	// Get 读取属性当前值
	Get(name string) (interface{}, error)
	// Set 写入属性并回读校验
	Set(name string, value interface{}) (interface{}, error)
	// Snapshot 读取全部属性
	Snapshot() (map[string]interface{}, error)

	// ManualTrigger 发送一次手动触发（*TRG）
	ManualTrigger() error
	// SelfTest 执行仪器自检（*TST?）并根据结果更新设备状态
	SelfTest() error

	// Command 发送原始命令（不等待响应）
	Command(cmd string) error
	// Query 发送原始查询并返回响应
	Query(cmd string) (string, error)

	// SetCommandHook 设置命令记录回调
	SetCommandHook(hook CommandHook)
}
