// Package scpi 定义HP 8131A脉冲发生器的属性到GPIB命令的映射。
// 查询形式在命令后附加"?"；设置形式为"<命令> <值>"。
package scpi

import (
	"strconv"
	"strings"

	"github.com/wfunc/pulse-server/internal/errors"
)

// ValueKind 属性值类型
type ValueKind int

const (
	KindFloat ValueKind = iota
	KindBool
	KindTriggerMode
	KindTriggerSlope
)

// TriggerMode 触发模式
type TriggerMode int

const (
	TriggerAuto TriggerMode = iota
	TriggerTriggered
	TriggerGate
	TriggerBurst
	TriggerEWidth
	TriggerTransducer
)

var triggerModeNames = []string{"AUTO", "TRIGGER", "GATE", "BURST", "EWIDTH", "TRANSDUCER"}

// String 返回仪器使用的模式名
func (m TriggerMode) String() string {
	if int(m) < 0 || int(m) >= len(triggerModeNames) {
		return "UNKNOWN"
	}
	return triggerModeNames[m]
}

// ParseTriggerMode 解析仪器返回的模式名
func ParseTriggerMode(s string) (TriggerMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range triggerModeNames {
		if name == s {
			return TriggerMode(i), nil
		}
	}
	return 0, errors.Newf(errors.ErrInvalidResponse, "未知的触发模式: %q", s)
}

// TriggerSlope 触发沿
type TriggerSlope int

const (
	SlopePositive TriggerSlope = iota
	SlopeNegative
)

var triggerSlopeNames = []string{"POSITIVE", "NEGATIVE"}

// String 返回仪器使用的触发沿名
func (s TriggerSlope) String() string {
	if int(s) < 0 || int(s) >= len(triggerSlopeNames) {
		return "UNKNOWN"
	}
	return triggerSlopeNames[s]
}

// ParseTriggerSlope 解析仪器返回的触发沿名
func ParseTriggerSlope(v string) (TriggerSlope, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for i, name := range triggerSlopeNames {
		if name == v {
			return TriggerSlope(i), nil
		}
	}
	return 0, errors.Newf(errors.ErrInvalidResponse, "未知的触发沿: %q", v)
}

// Attribute 仪器属性
type Attribute struct {
	Name    string    // 属性名
	Command string    // GPIB命令前缀
	Kind    ValueKind // 值类型
	Unit    string    // 单位（仅浮点属性）
	Min     float64   // 下限（仅浮点属性）
	Max     float64   // 上限（仅浮点属性）
}

// 属性表，命令与取值范围来自仪器手册
var attributes = []Attribute{
	{Name: "trigger_mode", Command: ":INP:TRIG:MODE", Kind: KindTriggerMode},
	{Name: "trigger_slope", Command: ":INP:TRIG:SLOP", Kind: KindTriggerSlope},
	{Name: "trigger_level", Command: ":INP:TRIG:THR", Kind: KindFloat, Unit: "V", Min: -5, Max: 5},
	{Name: "trigger_external", Command: ":INP:TRIG:STAT", Kind: KindBool},
	{Name: "period", Command: ":PULS:TIM:PER", Kind: KindFloat, Unit: "s", Min: 2e-9, Max: 99.9e-3},

	{Name: "width1", Command: ":PULS1:TIM:WIDT", Kind: KindFloat, Unit: "s", Min: 0.5e-9, Max: 99.9e-3},
	{Name: "delay1", Command: ":PULS1:TIM:DEL", Kind: KindFloat, Unit: "s", Min: 0, Max: 99.9e-3},
	{Name: "low1", Command: ":PULS1:LEVEL:LOW", Kind: KindFloat, Unit: "V", Min: -5, Max: 4.9},
	{Name: "high1", Command: ":PULS1:LEVEL:HIGH", Kind: KindFloat, Unit: "V", Min: -4.9, Max: 5},
	{Name: "enabled1", Command: ":OUTP1:PULS:STAT", Kind: KindBool},
	{Name: "cenabled1", Command: ":OUTP1:PULS:CST", Kind: KindBool},

	{Name: "width2", Command: ":PULS2:TIM:WIDT", Kind: KindFloat, Unit: "s", Min: 0.5e-9, Max: 99.9e-3},
	{Name: "delay2", Command: ":PULS2:TIM:DEL", Kind: KindFloat, Unit: "s", Min: 0, Max: 99.9e-3},
	{Name: "low2", Command: ":PULS2:LEVEL:LOW", Kind: KindFloat, Unit: "V", Min: -5, Max: 4.9},
	{Name: "high2", Command: ":PULS2:LEVEL:HIGH", Kind: KindFloat, Unit: "V", Min: -4.9, Max: 5},
	{Name: "enabled2", Command: ":OUTP2:PULS:STAT", Kind: KindBool},
	{Name: "cenabled2", Command: ":OUTP2:PULS:CST", Kind: KindBool},
}

var attrIndex = func() map[string]*Attribute {
	m := make(map[string]*Attribute, len(attributes))
	for i := range attributes {
		m[attributes[i].Name] = &attributes[i]
	}
	return m
}()

// Lookup 按名称查找属性
func Lookup(name string) (*Attribute, bool) {
	attr, ok := attrIndex[strings.ToLower(name)]
	return attr, ok
}

// Names 返回全部属性名（按表序）
func Names() []string {
	names := make([]string, len(attributes))
	for i := range attributes {
		names[i] = attributes[i].Name
	}
	return names
}

// QueryCommand 返回属性的查询命令
func (a *Attribute) QueryCommand() string {
	return a.Command + "?"
}

// SetCommand 构造属性的设置命令，写入前做范围检查
func (a *Attribute) SetCommand(value interface{}) (string, error) {
	switch a.Kind {
	case KindFloat:
		v, ok := toFloat(value)
		if !ok {
			return "", errors.Newf(errors.ErrInvalidParam,
				"属性 %s 需要数值", a.Name)
		}
		if v < a.Min || v > a.Max {
			return "", errors.Newf(errors.ErrValueOutOfRange,
				"属性 %s 的值 %g 超出 [%g, %g] %s", a.Name, v, a.Min, a.Max, a.Unit)
		}
		return a.Command + " " + strconv.FormatFloat(v, 'g', -1, 64), nil

	case KindBool:
		v, ok := value.(bool)
		if !ok {
			return "", errors.Newf(errors.ErrInvalidParam,
				"属性 %s 需要布尔值", a.Name)
		}
		// 仪器接受0/1
		if v {
			return a.Command + " 1", nil
		}
		return a.Command + " 0", nil

	case KindTriggerMode:
		mode, err := coerceTriggerMode(value)
		if err != nil {
			return "", err
		}
		return a.Command + " " + mode.String(), nil

	case KindTriggerSlope:
		slope, err := coerceTriggerSlope(value)
		if err != nil {
			return "", err
		}
		return a.Command + " " + slope.String(), nil

	default:
		return "", errors.Newf(errors.ErrUnknownAttribute, "属性 %s 类型未知", a.Name)
	}
}

// ParseResponse 解析仪器对查询命令的响应
func (a *Attribute) ParseResponse(resp string) (interface{}, error) {
	resp = strings.TrimSpace(resp)

	switch a.Kind {
	case KindFloat:
		v, err := strconv.ParseFloat(resp, 64)
		if err != nil {
			return nil, errors.Newf(errors.ErrInvalidResponse,
				"属性 %s 响应不是数值: %q", a.Name, resp)
		}
		return v, nil

	case KindBool:
		switch strings.ToUpper(resp) {
		case "ON", "1":
			return true, nil
		case "OFF", "0":
			return false, nil
		default:
			return nil, errors.Newf(errors.ErrInvalidResponse,
				"属性 %s 响应不是开关状态: %q", a.Name, resp)
		}

	case KindTriggerMode:
		mode, err := ParseTriggerMode(resp)
		if err != nil {
			return nil, err
		}
		return mode.String(), nil

	case KindTriggerSlope:
		slope, err := ParseTriggerSlope(resp)
		if err != nil {
			return nil, err
		}
		return slope.String(), nil

	default:
		return nil, errors.Newf(errors.ErrUnknownAttribute, "属性 %s 类型未知", a.Name)
	}
}

// toFloat 接受JSON解码产生的各种数值类型
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func coerceTriggerMode(value interface{}) (TriggerMode, error) {
	switch v := value.(type) {
	case TriggerMode:
		return v, nil
	case string:
		return ParseTriggerMode(v)
	default:
		return 0, errors.New(errors.ErrInvalidParam, "触发模式需要字符串")
	}
}

func coerceTriggerSlope(value interface{}) (TriggerSlope, error) {
	switch v := value.(type) {
	case TriggerSlope:
		return v, nil
	case string:
		return ParseTriggerSlope(v)
	default:
		return 0, errors.New(errors.ErrInvalidParam, "触发沿需要字符串")
	}
}
