package visa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wfunc/pulse-server/internal/errors"
)

// ResourceKind 资源类型
type ResourceKind int

const (
	KindSerial ResourceKind = iota // ASRL资源或裸串口路径
	KindGPIB                       // GPIB仪器（经USB-GPIB适配器）
	KindTCP                        // 原始TCP套接字（LAN-GPIB网关）
)

// String 返回资源类型名称
func (k ResourceKind) String() string {
	switch k {
	case KindSerial:
		return "ASRL"
	case KindGPIB:
		return "GPIB"
	case KindTCP:
		return "TCPIP"
	default:
		return "UNKNOWN"
	}
}

// Resource 解析后的连接目标
// 地址字符串是配置的唯一输入，除解析出类型和定位信息外不做任何解释。
type Resource struct {
	Raw  string       // 原始地址字符串
	Kind ResourceKind // 资源类型

	// ASRL
	Path string // 串口设备路径

	// GPIB
	Board int // 控制器板号
	Addr  int // 仪器主地址 (0-30)

	// TCPIP
	Host string
	Port int
}

// String 返回规范化的资源描述
func (r *Resource) String() string {
	switch r.Kind {
	case KindSerial:
		return fmt.Sprintf("ASRL%s::INSTR", r.Path)
	case KindGPIB:
		return fmt.Sprintf("GPIB%d::%d::INSTR", r.Board, r.Addr)
	case KindTCP:
		return fmt.Sprintf("TCPIP::%s::%d::SOCKET", r.Host, r.Port)
	default:
		return r.Raw
	}
}

// ParseResource 解析地址字符串
// 支持两种变体：
//   - 变体A：裸串口设备路径，如 /dev/ttyUSB0
//   - 变体B：VISA资源名，如 ASRL/dev/ttyUSB0::INSTR、GPIB::6::INSTR、
//     TCPIP::192.168.1.10::1234::SOCKET
func ParseResource(address string) (*Resource, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New(errors.ErrResourceMalformed, "地址字符串为空")
	}

	// 变体A：裸设备路径
	if !strings.Contains(address, "::") {
		if !strings.HasPrefix(address, "/") {
			return nil, errors.Newf(errors.ErrResourceMalformed,
				"既不是VISA资源名也不是设备路径: %q", address)
		}
		return &Resource{Raw: address, Kind: KindSerial, Path: address}, nil
	}

	parts := strings.Split(address, "::")
	head := strings.ToUpper(parts[0])

	switch {
	case strings.HasPrefix(head, "ASRL"):
		return parseSerial(address, parts)
	case strings.HasPrefix(head, "GPIB"):
		return parseGPIB(address, parts)
	case head == "TCPIP" || strings.HasPrefix(head, "TCPIP"):
		return parseTCP(address, parts)
	default:
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"不支持的资源类型: %q", parts[0])
	}
}

// parseSerial 解析 ASRL<path>::INSTR 或 ASRL<n>::INSTR
func parseSerial(raw string, parts []string) (*Resource, error) {
	if len(parts) > 2 {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"ASRL资源段数错误: %q", raw)
	}
	if len(parts) == 2 && !strings.EqualFold(parts[1], "INSTR") {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"ASRL资源必须以INSTR结尾: %q", raw)
	}

	body := parts[0][len("ASRL"):]
	if body == "" {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"ASRL资源缺少设备路径: %q", raw)
	}

	// ASRL1::INSTR 形式按板号映射到系统串口
	if n, err := strconv.Atoi(body); err == nil {
		if n < 1 {
			return nil, errors.Newf(errors.ErrResourceMalformed,
				"ASRL板号必须大于0: %q", raw)
		}
		return &Resource{
			Raw:  raw,
			Kind: KindSerial,
			Path: fmt.Sprintf("/dev/ttyS%d", n-1),
		}, nil
	}

	if !strings.HasPrefix(body, "/") {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"ASRL设备路径必须是绝对路径: %q", raw)
	}

	return &Resource{Raw: raw, Kind: KindSerial, Path: body}, nil
}

// parseGPIB 解析 GPIB[n]::<addr>[::INSTR]
func parseGPIB(raw string, parts []string) (*Resource, error) {
	if len(parts) < 2 || len(parts) > 3 {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"GPIB资源段数错误: %q", raw)
	}
	if len(parts) == 3 && !strings.EqualFold(parts[2], "INSTR") {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"GPIB资源必须以INSTR结尾: %q", raw)
	}

	board := 0
	if body := parts[0][len("GPIB"):]; body != "" {
		n, err := strconv.Atoi(body)
		if err != nil || n < 0 {
			return nil, errors.Newf(errors.ErrResourceMalformed,
				"GPIB板号无效: %q", raw)
		}
		board = n
	}

	addr, err := strconv.Atoi(parts[1])
	if err != nil || addr < 0 || addr > 30 {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"GPIB仪器地址必须在0-30之间: %q", raw)
	}

	return &Resource{Raw: raw, Kind: KindGPIB, Board: board, Addr: addr}, nil
}

// parseTCP 解析 TCPIP::<host>::<port>::SOCKET
func parseTCP(raw string, parts []string) (*Resource, error) {
	if len(parts) != 4 || !strings.EqualFold(parts[3], "SOCKET") {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"TCPIP资源格式应为 TCPIP::<host>::<port>::SOCKET: %q", raw)
	}

	host := parts[1]
	if host == "" {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"TCPIP资源缺少主机: %q", raw)
	}

	port, err := strconv.Atoi(parts[2])
	if err != nil || port < 1 || port > 65535 {
		return nil, errors.Newf(errors.ErrResourceMalformed,
			"TCPIP端口无效: %q", raw)
	}

	return &Resource{Raw: raw, Kind: KindTCP, Host: host, Port: port}, nil
}
