package visa

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/errors"
	"github.com/wfunc/pulse-server/internal/logger"
	"go.uber.org/zap"
)

// Opener 连接配置器
// 把一个地址字符串解析为到仪器的活动通信通道。打开失败直接上抛，
// 不在这一层重试。
type Opener struct {
	cfg *config.VISAConfig
	log *zap.Logger
}

// NewOpener 创建连接配置器
func NewOpener(cfg *config.VISAConfig) *Opener {
	return &Opener{
		cfg: cfg,
		log: logger.GetModuleLogger("visa"),
	}
}

// Open 打开到仪器的通道
// 地址解析失败、设备缺失、权限不足或底层链路无法建立时返回连接错误。
func (o *Opener) Open(address string) (Channel, error) {
	res, err := ParseResource(address)
	if err != nil {
		return nil, err
	}

	var ch Channel
	switch res.Kind {
	case KindSerial:
		ch, err = o.openSerial(res, res.Path, o.cfg.Serial.BaudRate)
	case KindGPIB:
		ch, err = o.openGPIB(res)
	case KindTCP:
		ch, err = o.openTCP(res)
	default:
		err = errors.Newf(errors.ErrResourceMalformed, "不支持的资源: %s", address)
	}

	if err != nil {
		o.log.Error("打开连接失败",
			zap.String("resource", address),
			zap.Error(err))
		return nil, err
	}

	o.log.Info("连接已建立",
		zap.String("resource", res.String()),
		zap.String("kind", res.Kind.String()))

	return ch, nil
}

// openSerial 打开串口通道
func (o *Opener) openSerial(res *Resource, path string, baud int) (*rawChannel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConnectionOpen,
			"串口设备不可用: %s", path)
	}

	if baud <= 0 {
		baud = 9600
	}
	dataBits := o.cfg.Serial.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	stopBits := o.cfg.Serial.StopBits
	if stopBits == 0 {
		stopBits = 1
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		Size:        byte(dataBits),
		StopBits:    serial.StopBits(stopBits),
		Parity:      parseParity(o.cfg.Serial.Parity),
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConnectionOpen,
			"打开串口失败: %s", path)
	}

	return newRawChannel(port, res, o.readTimeout()), nil
}

// openGPIB 经USB-GPIB适配器打开GPIB仪器通道
func (o *Opener) openGPIB(res *Resource) (Channel, error) {
	adapterPort := o.cfg.GPIB.AdapterPort
	if adapterPort == "" {
		return nil, errors.New(errors.ErrConfigMissing,
			"GPIB资源需要配置 visa.gpib.adapter_port")
	}

	raw, err := o.openSerial(res, adapterPort, o.cfg.GPIB.BaudRate)
	if err != nil {
		return nil, err
	}

	ch, err := setupGPIB(raw, res.Addr)
	if err != nil {
		raw.Close()
		return nil, err
	}

	return ch, nil
}

// openTCP 打开TCP套接字通道
func (o *Opener) openTCP(res *Resource) (Channel, error) {
	addr := fmt.Sprintf("%s:%d", res.Host, res.Port)
	conn, err := net.DialTimeout("tcp", addr, o.readTimeout())
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConnectionOpen,
			"连接失败: %s", addr)
	}

	return newTCPChannel(conn, res, o.readTimeout()), nil
}

func (o *Opener) readTimeout() time.Duration {
	if o.cfg.ReadTimeout > 0 {
		return o.cfg.ReadTimeout
	}
	return 2 * time.Second
}

// parseParity 解析校验位配置
func parseParity(p string) serial.Parity {
	switch p {
	case "O", "odd":
		return serial.ParityOdd
	case "E", "even":
		return serial.ParityEven
	default:
		return serial.ParityNone
	}
}
