package visa

import (
	"fmt"
	"strings"

	"github.com/wfunc/pulse-server/internal/errors"
)

// gpibChannel GPIB仪器通道
// GPIB总线通过Prologix风格的USB-GPIB适配器接入，适配器把自己暴露为
// 一个串口，以"++"前缀的命令配置；其余字节原样转发给总线上的仪器。
type gpibChannel struct {
	*rawChannel
	addr int
}

// setupGPIB 初始化适配器并定位仪器
func setupGPIB(ch *rawChannel, addr int) (*gpibChannel, error) {
	g := &gpibChannel{rawChannel: ch, addr: addr}

	// 控制器模式，指定仪器地址，写后自动读取，发送EOI
	setup := []string{
		"++mode 1",
		fmt.Sprintf("++addr %d", addr),
		"++auto 1",
		"++eoi 1",
	}
	for _, cmd := range setup {
		if err := g.rawChannel.WriteString(cmd); err != nil {
			return nil, errors.Wrap(err, errors.ErrAdapterFailure, "适配器配置失败")
		}
	}

	// ++ver 验证适配器在线
	ver, err := g.rawChannel.Query("++ver")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrAdapterFailure, "适配器无响应")
	}
	if strings.TrimSpace(ver) == "" {
		return nil, errors.New(errors.ErrAdapterFailure, "适配器版本响应为空")
	}

	return g, nil
}

// WriteString 转发命令到仪器
// "++"前缀在Prologix协议中有特殊含义，仪器命令不允许以它开头。
func (g *gpibChannel) WriteString(s string) error {
	if strings.HasPrefix(s, "++") {
		return errors.Newf(errors.ErrInvalidParam, "仪器命令不能以++开头: %s", s)
	}
	return g.rawChannel.WriteString(s)
}

// Query 写入命令并读取响应（适配器auto模式下自动回读）
func (g *gpibChannel) Query(cmd string) (string, error) {
	if err := g.WriteString(cmd); err != nil {
		return "", err
	}
	return g.ReadString()
}

// Addr 返回仪器的GPIB地址
func (g *gpibChannel) Addr() int {
	return g.addr
}
