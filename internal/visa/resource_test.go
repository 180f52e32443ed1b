package visa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/pulse-server/internal/errors"
)

// 测试变体A：裸串口路径
func TestParseResourceBarePath(t *testing.T) {
	res, err := ParseResource("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, KindSerial, res.Kind)
	assert.Equal(t, "/dev/ttyUSB0", res.Path)
	assert.Equal(t, "ASRL/dev/ttyUSB0::INSTR", res.String())
}

// 测试变体B：ASRL资源
func TestParseResourceASRL(t *testing.T) {
	res, err := ParseResource("ASRL/dev/ttyUSB0::INSTR")
	require.NoError(t, err)
	assert.Equal(t, KindSerial, res.Kind)
	assert.Equal(t, "/dev/ttyUSB0", res.Path)

	// 板号形式映射到系统串口
	res, err = ParseResource("ASRL1::INSTR")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS0", res.Path)

	// 不带INSTR后缀
	res, err = ParseResource("ASRL/dev/ttyACM0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", res.Path)
}

// 测试变体B：GPIB资源
func TestParseResourceGPIB(t *testing.T) {
	res, err := ParseResource("GPIB::6::INSTR")
	require.NoError(t, err)
	assert.Equal(t, KindGPIB, res.Kind)
	assert.Equal(t, 0, res.Board)
	assert.Equal(t, 6, res.Addr)
	assert.Equal(t, "GPIB0::6::INSTR", res.String())

	res, err = ParseResource("GPIB1::22::INSTR")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Board)
	assert.Equal(t, 22, res.Addr)

	// 省略INSTR
	res, err = ParseResource("gpib::6")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Addr)
}

// 测试TCPIP资源
func TestParseResourceTCP(t *testing.T) {
	res, err := ParseResource("TCPIP::192.168.1.10::1234::SOCKET")
	require.NoError(t, err)
	assert.Equal(t, KindTCP, res.Kind)
	assert.Equal(t, "192.168.1.10", res.Host)
	assert.Equal(t, 1234, res.Port)
}

// 测试格式错误的地址
func TestParseResourceMalformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"ttyUSB0",                     // 相对路径
		"ASRL::INSTR",                 // 缺少设备路径
		"ASRL0::INSTR",                // 板号必须大于0
		"ASRLcom1::INSTR",             // 非绝对路径
		"ASRL/dev/ttyUSB0::RAW",       // 错误后缀
		"GPIB::INSTR",                 // 缺少地址
		"GPIB::abc::INSTR",            // 地址不是数字
		"GPIB::31::INSTR",             // 地址超出范围
		"GPIBx::6::INSTR",             // 板号无效
		"TCPIP::host::1234",           // 缺少SOCKET后缀
		"TCPIP::host::0::SOCKET",      // 端口无效
		"TCPIP::::1234::SOCKET",       // 缺少主机
		"USB::0x0957::0x0407::INSTR",  // 不支持的类型
	}

	for _, addr := range cases {
		_, err := ParseResource(addr)
		require.Error(t, err, "地址应当被拒绝: %q", addr)
		assert.True(t, errors.Is(err, errors.ErrResourceMalformed),
			"错误码应为资源格式错误: %q", addr)
	}
}
