package visa

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/pulse-server/internal/errors"
)

// fakePort 模拟串口：预置响应，记录写入
type fakePort struct {
	in     bytes.Buffer // 仪器 -> 主机
	out    bytes.Buffer // 主机 -> 仪器
	closed bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.in.Len() == 0 {
		// 模拟串口读超时返回零字节
		return 0, io.EOF
	}
	return f.in.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func (f *fakePort) written() []string {
	s := strings.TrimRight(f.out.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func testResource() *Resource {
	return &Resource{Raw: "/dev/ttyUSB0", Kind: KindSerial, Path: "/dev/ttyUSB0"}
}

// 测试写入附加终止符
func TestRawChannelWriteString(t *testing.T) {
	port := &fakePort{}
	ch := newRawChannel(port, testResource(), time.Second)

	require.NoError(t, ch.WriteString(":PULS:TIM:PER 1e-3"))
	assert.Equal(t, ":PULS:TIM:PER 1e-3\n", port.out.String())
}

// 测试按行读取（含回车的响应也要正确去尾）
func TestRawChannelReadString(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("HEWLETT-PACKARD,8131A,0,01.01\r\n")
	ch := newRawChannel(port, testResource(), time.Second)

	line, err := ch.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "HEWLETT-PACKARD,8131A,0,01.01", line)
}

// 测试一次读入多行时的缓冲
func TestRawChannelBufferedLines(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("ON\nOFF\n")
	ch := newRawChannel(port, testResource(), time.Second)

	line, err := ch.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ON", line)

	line, err = ch.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "OFF", line)
}

// 测试查询往返
func TestRawChannelQuery(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("2.000E-09\n")
	ch := newRawChannel(port, testResource(), time.Second)

	resp, err := ch.Query(":PULS:TIM:PER?")
	require.NoError(t, err)
	assert.Equal(t, "2.000E-09", resp)
	assert.Equal(t, []string{":PULS:TIM:PER?"}, port.written())
}

// 测试读取超时
func TestRawChannelReadTimeout(t *testing.T) {
	port := &fakePort{}
	ch := newRawChannel(port, testResource(), 50*time.Millisecond)

	_, err := ch.ReadString()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConnectionTimeout))
}

// 测试GPIB适配器初始化序列
func TestGPIBSetup(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("Prologix GPIB-USB Controller version 6.107\n")
	raw := newRawChannel(port, &Resource{Kind: KindGPIB, Addr: 6}, time.Second)

	g, err := setupGPIB(raw, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Addr())
	assert.Equal(t,
		[]string{"++mode 1", "++addr 6", "++auto 1", "++eoi 1", "++ver"},
		port.written())
}

// 测试适配器无响应
func TestGPIBSetupAdapterSilent(t *testing.T) {
	port := &fakePort{}
	raw := newRawChannel(port, &Resource{Kind: KindGPIB, Addr: 6}, 50*time.Millisecond)

	_, err := setupGPIB(raw, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAdapterFailure))
}

// 测试仪器命令不允许使用适配器前缀
func TestGPIBRejectsAdapterPrefix(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("version\n")
	raw := newRawChannel(port, &Resource{Kind: KindGPIB, Addr: 6}, time.Second)

	g, err := setupGPIB(raw, 6)
	require.NoError(t, err)

	err = g.WriteString("++rst")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))
}
