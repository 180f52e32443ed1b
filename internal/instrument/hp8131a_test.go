package instrument

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/errors"
	"github.com/wfunc/pulse-server/internal/visa"
)

// fakeInstrument 模拟仪器：按行处理SCPI命令，维护一张设置表
type fakeInstrument struct {
	ln       net.Listener
	mu       sync.Mutex
	values   map[string]string
	identity string
	conns    []net.Conn
	// 命令接收记录
	received []string
}

func newFakeInstrument(t *testing.T) *fakeInstrument {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeInstrument{
		ln:       ln,
		identity: "HEWLETT-PACKARD,8131A,0,01.00",
		values: map[string]string{
			":PULS:TIM:PER":    "1E-6",
			":PULS1:TIM:WIDT":  "1E-7",
			":PULS1:TIM:DEL":   "0",
			":PULS1:LEVEL:LOW": "0",
			":OUTP1:PULS:STAT": "OFF",
			":INP:TRIG:MODE":   "AUTO",
		},
	}

	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeInstrument) address() string {
	port := f.ln.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("TCPIP::127.0.0.1::%d::SOCKET", port)
}

func (f *fakeInstrument) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		go f.handle(conn)
	}
}

// drop 模拟链路中断：关闭监听和所有活动连接
func (f *fakeInstrument) drop() {
	f.ln.Close()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

func (f *fakeInstrument) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)

		f.mu.Lock()
		f.received = append(f.received, cmd)
		var reply string
		switch {
		case cmd == "*IDN?":
			reply = f.identity
		case strings.HasSuffix(cmd, "?"):
			reply = f.values[strings.TrimSuffix(cmd, "?")]
		default:
			if i := strings.LastIndex(cmd, " "); i > 0 {
				f.values[cmd[:i]] = cmd[i+1:]
			}
		}
		f.mu.Unlock()

		if reply != "" {
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

func (f *fakeInstrument) value(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

func (f *fakeInstrument) setValue(key, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = v
}

func (f *fakeInstrument) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func newTestController(t *testing.T) (*HP8131A, *fakeInstrument) {
	t.Helper()
	fake := newFakeInstrument(t)
	opener := visa.NewOpener(&config.VISAConfig{
		ReadTimeout: 500 * time.Millisecond,
	})
	return NewHP8131A(opener), fake
}

func TestHP8131AConnect(t *testing.T) {
	c, fake := newTestController(t)

	assert.Equal(t, StateInit, c.State())

	err := c.Connect(fake.address())
	require.NoError(t, err)
	assert.Equal(t, StateOn, c.State())
	assert.True(t, c.IsConnected())
	assert.Equal(t, "HEWLETT-PACKARD,8131A,0,01.00", c.Identity())
	assert.Equal(t, fake.address(), c.Address())

	// 重复连接被拒绝
	err = c.Connect(fake.address())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentBusy))

	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateOff, c.State())
	assert.False(t, c.IsConnected())
}

func TestHP8131AConnectFailure(t *testing.T) {
	opener := visa.NewOpener(&config.VISAConfig{
		ReadTimeout: 200 * time.Millisecond,
	})
	c := NewHP8131A(opener)

	err := c.Connect("TCPIP::127.0.0.1::1::SOCKET")
	require.Error(t, err)
	assert.Equal(t, StateOff, c.State())
	assert.True(t, errors.IsConnectionError(err))
}

func TestHP8131AGet(t *testing.T) {
	c, fake := newTestController(t)
	require.NoError(t, c.Connect(fake.address()))
	defer c.Disconnect()

	v, err := c.Get("period")
	require.NoError(t, err)
	assert.InDelta(t, 1e-6, v.(float64), 1e-12)

	v, err = c.Get("enabled1")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = c.Get("trigger_mode")
	require.NoError(t, err)
	assert.Equal(t, "AUTO", v)

	_, err = c.Get("frequency")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownAttribute))
}

func TestHP8131ASet(t *testing.T) {
	c, fake := newTestController(t)
	require.NoError(t, c.Connect(fake.address()))
	defer c.Disconnect()

	v, err := c.Set("period", 2e-6)
	require.NoError(t, err)
	assert.InDelta(t, 2e-6, v.(float64), 1e-12)
	assert.Equal(t, "2e-06", fake.value(":PULS:TIM:PER"))

	v, err = c.Set("enabled1", true)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, "1", fake.value(":OUTP1:PULS:STAT"))

	// 超范围的值在发送前被拒绝
	_, err = c.Set("period", 1.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValueOutOfRange))
	assert.Equal(t, "2e-06", fake.value(":PULS:TIM:PER"), "仪器值不应改变")
}

func TestHP8131AOfflineOperations(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Get("period")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentOffline))

	_, err = c.Set("period", 1e-6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentOffline))

	err = c.Command("*RST")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentOffline))
}

func TestHP8131ARawCommands(t *testing.T) {
	c, fake := newTestController(t)
	require.NoError(t, c.Connect(fake.address()))
	defer c.Disconnect()

	resp, err := c.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "HEWLETT-PACKARD,8131A,0,01.00", resp)

	require.NoError(t, c.Command(":PULS:TIM:PER 5e-6"))
	assert.Equal(t, "5e-6", fake.value(":PULS:TIM:PER"))
}

func TestHP8131ACommandHook(t *testing.T) {
	c, fake := newTestController(t)

	var mu sync.Mutex
	var records []*CommandRecord
	c.SetCommandHook(func(rec *CommandRecord) {
		mu.Lock()
		records = append(records, rec)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(fake.address()))
	defer c.Disconnect()

	_, err := c.Get("period")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(records), 2)
	assert.Equal(t, "*IDN?", records[0].Command)
	assert.True(t, records[0].IsQuery)
	assert.True(t, records[0].Success)
	assert.Equal(t, ":PULS:TIM:PER?", records[1].Command)
}

func TestHP8131AManualTrigger(t *testing.T) {
	c, fake := newTestController(t)
	require.NoError(t, c.Connect(fake.address()))
	defer c.Disconnect()

	require.NoError(t, c.ManualTrigger())
	assert.Contains(t, fake.commands(), "*TRG")
}

func TestHP8131ASelfTest(t *testing.T) {
	c, fake := newTestController(t)
	fake.setValue("*TST", "0")
	require.NoError(t, c.Connect(fake.address()))
	defer c.Disconnect()

	require.NoError(t, c.SelfTest())
	assert.Equal(t, StateOn, c.State())

	// 自检失败进入FAULT状态
	fake.setValue("*TST", "32")
	err := c.SelfTest()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCommandFailed))
	assert.Equal(t, StateFault, c.State())

	// 链路仍在，FAULT状态下重新自检可恢复
	fake.setValue("*TST", "0")
	require.NoError(t, c.SelfTest())
	assert.Equal(t, StateOn, c.State())
}

func TestHP8131ATriggerOffline(t *testing.T) {
	c, _ := newTestController(t)

	err := c.ManualTrigger()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentOffline))

	err = c.SelfTest()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentOffline))
}

func TestHP8131AFaultOnBrokenLink(t *testing.T) {
	c, fake := newTestController(t)
	require.NoError(t, c.Connect(fake.address()))

	faultCh := make(chan error, 1)
	c.SetFaultCallback(func(err error) {
		faultCh <- err
	})

	// 仪器侧断开后查询应失败并进入FAULT状态
	fake.drop()
	_, err := c.Get("period")
	require.Error(t, err)
	assert.Equal(t, StateFault, c.State())

	select {
	case <-faultCh:
	case <-time.After(time.Second):
		t.Fatal("未收到故障回调")
	}
}
