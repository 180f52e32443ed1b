package instrument

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/errors"
)

func TestMockConnectLifecycle(t *testing.T) {
	m := NewMockController()
	assert.Equal(t, StateInit, m.State())
	assert.Empty(t, m.Identity())

	err := m.Connect("ASRL1::INSTR")
	require.NoError(t, err)
	assert.Equal(t, StateOn, m.State())
	assert.True(t, m.IsConnected())
	assert.Contains(t, m.Identity(), "8131A")

	err = m.Connect("ASRL1::INSTR")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentBusy))

	require.NoError(t, m.Disconnect())
	assert.Equal(t, StateOff, m.State())
}

func TestMockRejectsMalformedAddress(t *testing.T) {
	m := NewMockController()
	err := m.Connect("GPIB::99::INSTR")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResourceMalformed))
	assert.Equal(t, StateInit, m.State())
}

func TestMockGetSet(t *testing.T) {
	m := NewMockController()
	require.NoError(t, m.Connect("ASRL1::INSTR"))

	v, err := m.Get("period")
	require.NoError(t, err)
	assert.InDelta(t, 1e-6, v.(float64), 1e-12)

	v, err = m.Set("width2", 50e-9)
	require.NoError(t, err)
	assert.InDelta(t, 50e-9, v.(float64), 1e-15)

	v, err = m.Get("width2")
	require.NoError(t, err)
	assert.InDelta(t, 50e-9, v.(float64), 1e-15)

	v, err = m.Set("trigger_mode", "GATE")
	require.NoError(t, err)
	assert.Equal(t, "GATE", v)

	_, err = m.Set("high1", 6.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValueOutOfRange))

	_, err = m.Set("bogus", 1.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownAttribute))
}

func TestMockSnapshot(t *testing.T) {
	m := NewMockController()

	_, err := m.Snapshot()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstrumentOffline))

	require.NoError(t, m.Connect("ASRL1::INSTR"))
	_, err = m.Set("enabled1", true)
	require.NoError(t, err)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap, 17)
	assert.Equal(t, true, snap["enabled1"])
	assert.Equal(t, "AUTO", snap["trigger_mode"])
}

func TestMockCommandHook(t *testing.T) {
	m := NewMockController()
	var records []*CommandRecord
	m.SetCommandHook(func(rec *CommandRecord) {
		records = append(records, rec)
	})

	require.NoError(t, m.Connect("ASRL1::INSTR"))
	_, err := m.Set("period", 3e-6)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(records), 2)
	last := records[len(records)-1]
	assert.Equal(t, ":PULS:TIM:PER 3e-06", last.Command)
	assert.False(t, last.IsQuery)
	assert.True(t, last.Success)
}

func TestMockTriggerAndSelfTest(t *testing.T) {
	m := NewMockController()

	require.Error(t, m.ManualTrigger())
	require.Error(t, m.SelfTest())

	var records []*CommandRecord
	m.SetCommandHook(func(rec *CommandRecord) {
		records = append(records, rec)
	})

	require.NoError(t, m.Connect("ASRL1::INSTR"))
	require.NoError(t, m.ManualTrigger())
	require.NoError(t, m.SelfTest())
	assert.Equal(t, StateOn, m.State())

	require.GreaterOrEqual(t, len(records), 2)
	assert.Equal(t, "*TRG", records[len(records)-2].Command)
	assert.Equal(t, "*TST?", records[len(records)-1].Command)
}

func TestPollerSnapshot(t *testing.T) {
	m := NewMockController()
	require.NoError(t, m.Connect("ASRL1::INSTR"))

	p := NewPoller(m, time.Hour)
	snap := p.Poll()
	require.NotNil(t, snap)
	assert.Equal(t, StateOn, snap.State)
	assert.Len(t, snap.Settings, 17)
	assert.Contains(t, snap.Identity, "8131A")
}

func TestPollerCallback(t *testing.T) {
	m := NewMockController()
	require.NoError(t, m.Connect("ASRL1::INSTR"))

	p := NewPoller(m, 20*time.Millisecond)
	ch := make(chan *StatusSnapshot, 4)
	p.SetSnapshotCallback(func(s *StatusSnapshot) {
		select {
		case ch <- s:
		default:
		}
	})

	p.Start()
	defer p.Stop()

	select {
	case snap := <-ch:
		assert.Equal(t, StateOn, snap.State)
	case <-time.After(time.Second):
		t.Fatal("轮询回调未触发")
	}
}

func TestPollerOffline(t *testing.T) {
	m := NewMockController()
	p := NewPoller(m, time.Hour)

	snap := p.Poll()
	assert.Equal(t, StateInit, snap.State)
	assert.Nil(t, snap.Settings)
}

func TestReconnectManager(t *testing.T) {
	m := NewMockController()
	require.NoError(t, m.Connect("ASRL1::INSTR"))

	mgr := NewReconnectManager(m, &config.ReconnectConfig{
		Enabled:  true,
		Interval: 10 * time.Millisecond,
	})

	reconnected := make(chan struct{}, 1)
	mgr.SetReconnectCallback(func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	mgr.Start("ASRL1::INSTR")
	defer mgr.Stop()

	// 模拟断线后触发重连
	require.NoError(t, m.Disconnect())
	mgr.TriggerReconnect()

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("重连未完成")
	}
	assert.True(t, m.IsConnected())
}
