package main

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/pulse-server/internal/config"
)

// 配置热更新与读取并发进行，快照读取不应观察到撕裂的数据
func TestServerConfigHotReload(t *testing.T) {
	s := NewServer(&config.Config{
		VISA: config.VISAConfig{Resource: "ASRL1::INSTR"},
	})
	defer s.cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				cfg := s.config()
				assert.NotNil(t, cfg)
				assert.NotEmpty(t, cfg.VISA.Resource)
			}
		}()
	}

	for j := 0; j < 1000; j++ {
		s.cfg.Store(&config.Config{
			VISA: config.VISAConfig{
				Resource: fmt.Sprintf("ASRL%d::INSTR", j%4+1),
			},
		})
	}
	wg.Wait()

	s.cfg.Store(&config.Config{
		VISA: config.VISAConfig{Resource: "TCPIP::10.0.0.8::5025::SOCKET"},
	})
	assert.Equal(t, "TCPIP::10.0.0.8::5025::SOCKET", s.config().VISA.Resource)
}
