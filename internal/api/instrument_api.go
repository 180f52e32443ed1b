package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/errors"
	"github.com/wfunc/pulse-server/internal/instrument"
	"github.com/wfunc/pulse-server/internal/scpi"
)

// InstrumentAPI 仪器控制API
type InstrumentAPI struct {
	controller instrument.PulseController
	cfg        *config.VISAConfig
}

// NewInstrumentAPI 创建仪器控制API
func NewInstrumentAPI(controller instrument.PulseController, cfg *config.VISAConfig) *InstrumentAPI {
	return &InstrumentAPI{
		controller: controller,
		cfg:        cfg,
	}
}

// StatusResponse 仪器状态响应
type StatusResponse struct {
	State      instrument.DeviceState `json:"state"`
	Connected  bool                   `json:"connected"`
	Identity   string                 `json:"identity,omitempty"`
	Address    string                 `json:"address,omitempty"`
	Attributes []string               `json:"attributes"`
}

// GetStatus 获取仪器状态
func (api *InstrumentAPI) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, &StatusResponse{
		State:      api.controller.State(),
		Connected:  api.controller.IsConnected(),
		Identity:   api.controller.Identity(),
		Address:    api.controller.Address(),
		Attributes: scpi.Names(),
	})
}

// ConnectRequest 连接请求，address为空时使用配置中的资源
type ConnectRequest struct {
	Address string `json:"address"`
}

// Connect 连接仪器
func (api *InstrumentAPI) Connect(c *gin.Context) {
	var req ConnectRequest
	// 空请求体也是合法的
	_ = c.ShouldBindJSON(&req)

	address := req.Address
	if address == "" {
		address = api.cfg.Resource
	}

	if err := api.controller.Connect(address); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":    api.controller.State(),
		"identity": api.controller.Identity(),
		"address":  address,
	})
}

// Disconnect 断开仪器连接
func (api *InstrumentAPI) Disconnect(c *gin.Context) {
	if err := api.controller.Disconnect(); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state": api.controller.State(),
	})
}

// GetSettings 读取全部属性
func (api *InstrumentAPI) GetSettings(c *gin.Context) {
	settings, err := api.controller.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": settings,
	})
}

// GetSetting 读取单个属性
func (api *InstrumentAPI) GetSetting(c *gin.Context) {
	name := c.Param("name")

	value, err := api.controller.Get(name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  name,
		"value": value,
	})
}

// SetSettingRequest 写入属性请求
// value不加required校验：false和0都是合法的写入值。
type SetSettingRequest struct {
	Value interface{} `json:"value"`
}

// SetSetting 写入单个属性并返回回读值
func (api *InstrumentAPI) SetSetting(c *gin.Context) {
	name := c.Param("name")

	var req SetSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "请求格式错误"))
		return
	}
	if req.Value == nil {
		respondError(c, errors.New(errors.ErrInvalidParam, "缺少value字段"))
		return
	}

	value, err := api.controller.Set(name, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  name,
		"value": value,
	})
}

// Trigger 手动触发一次脉冲
func (api *InstrumentAPI) Trigger(c *gin.Context) {
	if err := api.controller.ManualTrigger(); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"triggered": true,
	})
}

// SelfTest 执行仪器自检并返回自检后的设备状态
func (api *InstrumentAPI) SelfTest(c *gin.Context) {
	if err := api.controller.SelfTest(); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"passed": true,
		"state":  api.controller.State(),
	})
}

// CommandRequest 原始命令请求
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// SendCommand 发送原始写命令
func (api *InstrumentAPI) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "请求格式错误"))
		return
	}

	if err := api.controller.Command(req.Command); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"command": req.Command,
	})
}

// SendQuery 发送原始查询命令
func (api *InstrumentAPI) SendQuery(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "请求格式错误"))
		return
	}

	response, err := api.controller.Query(req.Command)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"command":  req.Command,
		"response": response,
	})
}
