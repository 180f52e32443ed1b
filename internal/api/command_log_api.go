package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/pulse-server/internal/models"
	"github.com/wfunc/pulse-server/internal/repository"
)

// CommandLogAPI 仪器通信日志API
type CommandLogAPI struct {
	logs      *repository.CommandLogRepository
	snapshots *repository.SnapshotRepository
}

// NewCommandLogAPI 创建日志API
func NewCommandLogAPI(logs *repository.CommandLogRepository, snapshots *repository.SnapshotRepository) *CommandLogAPI {
	return &CommandLogAPI{
		logs:      logs,
		snapshots: snapshots,
	}
}

// RegisterRoutes 注册路由
func (api *CommandLogAPI) RegisterRoutes(router *gin.RouterGroup) {
	logs := router.Group("/command-logs")
	{
		logs.GET("", api.QueryLogs)            // 查询日志列表
		logs.GET("/latest", api.GetLatestLogs) // 获取最新日志
		logs.GET("/stats", api.GetStats)       // 获取统计信息
		logs.GET("/errors", api.GetErrorLogs)  // 获取错误日志
		logs.POST("/cleanup", api.CleanupLogs) // 清理旧日志
	}

	snapshots := router.Group("/snapshots")
	{
		snapshots.GET("", api.ListSnapshots)         // 快照列表
		snapshots.GET("/latest", api.GetLatestSnapshot) // 最新快照
	}

	router.GET("/connection-events", api.GetConnectionEvents)
}

// QueryLogs 查询日志列表
func (api *CommandLogAPI) QueryLogs(c *gin.Context) {
	query := &models.CommandLogQuery{}

	// 解析查询参数
	if direction := c.Query("direction"); direction != "" {
		query.Direction = models.CommandDirection(direction)
	}
	query.Command = c.Query("command")
	query.Attribute = c.Query("attribute")
	query.Resource = c.Query("resource")

	// 时间范围
	if startTime := c.Query("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.StartTime = &t
		}
	}
	if endTime := c.Query("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			query.EndTime = &t
		}
	}

	// 是否有错误
	if hasError := c.Query("has_error"); hasError == "true" {
		b := true
		query.HasError = &b
	}

	// 分页参数
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	query.OrderBy = c.DefaultQuery("order_by", "created_at DESC")

	// 查询日志
	logs, total, err := api.logs.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatestLogs 获取最新日志
func (api *CommandLogAPI) GetLatestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	direction := models.CommandDirection(c.Query("direction"))

	logs, err := api.logs.GetLatest(limit, direction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": logs,
	})
}

// GetStats 获取统计信息
func (api *CommandLogAPI) GetStats(c *gin.Context) {
	var startTime, endTime *time.Time
	if s := c.Query("start_time"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			startTime = &t
		}
	}
	if e := c.Query("end_time"); e != "" {
		if t, err := time.Parse(time.RFC3339, e); err == nil {
			endTime = &t
		}
	}

	stats, err := api.logs.GetStats(startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "统计失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetErrorLogs 获取错误日志
func (api *CommandLogAPI) GetErrorLogs(c *gin.Context) {
	hasError := true
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, total, err := api.logs.Query(&models.CommandLogQuery{
		HasError: &hasError,
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"total": total,
	})
}

// CleanupLogs 清理旧日志
func (api *CommandLogAPI) CleanupLogs(c *gin.Context) {
	keepDays, _ := strconv.Atoi(c.DefaultQuery("keep_days", "30"))

	deleted, err := api.logs.CleanupLogs(keepDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "清理失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":   deleted,
		"keep_days": keepDays,
	})
}

// ListSnapshots 快照列表
func (api *CommandLogAPI) ListSnapshots(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	snapshots, total, err := api.snapshots.ListSnapshots(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   snapshots,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetLatestSnapshot 最新快照
func (api *CommandLogAPI) GetLatestSnapshot(c *gin.Context) {
	snapshot, err := api.snapshots.GetLatestSnapshot()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "暂无快照",
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// GetConnectionEvents 最新连接事件
func (api *CommandLogAPI) GetConnectionEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := api.snapshots.GetLatestEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": events,
	})
}
