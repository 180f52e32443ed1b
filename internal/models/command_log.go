package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// CommandDirection 命令方向
type CommandDirection string

const (
	CommandDirectionQuery CommandDirection = "QUERY" // 查询（有响应）
	CommandDirectionWrite CommandDirection = "WRITE" // 写入（无响应）
)

// JSONData 用于存储JSON格式的数据
type JSONData map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSONData) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSONData) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, j)
}

// CommandLog 仪器通信日志
type CommandLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 命令相关
	Direction CommandDirection `gorm:"type:varchar(10);index;not null" json:"direction"` // 方向 (QUERY/WRITE)
	Command   string           `gorm:"type:varchar(255);index" json:"command"`           // 发送的命令
	Attribute string           `gorm:"type:varchar(50);index" json:"attribute,omitempty"` // 对应的属性名（原始命令为空）
	Response  string           `gorm:"type:text" json:"response,omitempty"`              // 仪器响应

	// 结果相关
	Success  bool   `gorm:"index;default:true" json:"success"`    // 是否成功
	ErrorMsg string `gorm:"type:text" json:"error_msg,omitempty"` // 错误信息

	// 连接信息
	Resource string `gorm:"type:varchar(255);index" json:"resource,omitempty"` // 资源地址

	// 性能指标
	Duration  int64 `gorm:"default:0" json:"duration,omitempty"` // 处理时长（毫秒）
	Timestamp int64 `gorm:"index" json:"timestamp"`              // Unix时间戳（毫秒）
}

// TableName 指定表名
func (CommandLog) TableName() string {
	return "command_logs"
}

// BeforeCreate 创建前的钩子
func (c *CommandLog) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Timestamp == 0 {
		c.Timestamp = time.Now().UnixMilli()
	}
	return nil
}

// CommandLogQuery 查询参数
type CommandLogQuery struct {
	Direction CommandDirection `json:"direction,omitempty"`
	Command   string           `json:"command,omitempty"`
	Attribute string           `json:"attribute,omitempty"`
	Resource  string           `json:"resource,omitempty"`
	StartTime *time.Time       `json:"start_time,omitempty"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	HasError  *bool            `json:"has_error,omitempty"`
	Limit     int              `json:"limit,omitempty"`
	Offset    int              `json:"offset,omitempty"`
	OrderBy   string           `json:"order_by,omitempty"`
}

// CommandLogStats 统计信息
type CommandLogStats struct {
	TotalCount   int64   `json:"total_count"`
	TotalQueries int64   `json:"total_queries"`
	TotalWrites  int64   `json:"total_writes"`
	TotalErrors  int64   `json:"total_errors"`
	AvgDuration  float64 `json:"avg_duration"`
	MaxDuration  int64   `json:"max_duration"`
	MinDuration  int64   `json:"min_duration"`
}
