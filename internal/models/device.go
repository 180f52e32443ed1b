package models

import (
	"time"

	"gorm.io/gorm"
)

// SettingSnapshot 仪器设置快照
type SettingSnapshot struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	State    string   `gorm:"type:varchar(10);index" json:"state"`    // 设备状态 (INIT/ON/OFF/FAULT)
	Identity string   `gorm:"type:varchar(255)" json:"identity"`      // *IDN?响应
	Resource string   `gorm:"type:varchar(255);index" json:"resource"` // 资源地址
	Settings JSONData `gorm:"type:json" json:"settings"`              // 属性名到值的映射
}

// TableName 指定表名
func (SettingSnapshot) TableName() string {
	return "setting_snapshots"
}

// BeforeCreate 创建前的钩子
func (s *SettingSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return nil
}

// ConnectionEvent 连接事件记录
type ConnectionEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	Event    string `gorm:"type:varchar(30);index;not null" json:"event"`    // connected/disconnected/reconnected/connect_failed
	Resource string `gorm:"type:varchar(255);index" json:"resource"`         // 资源地址
	ErrorMsg string `gorm:"type:text" json:"error_msg,omitempty"`            // 失败原因
	Identity string `gorm:"type:varchar(255)" json:"identity,omitempty"`     // 连接成功时的识别字符串
}

// TableName 指定表名
func (ConnectionEvent) TableName() string {
	return "connection_events"
}
