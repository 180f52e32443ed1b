package repository

import (
	"time"

	"github.com/wfunc/pulse-server/internal/models"
	"gorm.io/gorm"
)

// SnapshotRepository 设置快照与连接事件仓库
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository 创建快照仓库
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{
		db: db,
	}
}

// CreateSnapshot 保存一次设置快照
func (r *SnapshotRepository) CreateSnapshot(snapshot *models.SettingSnapshot) error {
	return r.db.Create(snapshot).Error
}

// GetLatestSnapshot 获取最新快照
func (r *SnapshotRepository) GetLatestSnapshot() (*models.SettingSnapshot, error) {
	var snapshot models.SettingSnapshot
	err := r.db.Order("created_at DESC").First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListSnapshots 按时间倒序列出快照
func (r *SnapshotRepository) ListSnapshots(limit, offset int) ([]*models.SettingSnapshot, int64, error) {
	var total int64
	if err := r.db.Model(&models.SettingSnapshot{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db := r.db.Order("created_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var snapshots []*models.SettingSnapshot
	if err := db.Find(&snapshots).Error; err != nil {
		return nil, 0, err
	}
	return snapshots, total, nil
}

// DeleteOldSnapshots 删除旧快照
func (r *SnapshotRepository) DeleteOldSnapshots(beforeTime time.Time) (int64, error) {
	result := r.db.Unscoped().Where("created_at < ?", beforeTime).Delete(&models.SettingSnapshot{})
	return result.RowsAffected, result.Error
}

// CreateEvent 记录一次连接事件
func (r *SnapshotRepository) CreateEvent(event *models.ConnectionEvent) error {
	return r.db.Create(event).Error
}

// GetLatestEvents 获取最新的连接事件
func (r *SnapshotRepository) GetLatestEvents(limit int) ([]*models.ConnectionEvent, error) {
	var events []*models.ConnectionEvent
	err := r.db.Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}
