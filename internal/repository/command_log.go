package repository

import (
	"time"

	"github.com/wfunc/pulse-server/internal/models"
	"gorm.io/gorm"
)

// CommandLogRepository 仪器通信日志仓库
type CommandLogRepository struct {
	db *gorm.DB
}

// NewCommandLogRepository 创建仪器通信日志仓库
func NewCommandLogRepository(db *gorm.DB) *CommandLogRepository {
	return &CommandLogRepository{
		db: db,
	}
}

// Create 创建日志记录
func (r *CommandLogRepository) Create(log *models.CommandLog) error {
	return r.db.Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *CommandLogRepository) CreateBatch(logs []*models.CommandLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.CreateInBatches(logs, 100).Error
}

// GetByID 根据ID获取日志
func (r *CommandLogRepository) GetByID(id uint) (*models.CommandLog, error) {
	var log models.CommandLog
	err := r.db.First(&log, id).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// Query 查询日志
func (r *CommandLogRepository) Query(query *models.CommandLogQuery) ([]*models.CommandLog, int64, error) {
	db := r.db.Model(&models.CommandLog{})

	// 构建查询条件
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Command != "" {
		db = db.Where("command LIKE ?", "%"+query.Command+"%")
	}
	if query.Attribute != "" {
		db = db.Where("attribute = ?", query.Attribute)
	}
	if query.Resource != "" {
		db = db.Where("resource = ?", query.Resource)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.HasError != nil && *query.HasError {
		db = db.Where("success = ?", false)
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 排序
	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	// 分页
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	// 查询数据
	var logs []*models.CommandLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// GetLatest 获取最新的日志记录
func (r *CommandLogRepository) GetLatest(limit int, direction models.CommandDirection) ([]*models.CommandLog, error) {
	var logs []*models.CommandLog
	db := r.db.Order("created_at DESC").Limit(limit)
	if direction != "" {
		db = db.Where("direction = ?", direction)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// GetStats 获取统计信息
func (r *CommandLogRepository) GetStats(startTime, endTime *time.Time) (*models.CommandLogStats, error) {
	stats := &models.CommandLogStats{}
	db := r.db.Model(&models.CommandLog{})

	// 时间范围过滤
	if startTime != nil {
		db = db.Where("created_at >= ?", *startTime)
	}
	if endTime != nil {
		db = db.Where("created_at <= ?", *endTime)
	}

	// 总数统计
	if err := db.Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	// 查询/写入统计
	if err := r.db.Model(&models.CommandLog{}).
		Where("direction = ?", models.CommandDirectionQuery).
		Count(&stats.TotalQueries).Error; err != nil {
		return nil, err
	}
	stats.TotalWrites = stats.TotalCount - stats.TotalQueries

	// 错误统计
	if err := r.db.Model(&models.CommandLog{}).
		Where("success = ?", false).
		Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	// 性能统计
	type DurationStats struct {
		AvgDuration float64
		MaxDuration int64
		MinDuration int64
	}
	var durationStats DurationStats
	if err := r.db.Model(&models.CommandLog{}).
		Select("AVG(duration) as avg_duration, MAX(duration) as max_duration, MIN(duration) as min_duration").
		Where("duration > 0").
		Scan(&durationStats).Error; err != nil {
		return nil, err
	}
	stats.AvgDuration = durationStats.AvgDuration
	stats.MaxDuration = durationStats.MaxDuration
	stats.MinDuration = durationStats.MinDuration

	return stats, nil
}

// DeleteOldLogs 删除旧日志
func (r *CommandLogRepository) DeleteOldLogs(beforeTime time.Time) (int64, error) {
	result := r.db.Unscoped().Where("created_at < ?", beforeTime).Delete(&models.CommandLog{})
	return result.RowsAffected, result.Error
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *CommandLogRepository) CleanupLogs(keepDays int) (int64, error) {
	if keepDays <= 0 {
		keepDays = 30
	}
	beforeTime := time.Now().AddDate(0, 0, -keepDays)
	return r.DeleteOldLogs(beforeTime)
}
