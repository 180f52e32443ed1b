package database

import (
	"fmt"

	"github.com/wfunc/pulse-server/internal/logger"
	"github.com/wfunc/pulse-server/internal/models"
	"go.uber.org/zap"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 清理过期锁文件
	CleanupStaleLocks()

	// 获取迁移锁，避免多个进程同时迁移
	dbPath := getDBPath()
	if dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	migrationModels := []interface{}{
		// 仪器通信
		&models.CommandLog{},
		&models.SettingSnapshot{},
		&models.ConnectionEvent{},
	}

	// 执行迁移
	logger.Info("开始数据库迁移...")

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	// 创建索引
	if err := createIndexes(); err != nil {
		return err
	}

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建数据库索引
func createIndexes() error {
	// 通信日志表索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_command_logs_direction ON command_logs(direction)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_command_logs_direction"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_command_logs_attribute ON command_logs(attribute)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_command_logs_attribute"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_command_logs_created_at ON command_logs(created_at)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_command_logs_created_at"), zap.Error(err))
	}

	// 快照表索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_setting_snapshots_created_at ON setting_snapshots(created_at)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_setting_snapshots_created_at"), zap.Error(err))
	}

	// 连接事件表索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_connection_events_event ON connection_events(event)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_connection_events_event"), zap.Error(err))
	}

	logger.Info("数据库索引创建完成")
	return nil
}
