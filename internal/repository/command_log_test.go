package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/pulse-server/internal/models"
)

func TestCommandLogCreate(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewCommandLogRepository(db)

	log := &models.CommandLog{
		Direction: models.CommandDirectionQuery,
		Command:   ":PULS:TIM:PER?",
		Attribute: "period",
		Response:  "1E-6",
		Success:   true,
		Resource:  "ASRL1::INSTR",
		Duration:  12,
	}
	require.NoError(t, repo.Create(log))
	require.NotZero(t, log.ID)
	assert.NotZero(t, log.Timestamp, "BeforeCreate应填充时间戳")

	got, err := repo.GetByID(log.ID)
	require.NoError(t, err)
	assert.Equal(t, ":PULS:TIM:PER?", got.Command)
	assert.Equal(t, "period", got.Attribute)
}

func TestCommandLogQuery(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewCommandLogRepository(db)

	logs := []*models.CommandLog{
		{Direction: models.CommandDirectionQuery, Command: "*IDN?", Success: true},
		{Direction: models.CommandDirectionQuery, Command: ":PULS:TIM:PER?", Attribute: "period", Success: true},
		{Direction: models.CommandDirectionWrite, Command: ":PULS:TIM:PER 2e-06", Attribute: "period", Success: true},
		{Direction: models.CommandDirectionWrite, Command: ":OUTP1:PULS:STAT 1", Attribute: "enabled1", Success: false, ErrorMsg: "等待响应超时"},
	}
	require.NoError(t, repo.CreateBatch(logs))

	// 按方向过滤
	got, total, err := repo.Query(&models.CommandLogQuery{
		Direction: models.CommandDirectionWrite,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, got, 2)

	// 按属性过滤
	got, total, err = repo.Query(&models.CommandLogQuery{
		Attribute: "period",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	// 命令模糊匹配
	got, total, err = repo.Query(&models.CommandLogQuery{
		Command: "IDN",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	// 仅错误
	hasError := true
	got, total, err = repo.Query(&models.CommandLogQuery{
		HasError: &hasError,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "等待响应超时", got[0].ErrorMsg)

	// 分页
	got, total, err = repo.Query(&models.CommandLogQuery{
		Limit: 2,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, got, 2)
}

func TestCommandLogGetLatest(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewCommandLogRepository(db)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(&models.CommandLog{
			Direction: models.CommandDirectionQuery,
			Command:   "*IDN?",
			Success:   true,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	logs, err := repo.GetLatest(3, "")
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestCommandLogStats(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewCommandLogRepository(db)

	require.NoError(t, repo.CreateBatch([]*models.CommandLog{
		{Direction: models.CommandDirectionQuery, Command: "*IDN?", Success: true, Duration: 10},
		{Direction: models.CommandDirectionQuery, Command: ":PULS:TIM:PER?", Success: true, Duration: 20},
		{Direction: models.CommandDirectionWrite, Command: ":PULS:TIM:PER 2e-06", Success: false, ErrorMsg: "x", Duration: 30},
	}))

	stats, err := repo.GetStats(nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalCount)
	assert.EqualValues(t, 2, stats.TotalQueries)
	assert.EqualValues(t, 1, stats.TotalWrites)
	assert.EqualValues(t, 1, stats.TotalErrors)
	assert.InDelta(t, 20.0, stats.AvgDuration, 0.01)
	assert.EqualValues(t, 30, stats.MaxDuration)
	assert.EqualValues(t, 10, stats.MinDuration)
}

func TestCommandLogCleanup(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewCommandLogRepository(db)

	old := &models.CommandLog{
		Direction: models.CommandDirectionQuery,
		Command:   "*IDN?",
		Success:   true,
		CreatedAt: time.Now().AddDate(0, 0, -60),
	}
	recent := &models.CommandLog{
		Direction: models.CommandDirectionQuery,
		Command:   "*IDN?",
		Success:   true,
	}
	require.NoError(t, repo.Create(old))
	require.NoError(t, repo.Create(recent))

	deleted, err := repo.CleanupLogs(30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, total, err := repo.Query(&models.CommandLogQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}
