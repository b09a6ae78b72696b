// Package gormpersistence 以 MySQL 单表（每房间一行，笔划日志存为 JSON 文本列）
// 的形式持久化笔划日志。
package gormpersistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// boardRecord 是笔划日志在数据库中的表结构
type boardRecord struct {
	RoomID    string    `gorm:"primaryKey;size:191"`
	Strokes   string    `gorm:"type:longtext;not null"` // JSON 序列化后的笔划数组
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (boardRecord) TableName() string { return "boards" }

// GormBoardRepository 是 BoardRepository 接口的 GORM 实现
type GormBoardRepository struct {
	db *gorm.DB
}

// NewGormBoardRepository 创建 GormBoardRepository 实例
func NewGormBoardRepository(db *gorm.DB) *GormBoardRepository {
	if db == nil {
		panic("database connection cannot be nil for GormBoardRepository")
	}
	return &GormBoardRepository{db: db}
}

// Migrate 创建 boards 表（幂等）。
func (r *GormBoardRepository) Migrate() error {
	if err := r.db.AutoMigrate(&boardRecord{}); err != nil {
		return fmt.Errorf("gorm: migrate boards table: %w", err)
	}
	return nil
}

// Save 以 upsert 方式整体覆盖房间的笔划日志。
func (r *GormBoardRepository) Save(ctx context.Context, roomID string, strokes []domain.Stroke) error {
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	data, err := json.Marshal(strokes)
	if err != nil {
		return fmt.Errorf("gorm: marshal strokes for room %s: %w", roomID, err)
	}
	record := boardRecord{RoomID: roomID, Strokes: string(data)}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"strokes", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("gorm: save board for room %s: %w", roomID, err)
	}
	return nil
}

// Load 读取房间的笔划日志；无记录映射为 ErrBoardNotFound。
func (r *GormBoardRepository) Load(ctx context.Context, roomID string) ([]domain.Stroke, error) {
	var record boardRecord
	err := r.db.WithContext(ctx).First(&record, "room_id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrBoardNotFound
		}
		return nil, fmt.Errorf("gorm: load board for room %s: %w", roomID, err)
	}
	var strokes []domain.Stroke
	if err := json.Unmarshal([]byte(record.Strokes), &strokes); err != nil {
		return nil, fmt.Errorf("gorm: unmarshal board for room %s: %w", roomID, err)
	}
	return strokes, nil
}
