package repository

import (
	"context"
	"time"

	"freshjuice/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create 追加一笔流水，必须在余额更新的同一事务内调用
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ListByUserID 按时间倒序取流水，before 为游标，翻页时传上一页最后一条的时间
func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, limit int, before *time.Time) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// SumDeltaByUserID 计算该用户所有流水 delta 之和，对账时与余额比对
func (r *LedgerRepository) SumDeltaByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *LedgerRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
