package repository

import (
	"context"
	"errors"

	"freshjuice/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("用户不存在")
	ErrPointsNotEnough = errors.New("积分不足")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateBalance 按版本号 CAS 更新积分余额
//
// 余额只会随版本号一起变化，所以 version 命中即代表读到的余额仍然有效，
// 新余额由调用方基于该次读取计算。更新失败返回 ErrOptimisticLock，由上层重读重试
func (r *UserRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, userID int64, newBalance int64, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND version = ?", userID, version).
		Updates(map[string]interface{}{
			"loyalty_balance": newBalance,
			"version":         gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	return nil
}

// ListPage 按主键顺序分页取用户，供对账任务批量扫描
func (r *UserRepository) ListPage(ctx context.Context, afterID int64, limit int) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
