package model

import (
	"time"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User 用户表
// 既是商城账号，也是积分账户：loyalty_balance 是积分流水的物化余额，
// 任何时刻都必须等于该用户所有流水 delta 之和，且不能为负
type User struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(64);not null" json:"name"`
	Email          string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"` // 账户标识
	Password       string    `gorm:"type:varchar(128);not null" json:"-"`                 // bcrypt 哈希
	Phone          string    `gorm:"type:varchar(32)" json:"phone"`
	Address        string    `gorm:"type:varchar(256)" json:"address"`
	Role           string    `gorm:"type:varchar(16);not null;default:customer" json:"role"`
	LoyaltyBalance int64     `gorm:"not null;default:0" json:"loyalty_balance"` // 积分余额（>= 0）
	Version        int       `gorm:"not null;default:0" json:"version"`         // 乐观锁版本号
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
