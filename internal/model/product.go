package model

import (
	"time"
)

// Product 商品表
// Features 存 JSON 数组字符串
type Product struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(128);not null" json:"name"`
	Description string    `gorm:"type:varchar(512)" json:"description"`
	Price       int64     `gorm:"not null" json:"price"`
	Category    string    `gorm:"type:varchar(32);index" json:"category"`
	Image       string    `gorm:"type:varchar(256)" json:"image"`
	Stock       int       `gorm:"not null;default:0" json:"stock"`
	Features    string    `gorm:"type:text" json:"features"`
	IsPopular   bool      `gorm:"not null;default:false" json:"is_popular"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}
