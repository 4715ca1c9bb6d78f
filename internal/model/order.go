package model

import (
	"time"
)

const (
	OrderStatusReceived       = "received"
	OrderStatusPreparing      = "preparing"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusReceived:       {OrderStatusPreparing},
	OrderStatusPreparing:      {OrderStatusOutForDelivery},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

const (
	PaymentModeCash   = "cash"
	PaymentModeOnline = "online"
	PaymentModeUPI    = "upi"
	PaymentModeCard   = "card"
)

func IsValidPaymentMode(mode string) bool {
	switch mode {
	case PaymentModeCash, PaymentModeOnline, PaymentModeUPI, PaymentModeCard:
		return true
	}
	return false
}

// Order 订单表
// user_id 允许为空，支持游客下单
type Order struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID      *int64    `gorm:"index" json:"user_id"`
	Name        string    `gorm:"type:varchar(64);not null" json:"name"`
	Phone       string    `gorm:"type:varchar(32);not null" json:"phone"`
	Address     string    `gorm:"type:varchar(256);not null" json:"address"`
	ProductID   int64     `gorm:"not null" json:"product_id"`
	ProductName string    `gorm:"type:varchar(128);not null" json:"product_name"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	TotalPrice  int64     `gorm:"not null" json:"total_price"`
	PaymentMode string    `gorm:"type:varchar(16);not null" json:"payment_mode"`
	Status      string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "juice_order"
}
