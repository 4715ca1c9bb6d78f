package model

import (
	"time"
)

// ============================================================================
// 积分变动原因
// ============================================================================
//
// 原因是开放枚举：以下是系统内置值，协作方传入的其他非空值原样落库

const (
	ReasonOrderCompleted   = "order_completed"   // 下单完成赠送
	ReasonRedemption       = "redemption"        // 积分兑换
	ReasonManualAdjustment = "manual_adjustment" // 人工调整
)

// ============================================================================
// 积分流水实体
// ============================================================================

// LedgerEntry 积分流水表
// 记录账户的每一笔积分变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 每笔流水记录变动后余额快照 —— 便于校验余额一致性
// 3. 用户当前余额必须等于其全部流水 delta 之和
type LedgerEntry struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo          string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"` // 流水号（全局唯一）
	UserID           int64     `gorm:"index;not null" json:"user_id"`
	Delta            int64     `gorm:"not null" json:"delta"`                  // 正数入账，负数出账，不为 0
	Reason           string    `gorm:"type:varchar(32);not null" json:"reason"`
	ResultingBalance int64     `gorm:"not null" json:"resulting_balance"`      // 本笔入账后的余额快照
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
