package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"freshjuice/internal/config"
	"freshjuice/internal/infrastructure/lock"
	"freshjuice/internal/model"
	"freshjuice/internal/repository"
	"freshjuice/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidPoints  = errors.New("积分数必须大于0")
	ErrTooManyRetries = errors.New("并发冲突，重试次数耗尽")
)

const defaultHistoryLimit = 20

// LoyaltyService 积分台账核心
//
// 【关键点】积分增减必须保证：
// 1. 原子性：余额更新、流水追加、outbox 事件在同一事务内，同成功同失败
// 2. 并发安全：同一账户串行（账户级分布式锁 + 版本号 CAS 兜底），
//    不同账户互不阻塞；余额任何时刻不可见为负
// 3. 可审计：流水只追加，余额永远等于流水 delta 之和
type LoyaltyService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	userRepo    *repository.UserRepository
	ledgerRepo  *repository.LedgerRepository
	outboxRepo  *repository.OutboxRepository
}

func NewLoyaltyService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *LoyaltyService {
	return &LoyaltyService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		userRepo:    repository.NewUserRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// GetBalance 查询积分余额，账户不存在返回 ErrUserNotFound
func (s *LoyaltyService) GetBalance(ctx context.Context, email string) (int64, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return user.LoyaltyBalance, nil
}

// Credit 加积分，返回变动后余额
func (s *LoyaltyService) Credit(ctx context.Context, email string, points int64, reason string) (int64, error) {
	if points <= 0 {
		return 0, ErrInvalidPoints
	}
	return s.apply(ctx, email, points, normalizeReason(reason, model.ReasonOrderCompleted))
}

// Debit 扣积分，余额不足返回 ErrPointsNotEnough，不会扣成负数
func (s *LoyaltyService) Debit(ctx context.Context, email string, points int64, reason string) (int64, error) {
	if points <= 0 {
		return 0, ErrInvalidPoints
	}
	return s.apply(ctx, email, -points, normalizeReason(reason, model.ReasonRedemption))
}

// apply 执行一笔积分变动
//
// 流程：账户锁内 读余额 -> 算新余额 -> 事务内 CAS 更新余额 + 追加流水 + 写 outbox。
// 版本号没命中说明有别的实例改过余额（比如锁过期被抢），重读重试，
// 重试耗尽返回 ErrTooManyRetries，不做无界阻塞
func (s *LoyaltyService) apply(ctx context.Context, email string, delta int64, reason string) (int64, error) {
	// 先确认账户存在再抢锁，未知账户不占锁
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return 0, err
	}

	acctLock := lock.NewAccountLock(
		s.redisClient,
		email,
		uuid.NewString(),
		time.Duration(s.cfg.Loyalty.LockTTLSeconds)*time.Second,
	)
	retryInterval := time.Duration(s.cfg.Loyalty.LockRetryIntervalMs) * time.Millisecond
	if err := acctLock.Lock(ctx, retryInterval, s.cfg.Loyalty.LockMaxRetries); err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return 0, ErrTooManyRetries
		}
		return 0, fmt.Errorf("获取账户锁失败: %w", err)
	}
	defer acctLock.Unlock(ctx)

	for i := 0; i < s.cfg.Loyalty.MaxRetries; i++ {
		user, err = s.userRepo.GetByEmail(ctx, email)
		if err != nil {
			return 0, err
		}

		newBalance := user.LoyaltyBalance + delta
		if newBalance < 0 {
			return 0, repository.ErrPointsNotEnough
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.userRepo.UpdateBalance(ctx, tx, user.ID, newBalance, user.Version); err != nil {
				return err
			}

			entry := &model.LedgerEntry{
				EntryNo:          idgen.GenerateEntryNo(),
				UserID:           user.ID,
				Delta:            delta,
				Reason:           reason,
				ResultingBalance: newBalance,
			}
			if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
				return fmt.Errorf("记录积分流水失败: %w", err)
			}

			payload, _ := json.Marshal(map[string]interface{}{
				"entry_no":          entry.EntryNo,
				"email":             email,
				"delta":             delta,
				"reason":            reason,
				"resulting_balance": newBalance,
				"occurred_at":       time.Now().Format(time.RFC3339),
			})
			outboxMsg := &model.OutboxMessage{
				MessageKey: entry.EntryNo,
				Topic:      s.cfg.Kafka.Topic.LoyaltyEvents,
				Payload:    string(payload),
				Status:     model.OutboxStatusPending,
			}
			if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
				return fmt.Errorf("写入积分事件失败: %w", err)
			}

			return nil
		})

		if err == nil {
			log.Printf("积分变动成功: email=%s, delta=%d, reason=%s, balance=%d", email, delta, reason, newBalance)
			return newBalance, nil
		}
		if errors.Is(err, repository.ErrOptimisticLock) {
			// 版本冲突，重读最新余额再试
			continue
		}
		return 0, err
	}

	return 0, ErrTooManyRetries
}

// History 按时间倒序查询积分流水，before 为翻页游标
func (s *LoyaltyService) History(ctx context.Context, email string, limit int, before *time.Time) ([]*model.LedgerEntry, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if max := s.cfg.Loyalty.HistoryMaxLimit; max > 0 && limit > max {
		limit = max
	}

	return s.ledgerRepo.ListByUserID(ctx, user.ID, limit, before)
}

// normalizeReason 原因是开放枚举：空值落到操作默认值，其他值原样保留
func normalizeReason(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
