package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"freshjuice/internal/config"
	"freshjuice/internal/infrastructure/database"
	"freshjuice/internal/model"
	"freshjuice/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupLoyalty(t *testing.T) (*LoyaltyService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000", filepath.Join(t.TempDir(), "loyalty.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Loyalty: config.LoyaltyConfig{
			MaxRetries:          10,
			LockTTLSeconds:      5,
			LockRetryIntervalMs: 1,
			LockMaxRetries:      5000,
			HistoryMaxLimit:     100,
		},
		Business: config.BusinessConfig{MaxRetryCount: 3},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{LoyaltyEvents: "freshjuice.loyalty.events"},
		},
	}

	return NewLoyaltyService(db, rdb, cfg), db
}

func seedAccount(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	user := &model.User{Name: "Tester", Email: email, Password: "x", Role: model.RoleCustomer}
	require.NoError(t, db.Create(user).Error)
	return user
}

func ledgerSum(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, db.Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error)
	return sum
}

func TestCreditDebitScenario(t *testing.T) {
	svc, db := setupLoyalty(t)
	ctx := context.Background()
	email := "scenario@example.com"
	user := seedAccount(t, db, email)

	// 未知账户
	_, err := svc.GetBalance(ctx, "nobody@example.com")
	require.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = svc.Credit(ctx, "nobody@example.com", 10, "")
	require.ErrorIs(t, err, repository.ErrUserNotFound)

	// 非法参数：0 和负数都不产生任何变化
	_, err = svc.Credit(ctx, email, 0, "")
	require.ErrorIs(t, err, ErrInvalidPoints)
	_, err = svc.Debit(ctx, email, -5, "")
	require.ErrorIs(t, err, ErrInvalidPoints)

	balance, err := svc.Credit(ctx, email, 100, "")
	require.NoError(t, err)
	require.EqualValues(t, 100, balance)

	// 余额不足：余额保持不变
	_, err = svc.Debit(ctx, email, 150, "")
	require.ErrorIs(t, err, repository.ErrPointsNotEnough)
	balance, err = svc.GetBalance(ctx, email)
	require.NoError(t, err)
	require.EqualValues(t, 100, balance)

	balance, err = svc.Debit(ctx, email, 40, "")
	require.NoError(t, err)
	require.EqualValues(t, 60, balance)

	// 自定义原因原样落库，空原因落到操作默认值
	_, err = svc.Credit(ctx, email, 5, "birthday_bonus")
	require.NoError(t, err)

	var entries []model.LedgerEntry
	require.NoError(t, db.Where("user_id = ?", user.ID).Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 3)
	require.Equal(t, model.ReasonOrderCompleted, entries[0].Reason)
	require.Equal(t, model.ReasonRedemption, entries[1].Reason)
	require.Equal(t, "birthday_bonus", entries[2].Reason)

	// 不变式：余额 == 流水 delta 之和，每条流水带余额快照
	require.EqualValues(t, 65, ledgerSum(t, db, user.ID))
	require.EqualValues(t, 100, entries[0].ResultingBalance)
	require.EqualValues(t, 60, entries[1].ResultingBalance)
	require.EqualValues(t, 65, entries[2].ResultingBalance)

	// 每笔成功变动写一条待发送事件
	var outboxCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("status = ?", model.OutboxStatusPending).
		Count(&outboxCount).Error)
	require.EqualValues(t, 3, outboxCount)
}

func TestConcurrentCredits(t *testing.T) {
	svc, db := setupLoyalty(t)
	ctx := context.Background()
	email := "concurrent@example.com"
	user := seedAccount(t, db, email)

	const workers = 100

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(ctx, email, 1, "")
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	var fresh model.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.EqualValues(t, workers, fresh.LoyaltyBalance)

	var count int64
	require.NoError(t, db.Model(&model.LedgerEntry{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, workers, count)
	require.EqualValues(t, workers, ledgerSum(t, db, user.ID))
}

func TestConcurrentDebitsNeverNegative(t *testing.T) {
	svc, db := setupLoyalty(t)
	ctx := context.Background()
	email := "race@example.com"
	user := seedAccount(t, db, email)

	_, err := svc.Credit(ctx, email, 100, "")
	require.NoError(t, err)

	// 两笔并发扣减加起来超出余额，最多允许一笔成功
	amounts := []int64{100, 1}
	results := make([]error, len(amounts))

	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			_, results[i] = svc.Debit(ctx, email, amount, "")
		}(i, amount)
	}
	wg.Wait()

	var successTotal int64
	successes := 0
	for i, err := range results {
		if err == nil {
			successes++
			successTotal += amounts[i]
		} else {
			require.ErrorIs(t, err, repository.ErrPointsNotEnough)
		}
	}
	require.Equal(t, 1, successes)

	var fresh model.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.EqualValues(t, 100-successTotal, fresh.LoyaltyBalance)
	require.GreaterOrEqual(t, fresh.LoyaltyBalance, int64(0))
	require.Equal(t, fresh.LoyaltyBalance, ledgerSum(t, db, user.ID))
}

func TestHistoryPagination(t *testing.T) {
	svc, db := setupLoyalty(t)
	ctx := context.Background()
	email := "pages@example.com"
	seedAccount(t, db, email)

	for _, points := range []int64{1, 2, 3, 4, 5} {
		_, err := svc.Credit(ctx, email, points, "")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	// 默认 limit，时间倒序
	entries, err := svc.History(ctx, email, 0, nil)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	require.EqualValues(t, 5, entries[0].Delta)
	require.EqualValues(t, 1, entries[4].Delta)

	// limit 截断
	entries, err = svc.History(ctx, email, 2, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.EqualValues(t, 5, entries[0].Delta)
	require.EqualValues(t, 4, entries[1].Delta)

	// before 游标取下一页
	cursor := entries[1].CreatedAt
	entries, err = svc.History(ctx, email, 2, &cursor)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.EqualValues(t, 3, entries[0].Delta)
	require.EqualValues(t, 2, entries[1].Delta)

	// limit 超过上限被钳制
	entries, err = svc.History(ctx, email, 10000, nil)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// 未知账户
	_, err = svc.History(ctx, "nobody@example.com", 10, nil)
	require.ErrorIs(t, err, repository.ErrUserNotFound)
}
