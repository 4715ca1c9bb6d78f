package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 积分的增减是读-算-写三步，多实例部署时同一账户的并发请求必须串行，
// 否则两笔同时到达的加分会基于同一个旧余额计算，丢掉一笔（lost update）。
//
// 加锁：SET key value NX EX timeout
//   - NX 保证互斥，EX 防止持有者崩溃后死锁
//   - value 是持有者令牌，释放时校验，避免误删他人的锁
//
// 释放：Lua 脚本原子执行"校验 value + DEL"

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者令牌
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 有限重试获取锁，重试耗尽返回 ErrLockFailed，不会无限阻塞
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 锁可能在持有期间过期并被他人抢走，所以先校验 value 再删除，
// 两步必须在 Lua 脚本内原子完成
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewAccountLock 创建积分账户锁（按账户标识维度）
//
// 锁粒度是单个账户：同一账户的积分操作串行，不同账户互不阻塞
func NewAccountLock(client *redis.Client, email, holderToken string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("loyalty:lock:acct:%s", email)
	return NewDistributedLock(client, key, holderToken, ttl)
}
