package job

import (
	"context"
	"log"
	"time"

	"freshjuice/internal/config"
	"freshjuice/internal/repository"

	"gorm.io/gorm"
)

// LedgerAuditJob 积分对账任务
//
// 余额字段本质是流水的物化缓存，周期性重算 sum(delta) 与余额比对，
// 出现漂移说明某条写路径绕过了台账，必须尽早暴露
type LedgerAuditJob struct {
	db         *gorm.DB
	userRepo   *repository.UserRepository
	ledgerRepo *repository.LedgerRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewLedgerAuditJob(db *gorm.DB, cfg *config.Config) *LedgerAuditJob {
	interval := time.Duration(cfg.Loyalty.AuditIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LedgerAuditJob{
		db:         db,
		userRepo:   repository.NewUserRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  200,
	}
}

func (j *LedgerAuditJob) Start(ctx context.Context) {
	log.Println("[LedgerAuditJob] 积分对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LedgerAuditJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[LedgerAuditJob] 任务停止")
			return
		case <-ticker.C:
			j.auditOnce(ctx)
		}
	}
}

func (j *LedgerAuditJob) Stop() {
	close(j.stopCh)
}

// auditOnce 全量扫描一轮，返回漂移账户数
func (j *LedgerAuditJob) auditOnce(ctx context.Context) int {
	driftCount := 0
	afterID := int64(0)

	for {
		users, err := j.userRepo.ListPage(ctx, afterID, j.batchSize)
		if err != nil {
			log.Printf("[LedgerAuditJob] 扫描用户失败: %v", err)
			return driftCount
		}
		if len(users) == 0 {
			break
		}

		for _, user := range users {
			sum, err := j.ledgerRepo.SumDeltaByUserID(ctx, user.ID)
			if err != nil {
				log.Printf("[LedgerAuditJob] 汇总流水失败: userID=%d, err=%v", user.ID, err)
				continue
			}
			if sum != user.LoyaltyBalance {
				driftCount++
				log.Printf("[LedgerAuditJob] 发现余额漂移: email=%s, balance=%d, ledgerSum=%d",
					user.Email, user.LoyaltyBalance, sum)
			}
		}

		afterID = users[len(users)-1].ID
	}

	if driftCount > 0 {
		log.Printf("[LedgerAuditJob] 本轮发现 %d 个漂移账户", driftCount)
	}
	return driftCount
}
