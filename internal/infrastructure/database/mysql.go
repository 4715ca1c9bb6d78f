package database

import (
	"fmt"
	"log"
	"time"

	"freshjuice/internal/config"
	"freshjuice/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 连接
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("连接 MySQL 失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取底层 DB 失败: %v", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := AutoMigrate(db); err != nil {
		log.Fatalf("自动迁移表结构失败: %v", err)
	}

	if err := SeedProducts(db); err != nil {
		log.Fatalf("初始化商品数据失败: %v", err)
	}

	DB = db
	log.Println("MySQL 连接成功")
	return db
}

// AutoMigrate 迁移全部表结构，测试环境用 sqlite 时也走这里
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Order{},
		&model.LedgerEntry{},
		&model.OutboxMessage{},
	)
}

// SeedProducts 写入初始商品目录，已存在的 ID 不覆盖
func SeedProducts(db *gorm.DB) error {
	products := []model.Product{
		{
			ID:          1,
			Name:        "Classic Orange Juice",
			Description: "Pure, fresh-squeezed orange with no additives, just pure goodness.",
			Price:       89,
			Category:    "classic",
			Image:       "/images/orange-juice.jpg",
			Stock:       100,
			Features:    `["100% Natural","No Sugar Added","Fresh Squeezed"]`,
			IsPopular:   true,
		},
		{
			ID:          2,
			Name:        "Pulp Delight",
			Description: "Extra pulpy orange juice for those who love the real fruit texture.",
			Price:       99,
			Category:    "premium",
			Image:       "/images/pulp-delight.jpg",
			Stock:       75,
			Features:    `["Extra Pulp","Rich Texture","Vitamin C Boost"]`,
			IsPopular:   true,
		},
		{
			ID:          3,
			Name:        "Vitamin Boost",
			Description: "Fortified with extra vitamins and minerals for your daily health needs.",
			Price:       119,
			Category:    "premium",
			Image:       "/images/vitamin-boost.jpg",
			Stock:       50,
			Features:    `["Vitamin Fortified","Immunity Boost","Energy Plus"]`,
			IsPopular:   true,
		},
		{
			ID:          4,
			Name:        "Tropical Fusion",
			Description: "A delightful blend of orange, mango, and passion fruit.",
			Price:       129,
			Category:    "fusion",
			Image:       "/images/tropical-fusion.jpg",
			Stock:       60,
			Features:    `["Exotic Blend","Refreshing","Natural Sweetness"]`,
			IsPopular:   false,
		},
		{
			ID:          5,
			Name:        "Green Detox",
			Description: "Orange juice mixed with spinach and cucumber for a healthy cleanse.",
			Price:       139,
			Category:    "healthy",
			Image:       "/images/green-detox.jpg",
			Stock:       40,
			Features:    `["Detoxifying","Low Calorie","Nutrient Rich"]`,
			IsPopular:   false,
		},
	}

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}
