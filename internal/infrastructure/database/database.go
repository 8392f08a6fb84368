package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按 driver 打开数据库连接，不做迁移
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.LogMode {
		logLevel = logger.Info
	}
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// 日期字段统一按 UTC 存取
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	switch cfg.Driver {
	case config.DriverMySQL:
		return openMySQL(&cfg.MySQL, gormCfg)
	case config.DriverSQLite:
		return openSQLite(&cfg.SQLite, gormCfg)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}
}

func openMySQL(cfg *config.MySQLConfig, gormCfg *gorm.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("MySQL 连接成功")
	return db, nil
}

func openSQLite(cfg *config.SQLiteConfig, gormCfg *gorm.Config) (*gorm.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建 SQLite 目录失败: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path+"?_foreign_keys=on&_busy_timeout=5000"), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}

	// SQLite 只允许一个写连接
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	log.Printf("SQLite 打开成功: %s", cfg.Path)
	return db, nil
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Category{},
		&model.Account{},
		&model.LedgerEntry{},
		&model.RecurringDefinition{},
		&model.SavingFund{},
		&model.SavingContribution{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}
	return nil
}
