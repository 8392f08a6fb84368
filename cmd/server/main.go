package main

import (
	"fmt"
	"log"
	"os"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/cache"
	"fintrack/internal/infrastructure/database"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/infrastructure/mq"
	"fintrack/internal/repository"
	"fintrack/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

var (
	configPath string
	workerID   int64
)

var rootCmd = &cobra.Command{
	Use:   "fintrack",
	Short: "Personal finance tracker server",
	Long: `fintrack serves the ledger, recurring bills and savings API.
Running without a subcommand is the same as "fintrack serve".`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().Int64Var(&workerID, "worker-id", 1, "Snowflake worker id (0-1023), unique per instance")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载配置、初始化 ID 生成器并连接数据库
func bootstrap() (*config.Config, repository.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := idgen.Init(workerID); err != nil {
		return nil, nil, fmt.Errorf("初始化 ID 生成器失败: %w", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, err
	}
	return cfg, repository.NewGormStore(db), nil
}

// newLocker 启用 Redis 时使用分布式锁，否则退化为进程内锁（仅适合单实例）
func newLocker(cfg *config.Config) (lock.Locker, *redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Println("Redis 未启用，使用进程内锁")
		return lock.NewLocalLocker(), nil, nil
	}
	client, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client), client, nil
}

func newProducer(cfg *config.Config) (mq.Producer, error) {
	if !cfg.Kafka.Enabled {
		log.Println("Kafka 未启用，事件只写日志")
		return mq.NewLogProducer(), nil
	}
	return mq.NewKafkaProducer(&cfg.Kafka)
}
