package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 所有实体（流水、周期账单、储蓄基金、分类、账户）的主键都由这里生成，
// 不依赖数据库自增：
//   1. 在事务提交之前就能拿到 ID，便于写入 outbox 消息
//   2. 趋势递增，按 id DESC 排序即接近创建时间倒序
//   3. MySQL 与 SQLite 行为一致
//
// 【结构】64位
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// NewSnowflake 创建生成器，workerID 取值 0-1023
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认ID生成器，只有第一次调用生效
func Init(workerID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

// NextID 生成下一个ID
func NextID() int64 {
	once.Do(func() {
		defaultGenerator, _ = NewSnowflake(1)
	})
	return defaultGenerator.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else if now < s.timestamp {
		// 时钟回拨时沿用上一次的时间戳，保证单调递增
		now = s.timestamp
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			now++
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateEventKey 生成事件消息的业务键
// 格式：EVT + 年月日时分秒 + 雪花ID后8位，例如 EVT2024011514305212345678
func GenerateEventKey() string {
	id := NextID()
	timestamp := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("EVT%s%08d", timestamp, id%100000000)
}
