package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 周期账单锁
// ============================================================================
//
// 同一个周期账单的 markPaid / markUnpaid / 自动重置 必须串行执行。
// 数据库层的条件更新已经保证不会生成两条流水，这里的锁让并发请求排队，
// 而不是让后到的请求直接拿到"状态不合法"。
//
// 单实例部署用 LocalLocker，多实例部署用 RedisLocker。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止持有者崩溃后死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本保证"检查+删除"原子执行
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// Locker 按 key 互斥，Lock 返回的 unlock 必须调用
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RecurringKey 周期账单维度的锁 key
func RecurringKey(id int64) string {
	return fmt.Sprintf("fintrack:lock:recurring:%d", id)
}

// DistributedLock 单把 Redis 锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

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

// Lock 阻塞式获取锁（带重试）
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
		}
	}
	return ErrLockFailed
}

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// Unlock 释放锁，value 不匹配（锁已过期被他人持有）时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// RedisLocker 多实例部署时使用
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    30 * time.Second,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    100,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	// value 用随机 UUID，保证只有持有者能释放
	l := NewDistributedLock(r.client, key, uuid.NewString(), r.expiration)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 请求 ctx 可能已取消，释放锁用独立的 ctx
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx)
	}, nil
}

// LocalLocker 进程内按 key 互斥
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		slots: make(map[string]*localSlot),
	}
}

func (l *LocalLocker) acquireSlot(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) releaseSlot(key string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	slot := l.acquireSlot(key)
	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(key, slot)
		return nil, ctx.Err()
	}
	return func() {
		<-slot.ch
		l.releaseSlot(key, slot)
	}, nil
}
