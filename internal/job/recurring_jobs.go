package job

import (
	"context"
	"log"
	"time"

	"fintrack/internal/infrastructure/metrics"
	"fintrack/internal/service"
)

// AutoResetJob 定时把已付且过期的周期账单重置为未付。
// 用户访问列表时也会按需重置，这里兜底长期不登录的用户。
type AutoResetJob struct {
	recurring *service.RecurringService
	stopCh    chan struct{}
	interval  time.Duration
}

func NewAutoResetJob(recurring *service.RecurringService, interval time.Duration) *AutoResetJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AutoResetJob{
		recurring: recurring,
		stopCh:    make(chan struct{}),
		interval:  interval,
	}
}

func (j *AutoResetJob) Start(ctx context.Context) {
	log.Printf("[AutoResetJob] 自动重置任务启动, interval=%s", j.interval)

	// 启动时先跑一次
	j.run(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AutoResetJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[AutoResetJob] 任务停止")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *AutoResetJob) Stop() {
	close(j.stopCh)
}

func (j *AutoResetJob) run(ctx context.Context) *service.SweepResult {
	result, err := j.recurring.SweepAll(ctx)
	if err != nil {
		log.Printf("[AutoResetJob] 自动重置中断: %v", err)
	}
	return result
}

// AuditJob 定时检查付款状态与关联流水是否一致，结果写入指标，只告警不修复
type AuditJob struct {
	recurring *service.RecurringService
	stopCh    chan struct{}
	interval  time.Duration
}

func NewAuditJob(recurring *service.RecurringService, interval time.Duration) *AuditJob {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &AuditJob{
		recurring: recurring,
		stopCh:    make(chan struct{}),
		interval:  interval,
	}
}

func (j *AuditJob) Start(ctx context.Context) {
	log.Printf("[AuditJob] 一致性检查任务启动, interval=%s", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AuditJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[AuditJob] 任务停止")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *AuditJob) Stop() {
	close(j.stopCh)
}

func (j *AuditJob) run(ctx context.Context) *service.AuditReport {
	report, err := j.recurring.Audit(ctx)
	if err != nil {
		log.Printf("[AuditJob] 一致性检查失败: %v", err)
		return report
	}

	metrics.AuditViolations.WithLabelValues("paid_without_entry").Set(float64(len(report.PaidWithoutEntry)))

	if report.Violations() > 0 {
		log.Printf("[AuditJob] 发现不一致的周期账单: paid_without_entry=%v", report.PaidWithoutEntry)
	}
	return report
}
