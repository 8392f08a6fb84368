package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("未登录或登录已过期")
	ErrInvalidAmount    = errors.New("金额必须大于0")
	ErrInvalidType      = errors.New("收支类型无效")
	ErrInvalidFrequency = errors.New("周期无效")
	ErrInvalidName      = errors.New("名称不能为空")
	ErrInvalidDate      = errors.New("日期格式无效")
	ErrInvalidCategory  = errors.New("分类无效")
	ErrNothingToUpdate  = errors.New("没有需要更新的字段")
	ErrEmptyIDs         = errors.New("id 列表不能为空")
	ErrInvalidFilter    = errors.New("查询条件无效")
)

// 周期账单迁移动作，同时作为指标和事件的标签
const (
	ActionMarkPaid   = "paid"
	ActionMarkUnpaid = "unpaid"
	ActionAutoReset  = "auto_reset"
)

// 迁移失败发生的步骤
const (
	StepUpdateDefinition = "update_definition"
	StepWriteEvent       = "write_event"
)

// PartialTransitionError 多步迁移中前一步已成功、后一步失败。
// 所有步骤在同一事务内，返回该错误时事务已回滚。
type PartialTransitionError struct {
	DefinitionID int64
	Action       string
	Step         string
	Err          error
}

func (e *PartialTransitionError) Error() string {
	return fmt.Sprintf("周期账单 %d 执行 %s 时在步骤 %s 失败，已回滚: %v", e.DefinitionID, e.Action, e.Step, e.Err)
}

func (e *PartialTransitionError) Unwrap() error {
	return e.Err
}

type ownerKey struct{}

// WithOwner 把已认证用户写入 ctx，由鉴权中间件调用
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom 取出当前用户
func OwnerFrom(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerKey{}).(string)
	return ownerID, ok && ownerID != ""
}

func requireOwner(ctx context.Context) (string, error) {
	ownerID, ok := OwnerFrom(ctx)
	if !ok {
		return "", ErrNotAuthenticated
	}
	return ownerID, nil
}
