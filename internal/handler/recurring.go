package handler

import (
	"context"

	"fintrack/internal/service"
	"fintrack/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListRecurring 列表前会先重置当前用户已过期的已付账单
// GET /api/v1/recurring?status=active&payment_status=paid&search=xxx
func (h *Handler) ListRecurring(c *gin.Context) {
	var q service.RecurringListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	defs, err := h.recurringService.List(c.Request.Context(), &q)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, defs)
}

// RecurringSummary GET /api/v1/recurring/summary
func (h *Handler) RecurringSummary(c *gin.Context) {
	summary, err := h.recurringService.Summary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, summary)
}

// GetRecurring GET /api/v1/recurring/:id
func (h *Handler) GetRecurring(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	def, err := h.recurringService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, def)
}

// CreateRecurring POST /api/v1/recurring
func (h *Handler) CreateRecurring(c *gin.Context) {
	var req service.CreateRecurringRequest
	if !bindJSON(c, &req) {
		return
	}
	def, err := h.recurringService.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, def)
}

// UpdateRecurring 只修改字段，付款状态通过 paid/unpaid/toggle 接口变更
// PUT /api/v1/recurring/:id
func (h *Handler) UpdateRecurring(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateRecurringRequest
	if !bindJSON(c, &req) {
		return
	}
	def, err := h.recurringService.Update(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, def)
}

// DeleteRecurring 已生成的流水保留
// DELETE /api/v1/recurring/:id
func (h *Handler) DeleteRecurring(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.recurringService.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已删除"})
}

// ToggleRecurring POST /api/v1/recurring/:id/toggle
func (h *Handler) ToggleRecurring(c *gin.Context) {
	h.transition(c, h.recurringService.Toggle)
}

// MarkRecurringPaid 生成一条流水并把到期日推进一个周期
// POST /api/v1/recurring/:id/paid
func (h *Handler) MarkRecurringPaid(c *gin.Context) {
	h.transition(c, h.recurringService.MarkPaid)
}

// MarkRecurringUnpaid 删除关联流水，到期日不变
// POST /api/v1/recurring/:id/unpaid
func (h *Handler) MarkRecurringUnpaid(c *gin.Context) {
	h.transition(c, h.recurringService.MarkUnpaid)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, int64) (*service.TransitionResult, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetRecurringActive 启用或停用，不影响付款状态
// POST /api/v1/recurring/:id/active
func (h *Handler) SetRecurringActive(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if !bindJSON(c, &req) {
		return
	}
	def, err := h.recurringService.SetActive(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, def)
}

// SweepRecurring 手动触发当前用户的过期重置
// POST /api/v1/recurring/sweep
func (h *Handler) SweepRecurring(c *gin.Context) {
	result, err := h.recurringService.SweepOwner(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}
