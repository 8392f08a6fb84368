package handler

import (
	"fintrack/internal/service"
	"fintrack/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListSavings GET /api/v1/savings
func (h *Handler) ListSavings(c *gin.Context) {
	funds, err := h.savingsService.ListFunds(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, funds)
}

// SavingsStats GET /api/v1/savings/stats
func (h *Handler) SavingsStats(c *gin.Context) {
	stats, err := h.savingsService.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, stats)
}

// GetSaving GET /api/v1/savings/:id
func (h *Handler) GetSaving(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	fund, err := h.savingsService.GetFund(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, fund)
}

// CreateSaving POST /api/v1/savings
func (h *Handler) CreateSaving(c *gin.Context) {
	var req service.CreateFundRequest
	if !bindJSON(c, &req) {
		return
	}
	fund, err := h.savingsService.CreateFund(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, fund)
}

// UpdateSaving PUT /api/v1/savings/:id
func (h *Handler) UpdateSaving(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateFundRequest
	if !bindJSON(c, &req) {
		return
	}
	fund, err := h.savingsService.UpdateFund(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, fund)
}

// DeleteSaving DELETE /api/v1/savings/:id
func (h *Handler) DeleteSaving(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.savingsService.DeleteFund(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已删除"})
}

// AddContribution 存入一笔，返回更新后的目标
// POST /api/v1/savings/:id/contributions
func (h *Handler) AddContribution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ContributionRequest
	if !bindJSON(c, &req) {
		return
	}
	fund, err := h.savingsService.AddContribution(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, fund)
}

// ListContributions GET /api/v1/savings/:id/contributions
func (h *Handler) ListContributions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.savingsService.ListContributions(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}
