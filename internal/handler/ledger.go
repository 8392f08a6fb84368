package handler

import (
	"fintrack/internal/service"
	"fintrack/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListTransactions 分页查询流水
// GET /api/v1/transactions?page=1&page_size=20&type=expense&search=xxx
func (h *Handler) ListTransactions(c *gin.Context) {
	var q service.TransactionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	page, err := h.ledgerService.List(c.Request.Context(), &q)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, page)
}

// CountTransactions 统计满足条件的流水数量
// GET /api/v1/transactions/count
func (h *Handler) CountTransactions(c *gin.Context) {
	var q service.TransactionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	total, err := h.ledgerService.Count(c.Request.Context(), &q)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"total": total})
}

// GetTransaction GET /api/v1/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entry, err := h.ledgerService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, entry)
}

// CreateTransaction 直接记一笔流水
// POST /api/v1/transactions
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req service.CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.ledgerService.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, entry)
}

// UpdateTransaction PUT /api/v1/transactions/:id
func (h *Handler) UpdateTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.ledgerService.Update(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, entry)
}

type bulkIDsRequest struct {
	IDs []int64 `json:"ids"`
}

// DeleteTransactions 批量删除
// POST /api/v1/transactions/delete
func (h *Handler) DeleteTransactions(c *gin.Context) {
	var req bulkIDsRequest
	if !bindJSON(c, &req) {
		return
	}
	deleted, err := h.ledgerService.DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}

type bulkCategoryRequest struct {
	IDs        []int64 `json:"ids"`
	CategoryID int64   `json:"category_id"`
}

// UpdateTransactionsCategory 批量修改分类
// POST /api/v1/transactions/category
func (h *Handler) UpdateTransactionsCategory(c *gin.Context) {
	var req bulkCategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.ledgerService.UpdateCategory(c.Request.Context(), req.IDs, req.CategoryID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"updated": updated})
}
