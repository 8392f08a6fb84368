package handler

import (
	"strconv"

	"fintrack/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardStats 余额、本月收支及环比
// GET /api/v1/dashboard/stats
func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.dashboardService.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, stats)
}

// DashboardMonthly GET /api/v1/dashboard/monthly?months=6
func (h *Handler) DashboardMonthly(c *gin.Context) {
	months, err := strconv.Atoi(c.DefaultQuery("months", "6"))
	if err != nil || months > 36 {
		response.ParamError(c, "months 参数错误")
		return
	}
	points, err := h.dashboardService.Monthly(c.Request.Context(), months)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, points)
}

// DashboardCategories GET /api/v1/dashboard/categories
func (h *Handler) DashboardCategories(c *gin.Context) {
	slices, err := h.dashboardService.Categories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, slices)
}

// DashboardRecent GET /api/v1/dashboard/recent?limit=5
func (h *Handler) DashboardRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil {
		response.ParamError(c, "limit 参数错误")
		return
	}
	entries, err := h.dashboardService.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, entries)
}

// SetupInit 首次使用时写入默认分类和账户，重复调用无副作用
// POST /api/v1/setup/init
func (h *Handler) SetupInit(c *gin.Context) {
	status, err := h.setupService.Init(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, status)
}

// SetupStatus GET /api/v1/setup/status
func (h *Handler) SetupStatus(c *gin.Context) {
	status, err := h.setupService.Status(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, status)
}

// ListCategories GET /api/v1/categories?type=expense
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.setupService.Categories(c.Request.Context(), c.Query("type"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, categories)
}

// ListAccounts GET /api/v1/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.setupService.Accounts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, accounts)
}
