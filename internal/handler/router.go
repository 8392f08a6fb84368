package handler

import (
	"fintrack/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(&cfg.Auth))
	api.Use(TimeoutMiddleware(cfg.Business.RequestTimeout()))
	{
		// 流水
		tx := api.Group("/transactions")
		{
			tx.GET("", h.ListTransactions)
			tx.GET("/count", h.CountTransactions)
			tx.GET("/:id", h.GetTransaction)
			tx.POST("", h.CreateTransaction)
			tx.PUT("/:id", h.UpdateTransaction)
			tx.POST("/delete", h.DeleteTransactions)
			tx.POST("/category", h.UpdateTransactionsCategory)
		}

		// 周期账单
		recurring := api.Group("/recurring")
		{
			recurring.GET("", h.ListRecurring)
			recurring.GET("/summary", h.RecurringSummary)
			recurring.POST("/sweep", h.SweepRecurring)
			recurring.GET("/:id", h.GetRecurring)
			recurring.POST("", h.CreateRecurring)
			recurring.PUT("/:id", h.UpdateRecurring)
			recurring.DELETE("/:id", h.DeleteRecurring)
			recurring.POST("/:id/toggle", h.ToggleRecurring)
			recurring.POST("/:id/paid", h.MarkRecurringPaid)
			recurring.POST("/:id/unpaid", h.MarkRecurringUnpaid)
			recurring.POST("/:id/active", h.SetRecurringActive)
		}

		// 储蓄目标
		savings := api.Group("/savings")
		{
			savings.GET("", h.ListSavings)
			savings.GET("/stats", h.SavingsStats)
			savings.GET("/:id", h.GetSaving)
			savings.POST("", h.CreateSaving)
			savings.PUT("/:id", h.UpdateSaving)
			savings.DELETE("/:id", h.DeleteSaving)
			savings.POST("/:id/contributions", h.AddContribution)
			savings.GET("/:id/contributions", h.ListContributions)
		}

		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/stats", h.DashboardStats)
			dashboard.GET("/monthly", h.DashboardMonthly)
			dashboard.GET("/categories", h.DashboardCategories)
			dashboard.GET("/recent", h.DashboardRecent)
		}

		api.POST("/setup/init", h.SetupInit)
		api.GET("/setup/status", h.SetupStatus)
		api.GET("/categories", h.ListCategories)
		api.GET("/accounts", h.ListAccounts)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
