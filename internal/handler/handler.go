package handler

import (
	"context"
	"errors"
	"log"
	"strconv"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/repository"
	"fintrack/internal/service"
	"fintrack/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledgerService    *service.LedgerService
	recurringService *service.RecurringService
	savingsService   *service.SavingsService
	dashboardService *service.DashboardService
	setupService     *service.SetupService
}

// NewHandler 创建处理器实例。locker 需要和后台任务共用同一个实例。
func NewHandler(store repository.Store, locker lock.Locker, cfg *config.Config) *Handler {
	return NewHandlerWith(
		service.NewLedgerService(store, cfg),
		service.NewRecurringService(store, locker, cfg),
		service.NewSavingsService(store, cfg),
		service.NewDashboardService(store, cfg),
		service.NewSetupService(store),
	)
}

// NewHandlerWith 使用已创建好的服务，测试时用来注入固定时钟
func NewHandlerWith(
	ledger *service.LedgerService,
	recurring *service.RecurringService,
	savings *service.SavingsService,
	dashboard *service.DashboardService,
	setup *service.SetupService,
) *Handler {
	return &Handler{
		ledgerService:    ledger,
		recurringService: recurring,
		savingsService:   savings,
		dashboardService: dashboard,
		setupService:     setup,
	}
}

// fail 把服务层错误映射为响应码
func fail(c *gin.Context, err error) {
	var partial *service.PartialTransitionError
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, repository.ErrRecurringNotFound),
		errors.Is(err, repository.ErrSavingFundNotFound):
		response.NotFound(c, err.Error())
	case errors.As(err, &partial):
		log.Printf("[Handler] 周期账单部分失败: %v", err)
		response.BusinessError(c, response.CodePartialTransition, "操作未完成，已回滚，请重试")
	case errors.Is(err, repository.ErrPaymentStatusInvalid):
		response.BusinessError(c, response.CodePaymentStatusInvalid, err.Error())
	case isValidationError(err):
		response.BusinessError(c, response.CodeValidationFailed, err.Error())
	case errors.Is(err, lock.ErrLockFailed), errors.Is(err, context.DeadlineExceeded):
		response.BusinessError(c, response.CodeBusy, "系统繁忙，请稍后重试")
	default:
		log.Printf("[Handler] %s %s 处理失败: %v", c.Request.Method, c.FullPath(), err)
		response.ServerError(c, err.Error())
	}
}

var validationErrors = []error{
	service.ErrInvalidAmount,
	service.ErrInvalidType,
	service.ErrInvalidFrequency,
	service.ErrInvalidName,
	service.ErrInvalidDate,
	service.ErrInvalidCategory,
	service.ErrInvalidTarget,
	service.ErrNothingToUpdate,
	service.ErrEmptyIDs,
	service.ErrInvalidFilter,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// pathID 解析路径参数 :id，失败时已写入响应
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	return true
}
