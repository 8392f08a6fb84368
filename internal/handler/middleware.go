package handler

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/metrics"
	"fintrack/internal/service"
	"fintrack/pkg/authtoken"
	"fintrack/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware 透传或生成请求ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// LoggerMiddleware 日志中间件，同时记录请求指标
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 标签用路由模板，不用实际路径
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s | %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetString("request_id"),
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 校验 Bearer 令牌，把用户写入请求 ctx
func AuthMiddleware(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == header {
			response.Unauthorized(c, "缺少访问令牌")
			return
		}

		claims, err := authtoken.Parse(cfg.JWTSecret, cfg.Issuer, token)
		if err != nil {
			response.Unauthorized(c, "访问令牌无效")
			return
		}
		ownerID, err := claims.OwnerID()
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Request = c.Request.WithContext(service.WithOwner(c.Request.Context(), ownerID))
		c.Next()
	}
}

// TimeoutMiddleware 给请求 ctx 加超时，数据库和锁等待都会受它约束
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
