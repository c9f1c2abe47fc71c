// Package gateway 对外统一入口：按路由类别限流，把/api请求转发给
// 各个服务，聚合健康状态。限流只是前置防护，投票防重的正确性由
// 投票服务和数据库唯一约束保证。
package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/lvdashuaibi/pollhub/internal/ratelimit"
	"go.uber.org/zap"
)

// 路由类别，限流配额按类别区分
const (
	ClassDefault   = "default"
	ClassRegister  = "register"
	ClassLogin     = "login"
	ClassVote      = "vote"
	ClassAnonymous = "anonymous"
)

// Limits 每个路由类别在窗口内允许的请求数
type Limits struct {
	Default   int
	Register  int
	Login     int
	Vote      int
	Anonymous int
}

func (l Limits) forClass(class string) int {
	switch class {
	case ClassRegister:
		return l.Register
	case ClassLogin:
		return l.Login
	case ClassVote:
		return l.Vote
	case ClassAnonymous:
		return l.Anonymous
	default:
		return l.Default
	}
}

// ServiceURLs 下游服务地址
type ServiceURLs struct {
	Auth    string
	Poll    string
	Vote    string
	Results string
}

type Gateway struct {
	urls    ServiceURLs
	limiter *ratelimit.Limiter
	limits  Limits
	client  *http.Client
	logger  *zap.Logger
}

func New(urls ServiceURLs, limiter *ratelimit.Limiter, limits Limits, forwardTimeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		urls:    urls,
		limiter: limiter,
		limits:  limits,
		client:  &http.Client{Timeout: forwardTimeout},
		logger:  logger,
	}
}

func (g *Gateway) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", g.aggregateHealth)

	api := r.Group("/api")
	api.POST("/auth/register", g.limit(ClassRegister), g.forward(func(c *gin.Context) string { return g.urls.Auth + "/register" }))
	api.POST("/auth/login", g.limit(ClassLogin), g.forward(func(c *gin.Context) string { return g.urls.Auth + "/login" }))

	api.GET("/polls", g.limit(ClassDefault), g.forward(func(c *gin.Context) string { return g.urls.Poll + "/polls?" + c.Request.URL.RawQuery }))
	api.POST("/polls", g.limit(ClassDefault), g.forward(func(c *gin.Context) string { return g.urls.Poll + "/polls" }))
	api.GET("/polls/:poll_id", g.limit(ClassDefault), g.forward(func(c *gin.Context) string { return g.urls.Poll + "/polls/" + c.Param("poll_id") }))
	api.DELETE("/polls/:poll_id", g.limit(ClassDefault), g.forward(func(c *gin.Context) string { return g.urls.Poll + "/polls/" + c.Param("poll_id") }))
	api.POST("/polls/:poll_id/close", g.limit(ClassDefault), g.forward(func(c *gin.Context) string { return g.urls.Poll + "/polls/" + c.Param("poll_id") + "/close" }))

	api.POST("/vote", g.limit(ClassVote), g.forward(func(c *gin.Context) string { return g.urls.Vote + "/vote" }))
	api.POST("/vote/anonymous", g.limit(ClassAnonymous), g.forward(func(c *gin.Context) string { return g.urls.Vote + "/vote/anonymous" }))
	api.GET("/vote/check/:poll_id", g.limit(ClassDefault), g.forward(func(c *gin.Context) string { return g.urls.Vote + "/vote/check/" + c.Param("poll_id") }))
	api.GET("/vote/user", g.limit(ClassDefault), g.forward(func(c *gin.Context) string { return g.urls.Vote + "/vote/user?" + c.Request.URL.RawQuery }))

	// 静态路径和:poll_id不能同级注册，结果路由整体按前缀转发
	api.GET("/results/*rest", g.limit(ClassDefault), g.forward(g.resultsTarget))

	return r
}

// Start 启动HTTP服务器
func (g *Gateway) Start(port int) error {
	g.logger.Info("网关已启动", zap.Int("port", port))
	return g.Router().Run(fmt.Sprintf(":%d", port))
}

// resultsTarget /api/results/stats和/api/results/trending落在结果服务的
// 顶级路径上，其余按/results前缀透传
func (g *Gateway) resultsTarget(c *gin.Context) string {
	rest := strings.TrimPrefix(c.Param("rest"), "/")
	query := ""
	if c.Request.URL.RawQuery != "" {
		query = "?" + c.Request.URL.RawQuery
	}
	switch rest {
	case "stats":
		return g.urls.Results + "/stats" + query
	case "trending":
		return g.urls.Results + "/trending" + query
	default:
		return g.urls.Results + "/results/" + rest + query
	}
}

// limit 按(客户端IP, 路由类别)限流
func (g *Gateway) limit(class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.limiter.Allow(c.ClientIP(), class, g.limits.forClass(class)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  model.ErrorCode(model.ErrRateLimited),
			})
			return
		}
		c.Next()
	}
}

// forward 把请求转发给下游服务，透传Authorization头和响应。
// 转发超时对外表现为网关超时，连接失败表现为服务不可用
func (g *Gateway) forward(target func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := strings.TrimSuffix(target(c), "?")

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal gateway error"})
			return
		}

		if auth := c.GetHeader("Authorization"); auth != "" {
			req.Header.Set("Authorization", auth)
		}
		if contentType := c.GetHeader("Content-Type"); contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("X-Forwarded-For", c.ClientIP())

		resp, err := g.client.Do(req)
		if err != nil {
			g.logger.Warn("转发请求失败", zap.String("url", url), zap.Error(err))
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Service timeout"})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
			return
		}
		defer resp.Body.Close()

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
			c.Header("Content-Disposition", disposition)
		}
		c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)
	}
}

// aggregateHealth 聚合各服务健康状态，任一不健康整体降级
func (g *Gateway) aggregateHealth(c *gin.Context) {
	services := map[string]string{
		"auth":    g.urls.Auth,
		"poll":    g.urls.Poll,
		"vote":    g.urls.Vote,
		"results": g.urls.Results,
	}

	health := make(map[string]string, len(services))
	overall := true
	for name, base := range services {
		status := "healthy"
		resp, err := g.client.Get(base + "/health")
		if err != nil {
			status = "unreachable"
		} else {
			if resp.StatusCode != http.StatusOK {
				status = "unhealthy"
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if status != "healthy" {
			overall = false
		}
		health[name] = status
	}

	code := http.StatusOK
	status := "healthy"
	if !overall {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{"status": status, "services": health})
}
