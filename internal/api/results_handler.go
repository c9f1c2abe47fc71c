package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollhub/config"
	"github.com/lvdashuaibi/pollhub/internal/api/graph"
	"github.com/lvdashuaibi/pollhub/internal/auth"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/lvdashuaibi/pollhub/internal/service"
	"go.uber.org/zap"
)

const defaultTrendingWindow = 24 * time.Hour

// ResultsServer 结果服务HTTP入口，同时挂载只读GraphQL端点
type ResultsServer struct {
	svc    *service.ResultsService
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewResultsServer(svc *service.ResultsService, tokens *auth.TokenManager, logger *zap.Logger) *ResultsServer {
	return &ResultsServer{svc: svc, tokens: tokens, logger: logger}
}

func (s *ResultsServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", respondHealthy("results"))
	r.GET("/results/:poll_id", s.getResults)
	r.GET("/stats", s.stats)
	r.GET("/trending", s.trending)

	// 只读GraphQL查询端点
	graphqlHandler := graph.NewHandler(s.svc)
	r.POST(config.AppConfig.GraphQL.Path, gin.WrapH(graphqlHandler))
	r.GET("/playground", graph.Playground)

	protected := r.Group("/", auth.RequireToken(s.tokens))
	protected.GET("/results/:poll_id/detailed", s.getDetailedResults)
	protected.GET("/results/:poll_id/export", s.exportCSV)
	return r
}

// Start 启动HTTP服务器
func (s *ResultsServer) Start(port int) error {
	s.logger.Info("结果服务已启动", zap.Int("port", port))
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

func (s *ResultsServer) getResults(c *gin.Context) {
	pollID, err := strconv.ParseInt(c.Param("poll_id"), 10, 64)
	if err != nil {
		respondError(c, model.ErrNotFound)
		return
	}

	results, err := s.svc.GetResults(c.Request.Context(), pollID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *ResultsServer) getDetailedResults(c *gin.Context) {
	userID, _, ok := auth.Identity(c)
	if !ok {
		respondError(c, model.ErrUnauthorized)
		return
	}

	pollID, err := strconv.ParseInt(c.Param("poll_id"), 10, 64)
	if err != nil {
		respondError(c, model.ErrNotFound)
		return
	}

	results, err := s.svc.GetDetailedResults(c.Request.Context(), pollID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *ResultsServer) exportCSV(c *gin.Context) {
	userID, _, ok := auth.Identity(c)
	if !ok {
		respondError(c, model.ErrUnauthorized)
		return
	}

	pollID, err := strconv.ParseInt(c.Param("poll_id"), 10, 64)
	if err != nil {
		respondError(c, model.ErrNotFound)
		return
	}

	var buf bytes.Buffer
	if err := s.svc.ExportCSV(c.Request.Context(), pollID, userID, &buf); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("poll_%d_results.csv", pollID)
	c.Header("Content-Disposition", "attachment;filename="+filename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (s *ResultsServer) trending(c *gin.Context) {
	window := defaultTrendingWindow
	if hours, err := strconv.Atoi(c.Query("hours")); err == nil && hours > 0 {
		window = time.Duration(hours) * time.Hour
	}

	trending, err := s.svc.Trending(c.Request.Context(), window)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trending_polls": trending})
}

func (s *ResultsServer) stats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
