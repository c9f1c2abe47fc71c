package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollhub/internal/auth"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/lvdashuaibi/pollhub/internal/service"
	"go.uber.org/zap"
)

// PollServer Poll服务HTTP入口
type PollServer struct {
	svc    *service.PollService
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewPollServer(svc *service.PollService, tokens *auth.TokenManager, logger *zap.Logger) *PollServer {
	return &PollServer{svc: svc, tokens: tokens, logger: logger}
}

func (s *PollServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", respondHealthy("poll"))
	r.GET("/polls", s.listPolls)
	r.GET("/polls/:poll_id", s.getPoll)

	protected := r.Group("/", auth.RequireToken(s.tokens))
	protected.POST("/polls", s.createPoll)
	protected.DELETE("/polls/:poll_id", s.deletePoll)
	protected.POST("/polls/:poll_id/close", s.closePoll)
	return r
}

// Start 启动HTTP服务器
func (s *PollServer) Start(port int) error {
	s.logger.Info("Poll服务已启动", zap.Int("port", port))
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

type createPollRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Options            []string `json:"options"`
	ExpiresAt          string   `json:"expires_at"`
	AllowMultipleVotes bool     `json:"allow_multiple_votes"`
	IsAnonymous        bool     `json:"is_anonymous"`
}

func (s *PollServer) createPoll(c *gin.Context) {
	userID, username, ok := auth.Identity(c)
	if !ok {
		respondError(c, model.ErrUnauthorized)
		return
	}

	var req createPollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, model.ErrInvalidInput)
		return
	}

	poll, err := s.svc.Create(c.Request.Context(), userID, username, service.CreatePollInput{
		Title:              req.Title,
		Description:        req.Description,
		Options:            req.Options,
		ExpiresAt:          req.ExpiresAt,
		AllowMultipleVotes: req.AllowMultipleVotes,
		IsAnonymous:        req.IsAnonymous,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Poll created successfully",
		"poll":    poll,
	})
}

func (s *PollServer) listPolls(c *gin.Context) {
	page, perPage := pagingParams(c)

	polls, total, err := s.svc.List(c.Request.Context(), page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}

	pages := (total + perPage - 1) / perPage
	c.JSON(http.StatusOK, gin.H{
		"polls": polls,
		"total": total,
		"page":  page,
		"pages": pages,
	})
}

func (s *PollServer) getPoll(c *gin.Context) {
	pollID, err := pollIDParam(c)
	if err != nil {
		respondError(c, model.ErrNotFound)
		return
	}

	poll, err := s.svc.Get(c.Request.Context(), pollID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (s *PollServer) closePoll(c *gin.Context) {
	userID, _, ok := auth.Identity(c)
	if !ok {
		respondError(c, model.ErrUnauthorized)
		return
	}

	pollID, err := pollIDParam(c)
	if err != nil {
		respondError(c, model.ErrNotFound)
		return
	}

	if err := s.svc.Close(c.Request.Context(), pollID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Poll closed successfully"})
}

func (s *PollServer) deletePoll(c *gin.Context) {
	userID, _, ok := auth.Identity(c)
	if !ok {
		respondError(c, model.ErrUnauthorized)
		return
	}

	pollID, err := pollIDParam(c)
	if err != nil {
		respondError(c, model.ErrNotFound)
		return
	}

	if err := s.svc.Delete(c.Request.Context(), pollID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Poll deleted successfully"})
}

func pollIDParam(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("poll_id"), 10, 64)
}

// pagingParams 解析并钳制分页参数，和服务层保持同一边界
func pagingParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 50 {
		perPage = 50
	}
	return page, perPage
}
