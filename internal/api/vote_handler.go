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

// VoteServer 投票服务HTTP入口
type VoteServer struct {
	svc    *service.VoteService
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewVoteServer(svc *service.VoteService, tokens *auth.TokenManager, logger *zap.Logger) *VoteServer {
	return &VoteServer{svc: svc, tokens: tokens, logger: logger}
}

func (s *VoteServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", respondHealthy("vote"))
	r.POST("/vote/anonymous", s.castAnonymousVote)

	protected := r.Group("/", auth.RequireToken(s.tokens))
	protected.POST("/vote", s.castVote)
	protected.GET("/vote/check/:poll_id", s.checkVote)
	protected.GET("/vote/user", s.userVotes)
	return r
}

// Start 启动HTTP服务器
func (s *VoteServer) Start(port int) error {
	s.logger.Info("投票服务已启动", zap.Int("port", port))
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

type voteRequest struct {
	PollID   int64 `json:"poll_id"`
	OptionID int64 `json:"option_id"`
}

func (s *VoteServer) castVote(c *gin.Context) {
	userID, username, ok := auth.Identity(c)
	if !ok {
		respondError(c, model.ErrUnauthorized)
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PollID == 0 || req.OptionID == 0 {
		respondError(c, model.ErrInvalidInput)
		return
	}

	voter := model.Voter{
		UserID:   &userID,
		Username: username,
		IP:       c.ClientIP(),
	}

	receipt, err := s.svc.SubmitVote(c.Request.Context(), req.PollID, req.OptionID, voter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Vote cast successfully",
		"vote":    receipt,
	})
}

func (s *VoteServer) castAnonymousVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PollID == 0 || req.OptionID == 0 {
		respondError(c, model.ErrInvalidInput)
		return
	}

	voter := model.Voter{IP: c.ClientIP()}

	receipt, err := s.svc.SubmitVote(c.Request.Context(), req.PollID, req.OptionID, voter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Anonymous vote cast successfully",
		"vote":    receipt,
	})
}

func (s *VoteServer) checkVote(c *gin.Context) {
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

	vote, hasVoted, err := s.svc.CheckVote(c.Request.Context(), pollID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"has_voted": hasVoted}
	if hasVoted {
		response["vote"] = gin.H{
			"option_id": vote.OptionID,
			"voted_at":  vote.VotedAt,
		}
	} else {
		response["vote"] = nil
	}
	c.JSON(http.StatusOK, response)
}

func (s *VoteServer) userVotes(c *gin.Context) {
	userID, _, ok := auth.Identity(c)
	if !ok {
		respondError(c, model.ErrUnauthorized)
		return
	}

	page, perPage := pagingParams(c)

	votes, total, err := s.svc.UserVotes(c.Request.Context(), userID, page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}

	pages := (total + perPage - 1) / perPage
	c.JSON(http.StatusOK, gin.H{
		"votes": votes,
		"total": total,
		"page":  page,
		"pages": pages,
	})
}
