package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/lvdashuaibi/pollhub/internal/service"
	"go.uber.org/zap"
)

// AuthServer 认证服务HTTP入口
type AuthServer struct {
	svc    *service.AuthService
	logger *zap.Logger
}

func NewAuthServer(svc *service.AuthService, logger *zap.Logger) *AuthServer {
	return &AuthServer{svc: svc, logger: logger}
}

func (s *AuthServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", respondHealthy("auth"))
	r.POST("/register", s.register)
	r.POST("/login", s.login)
	r.POST("/verify", s.verify)
	return r
}

// Start 启动HTTP服务器
func (s *AuthServer) Start(port int) error {
	s.logger.Info("认证服务已启动", zap.Int("port", port))
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthServer) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, model.ErrInvalidInput)
		return
	}

	user, token, err := s.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
		"token": token,
	})
}

func (s *AuthServer) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, model.ErrInvalidInput)
		return
	}

	user, token, err := s.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
		"token": token,
	})
}

// verify 供服务间调用的令牌校验接口
func (s *AuthServer) verify(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		respondError(c, model.ErrInvalidInput)
		return
	}

	claims, err := s.svc.VerifyToken(req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"user_id":  claims.UserID,
		"username": claims.Username,
	})
}
