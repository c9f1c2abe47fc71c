package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/lvdashuaibi/pollhub/internal/auth"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/lvdashuaibi/pollhub/internal/validator"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore 用户存储
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

type AuthService struct {
	users  UserStore
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewAuthService(users UserStore, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// Register 注册用户并签发令牌
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*model.User, string, error) {
	username = validator.SanitizeInput(username, 20)
	email = validator.SanitizeInput(email, 120)

	if username == "" || email == "" || password == "" {
		return nil, "", fmt.Errorf("用户名、邮箱和密码都不能为空: %w", model.ErrInvalidInput)
	}
	if !validator.ValidateUsername(username) {
		return nil, "", fmt.Errorf("用户名必须是3-20位字母数字: %w", model.ErrInvalidInput)
	}
	if !validator.ValidateEmail(email) {
		return nil, "", fmt.Errorf("邮箱格式无效: %w", model.ErrInvalidInput)
	}
	if !validator.ValidatePassword(password) {
		return nil, "", fmt.Errorf("密码至少8位且包含字母和数字: %w", model.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("密码哈希失败: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
	}

	id, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return nil, "", err
	}
	user.ID = id

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("用户注册成功", zap.Int64("user_id", user.ID), zap.String("username", username))
	return user, token, nil
}

// Login 校验凭据并签发令牌。用户不存在与密码错误对外不区分
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	username = validator.SanitizeInput(username, 20)
	if username == "" || password == "" {
		return nil, "", fmt.Errorf("用户名和密码都不能为空: %w", model.ErrInvalidInput)
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, "", model.ErrUnauthorized
		}
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", model.ErrUnauthorized
	}

	if !user.IsActive {
		return nil, "", fmt.Errorf("账号已停用: %w", model.ErrForbidden)
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// VerifyToken 供服务间调用的令牌校验
func (s *AuthService) VerifyToken(token string) (*auth.Claims, error) {
	return s.tokens.Verify(token)
}
