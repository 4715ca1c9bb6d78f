package service

import (
	"context"
	"errors"
	"fmt"

	"freshjuice/internal/model"
	"freshjuice/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailRegistered    = errors.New("邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrRoleMismatch       = errors.New("账号角色不匹配")
)

// 默认管理员，首次以 admin 身份登录时自动创建
const (
	defaultAdminEmail    = "admin@freshjuice.com"
	defaultAdminPassword = "admin123"
	defaultAdminName     = "Admin"
)

type AuthService struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{
		db:       db,
		userRepo: repository.NewUserRepository(db),
	}
}

type SignUpRequest struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
}

// SignUp 注册顾客账号，密码只存 bcrypt 哈希
func (s *AuthService) SignUp(ctx context.Context, req *SignUpRequest) (*model.User, error) {
	_, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, ErrEmailRegistered
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	user := &model.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
		Phone:    req.Phone,
		Address:  req.Address,
		Role:     model.RoleCustomer,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	return user, nil
}

// Login 登录校验，role 传空则不限制角色
func (s *AuthService) Login(ctx context.Context, email, password, role string) (*model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// 默认管理员首次登录时创建账号
			if email == defaultAdminEmail && role == model.RoleAdmin {
				return s.bootstrapAdmin(ctx, password)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	if role != "" && user.Role != role {
		return nil, ErrRoleMismatch
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *AuthService) bootstrapAdmin(ctx context.Context, password string) (*model.User, error) {
	if password != defaultAdminPassword {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	admin := &model.User{
		Name:     defaultAdminName,
		Email:    defaultAdminEmail,
		Password: string(hash),
		Role:     model.RoleAdmin,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("创建管理员失败: %w", err)
	}
	return admin, nil
}
