package service

import (
	"context"
	"errors"
	"time"

	"github.com/mbeoliero/jobchat/internal/config"
	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/internal/repository"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/identity"
	"github.com/mbeoliero/jobchat/pkg/jwt"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles authentication logic
type AuthService struct {
	userRepo   userStore
	cfg        *config.Config
	tokenStore *jwt.TokenStore
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo *repository.UserRepo, cfg *config.Config, rdb *redis.Client) *AuthService {
	s := &AuthService{
		userRepo: userRepo,
		cfg:      cfg,
	}
	if rdb != nil {
		s.tokenStore = jwt.NewTokenStore(rdb, cfg.JWT.ExpireHours)
	}
	return s
}

// RegisterRequest represents user registration request
type RegisterRequest struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

// LoginRequest represents user login request
type LoginRequest struct {
	UserId     string `json:"user_id"`
	Password   string `json:"password"`
	PlatformId int    `json:"platform_id"`
}

// LoginResponse represents user login response
type LoginResponse struct {
	Token    string           `json:"token"`
	UserInfo *entity.UserInfo `json:"user_info"`
}

// Register registers a chat identity for a portal account. The user id must
// be a portal-derived id such as "js__42" or "em__7".
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*entity.UserInfo, error) {
	var actor identity.Actor
	if err := actor.FromChatUserId(req.UserId); err != nil {
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}
	if req.Password == "" {
		return nil, errcode.ErrInvalidParam
	}

	exists, err := s.userRepo.Exists(ctx, req.UserId)
	if err != nil {
		log.CtxError(ctx, "check user exists failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if exists {
		return nil, errcode.ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.CtxError(ctx, "hash password failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	user := &entity.User{
		Id:       req.UserId,
		Nickname: req.Nickname,
		Avatar:   req.Avatar,
		Role:     string(actor.Role),
		Password: string(hashedPassword),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		log.CtxError(ctx, "create user failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "user registered: user_id=%s, role=%s", user.Id, user.Role)
	return user.ToUserInfo(), nil
}

// Login authenticates a user and returns a token
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetById(ctx, req.UserId)
	if err != nil {
		log.CtxDebug(ctx, "user not found: user_id=%s, error=%v", req.UserId, err)
		return nil, errcode.ErrUserNotFound
	}

	// portal-provisioned accounts only authenticate with portal tokens
	if !user.HasLocalLogin() {
		return nil, errcode.ErrPasswordWrong
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errcode.ErrPasswordWrong
	}

	token, err := jwt.GenerateToken(user.Id, user.Role, req.PlatformId, s.cfg.JWT.Secret, time.Duration(s.cfg.JWT.ExpireHours)*time.Hour)
	if err != nil {
		log.CtxError(ctx, "generate token failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	if s.tokenStore != nil {
		if err := s.tokenStore.StoreToken(ctx, user.Id, req.PlatformId, token); err != nil {
			log.CtxError(ctx, "store token failed: %v", err)
			return nil, errcode.ErrInternalServer
		}
	}

	log.CtxInfo(ctx, "user logged in: user_id=%s, platform_id=%d", user.Id, req.PlatformId)
	return &LoginResponse{
		Token:    token,
		UserInfo: user.ToUserInfo(),
	}, nil
}

// ValidateToken accepts a chat token or, when enabled, a portal token.
// Portal users get a chat identity row on first sight so that they can be
// resolved as conversation counterparts.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(token, s.cfg.JWT.Secret)
	if err != nil {
		if !s.cfg.ExternalJWT.Enabled {
			return nil, err
		}
		claims, err = jwt.ParseExternalToken(token, s.cfg.ExternalJWT.Secret, s.cfg.ExternalJWT.DefaultRole, s.cfg.ExternalJWT.DefaultPlatformId)
		if err != nil {
			return nil, err
		}
		s.ensurePortalUser(ctx, claims.UserId)
		return claims, nil
	}

	if s.tokenStore == nil {
		return claims, nil
	}
	revoked, err := s.tokenStore.IsRevoked(ctx, claims.UserId, claims.PlatformId, token)
	if err != nil {
		log.CtxWarn(ctx, "check token status failed: %v", err)
		// Fall back to JWT validation only if Redis check fails
		return claims, nil
	}
	if revoked {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}

// Logout invalidates a user's token
func (s *AuthService) Logout(ctx context.Context, userId string, platformId int, token string) error {
	if s.tokenStore == nil {
		return nil
	}
	if err := s.tokenStore.InvalidateToken(ctx, userId, platformId, token); err != nil {
		log.CtxError(ctx, "invalidate token failed: %v", err)
		return errcode.ErrInternalServer
	}
	log.CtxInfo(ctx, "user logged out: user_id=%s, platform_id=%d", userId, platformId)
	return nil
}

func (s *AuthService) ensurePortalUser(ctx context.Context, userId string) {
	var actor identity.Actor
	if err := actor.FromChatUserId(userId); err != nil {
		log.CtxWarn(ctx, "portal user id not recognised: user_id=%s, error=%v", userId, err)
		return
	}
	user := &entity.User{Id: userId, Role: string(actor.Role)}
	if err := s.userRepo.EnsureExists(ctx, user); err != nil && !errors.Is(err, context.Canceled) {
		log.CtxWarn(ctx, "ensure portal user failed: user_id=%s, error=%v", userId, err)
	}
}
